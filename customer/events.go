package customer

import "github.com/terraskye/customers/eventsourcing"

const (
	AddedEventType    = "customer.added"
	DisabledEventType = "customer.disabled"
)

func init() {
	eventsourcing.RegisterEvent(func() eventsourcing.Event { return &Added{} })
	eventsourcing.RegisterEvent(func() eventsourcing.Event { return &Disabled{} })
}

// Added records that a customer was created with the given payload.
type Added struct {
	Customer Customer `json:"customer"`
}

func (e Added) AggregateID() string { return e.Customer.ID }
func (e Added) EventType() string   { return AddedEventType }

// Disabled records that a customer was soft-deleted. The record survives in
// the event log but is hidden from lookups.
type Disabled struct {
	ID string `json:"id"`
}

func (e Disabled) AggregateID() string { return e.ID }
func (e Disabled) EventType() string   { return DisabledEventType }
