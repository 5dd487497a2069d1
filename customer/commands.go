package customer

// Command is the closed set of requests the customer entity accepts.
type Command interface {
	AggregateID() string
	isCustomerCommand()
}

// Add creates the customer. The ID must already be populated; the service
// layer generates it before the command is issued.
type Add struct {
	Customer Customer
}

func (c Add) AggregateID() string { return c.Customer.ID }
func (c Add) isCustomerCommand()  {}

// Get reads the current customer record through the entity, giving a strongly
// consistent single-row lookup. It emits no events.
type Get struct {
	ID string
}

func (c Get) AggregateID() string { return c.ID }
func (c Get) isCustomerCommand()  {}

// Disable soft-deletes the customer. Repeat disables are benign.
type Disable struct {
	ID string
}

func (c Disable) AggregateID() string { return c.ID }
func (c Disable) isCustomerCommand()  {}
