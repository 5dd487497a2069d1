// Package customer implements the customer entity: its commands and events,
// the pure state machine they drive, and the read-side projection that keeps
// the query store in sync with the event log.
package customer

// Customer is the denormalized customer record. The ID is generated by the
// service at add time and never reassigned.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipcode"`
}
