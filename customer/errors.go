package customer

import "errors"

var (
	// ErrNotFound is returned when the customer does not exist or has been
	// disabled. Lookups do not distinguish the two cases.
	ErrNotFound = errors.New("customer not found")

	// ErrAlreadyExists is returned when an Add targets an ID that already has
	// a customer, live or disabled.
	ErrAlreadyExists = errors.New("customer already exists")
)
