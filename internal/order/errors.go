package order

import "errors"

// Sentinel errors for order tracking.
// Callers should use errors.Is() to check error types.
var (
	// ErrOrderNotFound indicates no order exists under the given id or
	// pending handle.
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateOrder indicates an order id is already tracked by a
	// non-terminal order. The first registration wins.
	ErrDuplicateOrder = errors.New("duplicate order id")

	// ErrTerminalState indicates a transition was attempted on an order
	// that already reached COMPLETED, ERROR or CANCELLED.
	ErrTerminalState = errors.New("order is in a terminal state")

	// ErrMissingOrderID indicates a controller response carried no
	// usable order id.
	ErrMissingOrderID = errors.New("controller response lacks order id")
)
