package store

import "errors"

// Failure kinds returned by the store and the inventory service. Callers
// branch with errors.Is; none of these are fatal to the process.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("operation not valid for current status")
	ErrForbidden         = errors.New("actor lacks rights over the entity")
	ErrInsufficientSeats = errors.New("not enough available seats")
	ErrDuplicateBooking  = errors.New("passenger already holds a confirmed booking")
	ErrDuplicatePlate    = errors.New("plate already registered")
	ErrUnavailable       = errors.New("store unavailable")
)
