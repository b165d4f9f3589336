package domain

import "errors"

// Domain errors are expected outcomes of guarded ledger operations. They are
// returned directly to the caller and never retried or logged as incidents.
var (
	ErrInsufficientResource = errors.New("insufficient resource") // Guard precondition failed (balance too low)
	ErrNotFound             = errors.New("not found")             // Referenced user or counter row does not exist
	ErrInvalidQuantity      = errors.New("invalid quantity")      // Non-positive or non-integer quantity
	ErrEmailTaken           = errors.New("email already registered") // Registration with a duplicate email
)
