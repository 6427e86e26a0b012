package account

import (
	"errors"
	"strings"
)

var (
	// ErrAccountNotFound is returned when an operation names an unknown account number.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateAccount is returned when registering an account number that already exists.
	ErrDuplicateAccount = errors.New("account number already exists")

	// ErrInvalidPIN is returned when the presented PIN does not authenticate the account.
	ErrInvalidPIN = errors.New("invalid PIN")

	// ErrValidation is the sentinel wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError lists every problem found in a registration request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, " ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
