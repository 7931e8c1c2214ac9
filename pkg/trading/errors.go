package trading

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds is returned when a buy exceeds the paper balance
	ErrInsufficientFunds = errors.New("insufficient paper trading balance")

	// ErrNotAuthenticated is returned when no user context is present
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotFound is returned when a record does not exist for the user
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for malformed requests
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreFailure is returned when the record store rejects an operation
	ErrStoreFailure = errors.New("store failure")
)

// ValidationError describes a rejected input field
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap lets errors.Is match ErrInvalidInput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// StoreError wraps a record store failure with the step that failed
type StoreError struct {
	Step string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store failure at %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying store error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches ErrStoreFailure
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreFailure
}

// WrapStore wraps err as a StoreError for step. Domain errors (not found,
// invalid input) pass through untouched so callers can still match them.
func WrapStore(step string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrNotAuthenticated) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Step: step, Err: err}
}
