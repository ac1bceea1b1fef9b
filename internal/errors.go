package internal

import (
	"errors"
	"fmt"
)

var ErrInvalidInput = errors.New("invalid input")
var ErrCodeCollision = errors.New("short code already exists")
var ErrCodeSpaceExhausted = errors.New("short code space exhausted")
var ErrNotFound = errors.New("mapping not found")

// StoreError wraps a failure of the mapping store that is not a uniqueness
// violation or a missing row.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// AsStoreError passes sentinel errors and existing store errors through and
// wraps everything else.
func AsStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	var storeErr *StoreError
	if errors.As(err, &storeErr) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCodeCollision) ||
		errors.Is(err, ErrInvalidInput) {
		return err
	}

	return &StoreError{Op: op, Err: err}
}
