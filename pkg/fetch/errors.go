package fetch

import (
	"fmt"
)

// ItemFetchError reports an item that could not be fetched or parsed.
type ItemFetchError struct {
	ID string

	// Status is the last HTTP status, 0 for transport and parse errors.
	Status int

	// Attempts is the number of requests made.
	Attempts int

	Err error
}

// Error implements the error interface.
func (e *ItemFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("item %s failed after %d attempt(s) (status %d): %v", e.ID, e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("item %s failed after %d attempt(s): %v", e.ID, e.Attempts, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ItemFetchError) Unwrap() error {
	return e.Err
}
