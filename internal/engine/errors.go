package engine

import "fmt"

// ValidationError rejects an operation input before any store or
// directory access happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
