package chatdb

import "fmt"

// AccessError indicates the message store could not be opened or read,
// typically a missing grant of disk access to the calling process or a
// writer holding the store locked.
type AccessError struct {
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("message store %s is not readable (check disk-access permissions): %v", e.Path, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }
