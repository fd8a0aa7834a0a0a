// Package contacts loads the external address book, caches it as a
// whole-snapshot with a fixed TTL and answers fuzzy name and exact
// handle lookups against the snapshot.
package contacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/imsglab/imsg/internal/phone"
)

// Contact is one directory entry: a display name and the addresses
// associated with it.
type Contact struct {
	Name   string
	Phones []string
	Emails []string
}

// Addresses returns every address of the contact, phones first.
func (c Contact) Addresses() []string {
	out := make([]string, 0, len(c.Phones)+len(c.Emails))
	out = append(out, c.Phones...)
	out = append(out, c.Emails...)
	return out
}

// HasHandle reports whether addr matches one of the contact's addresses,
// using phone fuzzy-equality for phone-shaped input and case-insensitive
// equality for email.
func (c Contact) HasHandle(addr string) bool {
	if phone.Shaped(addr) {
		for _, p := range c.Phones {
			if phone.Same(p, addr) {
				return true
			}
		}
		return false
	}
	for _, e := range c.Emails {
		if strings.EqualFold(e, addr) {
			return true
		}
	}
	return false
}

// Candidate is a ranked name-lookup result.
type Candidate struct {
	Contact Contact
	Score   int
}

// Loader fetches the full address book from its external source.
type Loader interface {
	Load(ctx context.Context) ([]Contact, error)
}

// UnavailableError indicates the external directory could not be read.
// Lookups may still return best-effort results from a previous snapshot
// alongside this error.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("contact directory unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
