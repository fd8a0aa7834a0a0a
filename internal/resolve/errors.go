package resolve

import "fmt"

// NotFoundError is returned when no strategy produced a recipient.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no recipient found for %q", e.Ref)
}

// AmbiguousError is returned when a name lookup produced several strong
// candidates; the caller disambiguates with a "candidate N" reference.
type AmbiguousError struct {
	Candidates []Candidate
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%d candidates match; pick one with \"candidate N\"", len(e.Candidates))
}

// SelectionError is returned for a "candidate N" reference that does not
// select anything: no prior candidate list, or N out of range.
type SelectionError struct {
	Index int
	Count int
}

func (e *SelectionError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("candidate %d selected but there is no prior candidate list", e.Index)
	}
	return fmt.Sprintf("candidate %d out of range (1-%d)", e.Index, e.Count)
}
