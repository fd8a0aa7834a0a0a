package send

import (
	"fmt"
	"slices"
)

// State is one stage of a delivery attempt.
type State string

const (
	NotAttempted      State = "NOT_ATTEMPTED"
	PrimaryAttempted  State = "PRIMARY_ATTEMPTED"
	FallbackAttempted State = "FALLBACK_ATTEMPTED"
	Delivered         State = "DELIVERED"
	Failed            State = "FAILED"
)

// validTransitions defines the delivery state machine. A send goes
// through the primary channel first when it is available; when the
// availability probe says otherwise the fallback channel is entered
// directly. Delivered and Failed are terminal. The fallback may be
// entered at most once per attempt.
var validTransitions = map[State][]State{
	NotAttempted:      {PrimaryAttempted, FallbackAttempted},
	PrimaryAttempted:  {Delivered, FallbackAttempted, Failed},
	FallbackAttempted: {Delivered, Failed},
	Delivered:         {},
	Failed:            {},
}

// machine tracks one delivery attempt's transitions. Attempts are
// per-request and single-goroutine, so no locking.
type machine struct {
	current State
	trail   []State
}

func newMachine() *machine {
	return &machine{current: NotAttempted, trail: []State{NotAttempted}}
}

// to moves the machine to next, recording the transition.
func (m *machine) to(next State) error {
	if !slices.Contains(validTransitions[m.current], next) {
		return fmt.Errorf("invalid delivery transition from %s to %s", m.current, next)
	}
	m.current = next
	m.trail = append(m.trail, next)
	return nil
}
