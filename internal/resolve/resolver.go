// Package resolve turns a free-form recipient reference into concrete
// addressable handles. Strategies run in a fixed priority order and the
// first that matches wins: a selection index into a prior ambiguous
// result, then phone shape, then email shape, then fuzzy contact name.
// Structural shape is unambiguous and cheap, so it is checked before the
// fuzzy path.
package resolve

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/imsglab/imsg/internal/chatdb"
	"github.com/imsglab/imsg/internal/contacts"
	"github.com/imsglab/imsg/internal/phone"
	"go.uber.org/zap"
)

// Strategy identifies which resolution strategy produced a result; kept
// on the result for diagnostics and deterministic re-resolution.
type Strategy string

const (
	StrategySelection Strategy = "selection"
	StrategyPhone     Strategy = "phone"
	StrategyEmail     Strategy = "email"
	StrategyName      Strategy = "name"
)

// nameFloor is the similarity a single name candidate must clear to
// resolve without disambiguation, on the same 0-100 scale as search.
const nameFloor = 80

// Candidate is one addressable identity a reference may resolve to.
type Candidate struct {
	Name    string // contact display name, may be empty
	Address string // handle address to deliver to
	Service string // store service, when known
}

// Resolution is the outcome of resolving one reference.
type Resolution struct {
	Strategy   Strategy
	Candidates []Candidate
	Ambiguous  bool
}

// Handle returns the single resolved address. Only meaningful when the
// resolution is not ambiguous.
func (r *Resolution) Handle() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].Address
}

// HandleSource lists the addressable handles known to the message store.
type HandleSource interface {
	ListHandles() ([]chatdb.Handle, error)
}

// Resolver resolves recipient references against the store's handles and
// the contact directory.
type Resolver struct {
	handles   HandleSource
	directory *contacts.Directory
	logger    *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(handles HandleSource, directory *contacts.Directory, logger *zap.Logger) *Resolver {
	return &Resolver{handles: handles, directory: directory, logger: logger}
}

var selectionRe = regexp.MustCompile(`(?i)^candidate\s+(\d+)$`)

// Resolve resolves ref. prior carries the candidate list from an earlier
// ambiguous resolution so a "candidate N" reference can select from it.
func (r *Resolver) Resolve(ctx context.Context, ref string, prior []Candidate) (*Resolution, error) {
	ref = strings.TrimSpace(ref)

	if m := selectionRe.FindStringSubmatch(ref); m != nil {
		return r.resolveSelection(m[1], prior)
	}
	if phone.Shaped(ref) {
		return r.resolvePhone(ref)
	}
	if strings.Contains(ref, "@") {
		return r.resolveEmail(ref)
	}
	return r.resolveName(ctx, ref)
}

func (r *Resolver) resolveSelection(digits string, prior []Candidate) (*Resolution, error) {
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > len(prior) {
		if err != nil {
			n = 0
		}
		return nil, &SelectionError{Index: n, Count: len(prior)}
	}
	r.logger.Debug("recipient resolved by selection", zap.Int("index", n))
	return &Resolution{
		Strategy:   StrategySelection,
		Candidates: []Candidate{prior[n-1]},
	}, nil
}

func (r *Resolver) resolvePhone(ref string) (*Resolution, error) {
	handles, err := r.handles.ListHandles()
	if err != nil {
		return nil, err
	}

	var matched []Candidate
	for _, h := range handles {
		if phone.Same(h.Address, ref) {
			matched = append(matched, Candidate{Address: h.Address, Service: h.Service})
		}
	}
	if len(matched) == 0 {
		// No conversation with this number yet; deliver to the
		// normalized form directly.
		matched = []Candidate{{Address: phone.Normalize(ref)}}
	}
	r.logger.Debug("recipient resolved by phone shape", zap.Int("handles", len(matched)))
	return &Resolution{Strategy: StrategyPhone, Candidates: matched}, nil
}

func (r *Resolver) resolveEmail(ref string) (*Resolution, error) {
	handles, err := r.handles.ListHandles()
	if err != nil {
		return nil, err
	}
	for _, h := range handles {
		if strings.EqualFold(h.Address, ref) {
			return &Resolution{
				Strategy:   StrategyEmail,
				Candidates: []Candidate{{Address: h.Address, Service: h.Service}},
			}, nil
		}
	}
	return nil, &NotFoundError{Ref: ref}
}

func (r *Resolver) resolveName(ctx context.Context, ref string) (*Resolution, error) {
	ranked, err := r.directory.LookupByName(ctx, ref)
	if err != nil && ranked == nil {
		return nil, err
	}

	var strong []contacts.Candidate
	for _, c := range ranked {
		if c.Score >= nameFloor && len(c.Contact.Addresses()) > 0 {
			strong = append(strong, c)
		}
	}
	switch {
	case len(strong) == 0:
		return nil, &NotFoundError{Ref: ref}
	case len(strong) == 1:
		// One contact above the floor resolves directly; all of their
		// addresses ride along as delivery candidates.
		c := strong[0].Contact
		var cands []Candidate
		for _, addr := range c.Addresses() {
			cands = append(cands, Candidate{Name: c.Name, Address: addr})
		}
		r.logger.Debug("recipient resolved by name", zap.String("name", c.Name))
		return &Resolution{Strategy: StrategyName, Candidates: cands}, nil
	default:
		// Several contacts qualify: one candidate per contact, primary
		// address each, for the caller to pick from.
		var cands []Candidate
		for _, s := range strong {
			cands = append(cands, Candidate{Name: s.Contact.Name, Address: s.Contact.Addresses()[0]})
		}
		return &Resolution{Strategy: StrategyName, Candidates: cands, Ambiguous: true},
			&AmbiguousError{Candidates: cands}
	}
}
