// Package engine is the operation surface of the module: every exported
// method validates its inputs first and only then touches the message
// store, the contact directory or the automation surface.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imsglab/imsg/internal/chatdb"
	"github.com/imsglab/imsg/internal/contacts"
	"github.com/imsglab/imsg/internal/imessage"
	"github.com/imsglab/imsg/internal/match"
	"github.com/imsglab/imsg/internal/phone"
	"github.com/imsglab/imsg/internal/resolve"
	"github.com/imsglab/imsg/internal/send"
	"go.uber.org/zap"
)

const (
	// maxHours bounds every time window to 30 days; the store is local
	// and unbounded windows turn into full-table scans.
	maxHours = 720

	// queryLimit caps the rows any single read operation returns.
	queryLimit = 100
)

// Store is the read surface of the message store the engine consumes.
type Store interface {
	RecentMessages(since time.Time, addrs []string, limit int) ([]chatdb.Message, error)
	UnreadMessages(limit int) ([]chatdb.Message, error)
	SearchMessages(term string, since time.Time, threshold, limit int) ([]chatdb.ScoredMessage, error)
	ListChats(limit int) ([]chatdb.Chat, error)
	ListHandles() ([]chatdb.Handle, error)
	Probe() error
}

// Sender performs one resolved send.
type Sender interface {
	Send(ctx context.Context, req send.Request) (*send.Outcome, error)
}

// Diagnostic is the result of an access probe. Probes never fail as
// errors; failures are folded into Detail.
type Diagnostic struct {
	Reachable bool
	Detail    string
}

// Engine wires the read, resolution and delivery components behind the
// validated operation set.
type Engine struct {
	store     Store
	directory *contacts.Directory
	resolver  *resolve.Resolver
	sender    Sender
	client    imessage.Messenger
	pending   CandidateStore
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an engine over the given components. A nil pending store
// falls back to process-local memory; callers that want "candidate N"
// to work across invocations pass a FileCandidates.
func New(store Store, directory *contacts.Directory, resolver *resolve.Resolver, sender Sender, client imessage.Messenger, pending CandidateStore, logger *zap.Logger) *Engine {
	if pending == nil {
		pending = &MemoryCandidates{}
	}
	return &Engine{
		store:     store,
		directory: directory,
		resolver:  resolver,
		sender:    sender,
		client:    client,
		pending:   pending,
		logger:    logger,
		now:       time.Now,
	}
}

// RecentMessages returns messages from the last hours hours, newest
// first. A non-empty contact narrows the result to that correspondent:
// phone- and email-shaped values filter directly, anything else goes
// through the directory and expands to the contact's full address set.
func (e *Engine) RecentMessages(ctx context.Context, hours int, contact string) ([]chatdb.Message, error) {
	if err := validateHours(hours); err != nil {
		return nil, err
	}

	var addrs []string
	if strings.TrimSpace(contact) != "" {
		set, err := e.addressSet(ctx, strings.TrimSpace(contact))
		if err != nil {
			return nil, err
		}
		addrs = set
	}

	since := e.now().Add(-time.Duration(hours) * time.Hour)
	return e.store.RecentMessages(since, addrs, queryLimit)
}

// UnreadMessages returns incoming messages without a read timestamp.
// The store's read flags are maintained by another process and lag or
// drift on some OS versions, so treat the result as best effort.
func (e *Engine) UnreadMessages(ctx context.Context) ([]chatdb.Message, error) {
	return e.store.UnreadMessages(queryLimit)
}

// SearchMessages ranks messages from the last hours hours against term,
// keeping those scoring at or above threshold.
func (e *Engine) SearchMessages(ctx context.Context, term string, hours, threshold int) ([]chatdb.ScoredMessage, error) {
	if strings.TrimSpace(term) == "" {
		return nil, &ValidationError{Field: "term", Reason: "must not be empty"}
	}
	if err := validateHours(hours); err != nil {
		return nil, err
	}
	if !match.ValidThreshold(threshold) {
		return nil, &ValidationError{Field: "threshold", Reason: "must be between 0 and 100"}
	}

	since := e.now().Add(-time.Duration(hours) * time.Hour)
	return e.store.SearchMessages(strings.TrimSpace(term), since, threshold, queryLimit)
}

// FindContact returns directory candidates ranked by name similarity.
func (e *Engine) FindContact(ctx context.Context, name string) ([]contacts.Candidate, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return e.directory.LookupByName(ctx, strings.TrimSpace(name))
}

// ListChats returns known conversations with their display names.
func (e *Engine) ListChats(ctx context.Context) ([]chatdb.Chat, error) {
	return e.store.ListChats(queryLimit)
}

// SendMessage resolves recipient and delivers body to it. With group
// set, recipient is taken as a chat external identifier and addressed
// directly; group sends never leave the primary channel. An ambiguous
// recipient returns the candidate list as an error, and the next call
// may reference it as "candidate N".
func (e *Engine) SendMessage(ctx context.Context, recipient, body string, group bool) (*send.Outcome, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, &ValidationError{Field: "recipient", Reason: "must not be empty"}
	}
	if strings.TrimSpace(body) == "" {
		return nil, &ValidationError{Field: "message", Reason: "must not be empty"}
	}

	if group {
		return e.sender.Send(ctx, send.Request{
			Recipient: recipient,
			Target:    recipient,
			Body:      body,
			Group:     true,
			Strategy:  "chat",
		})
	}

	res, err := e.resolveRecipient(ctx, recipient)
	if err != nil {
		return nil, err
	}
	return e.sender.Send(ctx, send.Request{
		Recipient: recipient,
		Target:    res.Handle(),
		Body:      body,
		Strategy:  string(res.Strategy),
	})
}

// CheckIMessageAvailability resolves recipient and probes whether the
// primary channel can reach it.
func (e *Engine) CheckIMessageAvailability(ctx context.Context, recipient string) (bool, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return false, &ValidationError{Field: "recipient", Reason: "must not be empty"}
	}
	res, err := e.resolveRecipient(ctx, recipient)
	if err != nil {
		return false, err
	}
	return e.client.CheckAvailability(ctx, res.Handle())
}

// CheckStoreAccess probes whether the message store can be opened and
// read.
func (e *Engine) CheckStoreAccess() Diagnostic {
	if err := e.store.Probe(); err != nil {
		return Diagnostic{Detail: err.Error()}
	}
	return Diagnostic{Reachable: true, Detail: "message store readable"}
}

// CheckDirectoryAccess probes whether the contact directory can be
// loaded.
func (e *Engine) CheckDirectoryAccess(ctx context.Context) Diagnostic {
	if err := e.directory.Refresh(ctx); err != nil {
		return Diagnostic{Detail: err.Error()}
	}
	return Diagnostic{Reachable: true, Detail: "contact directory loaded"}
}

// resolveRecipient runs the resolver with the last ambiguous candidate
// set, remembering a new ambiguous set and clearing it on success.
func (e *Engine) resolveRecipient(ctx context.Context, ref string) (*resolve.Resolution, error) {
	prior, loadErr := e.pending.Load()
	if loadErr != nil {
		e.logger.Warn("failed to load pending candidates", zap.Error(loadErr))
	}

	res, err := e.resolver.Resolve(ctx, ref, prior)

	var ambiguous *resolve.AmbiguousError
	switch {
	case errors.As(err, &ambiguous):
		if saveErr := e.pending.Save(res.Candidates); saveErr != nil {
			e.logger.Warn("failed to save pending candidates", zap.Error(saveErr))
		}
		return nil, err
	case err != nil:
		return nil, err
	}

	if clearErr := e.pending.Clear(); clearErr != nil {
		e.logger.Warn("failed to clear pending candidates", zap.Error(clearErr))
	}
	return res, nil
}

// addressSet expands a correspondent reference into the store addresses
// that may carry their messages.
func (e *Engine) addressSet(ctx context.Context, ref string) ([]string, error) {
	if phone.Shaped(ref) {
		return phone.Variants(ref), nil
	}
	if strings.Contains(ref, "@") {
		return []string{ref}, nil
	}

	ranked, err := e.directory.LookupByName(ctx, ref)
	if err != nil && ranked == nil {
		return nil, fmt.Errorf("look up %q: %w", ref, err)
	}
	if len(ranked) == 0 {
		return nil, &resolve.NotFoundError{Ref: ref}
	}

	var addrs []string
	for _, a := range ranked[0].Contact.Phones {
		addrs = append(addrs, phone.Variants(a)...)
	}
	addrs = append(addrs, ranked[0].Contact.Emails...)
	if len(addrs) == 0 {
		return nil, &resolve.NotFoundError{Ref: ref}
	}
	return addrs, nil
}

func validateHours(hours int) error {
	if hours < 1 || hours > maxHours {
		return &ValidationError{Field: "hours", Reason: fmt.Sprintf("must be between 1 and %d", maxHours)}
	}
	return nil
}
