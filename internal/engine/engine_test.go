package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/imsglab/imsg/internal/bus"
	"github.com/imsglab/imsg/internal/chatdb"
	"github.com/imsglab/imsg/internal/contacts"
	"github.com/imsglab/imsg/internal/imessage"
	"github.com/imsglab/imsg/internal/resolve"
	"github.com/imsglab/imsg/internal/send"
	"go.uber.org/zap"
)

type fakeStore struct {
	recentCalls int
	searchCalls int
	unreadCalls int
	probeErr    error

	gotSince time.Time
	gotAddrs []string
	gotTerm  string

	handles  []chatdb.Handle
	messages []chatdb.Message
	scored   []chatdb.ScoredMessage
	chats    []chatdb.Chat
}

func (s *fakeStore) RecentMessages(since time.Time, addrs []string, limit int) ([]chatdb.Message, error) {
	s.recentCalls++
	s.gotSince = since
	s.gotAddrs = addrs
	return s.messages, nil
}

func (s *fakeStore) UnreadMessages(limit int) ([]chatdb.Message, error) {
	s.unreadCalls++
	return s.messages, nil
}

func (s *fakeStore) SearchMessages(term string, since time.Time, threshold, limit int) ([]chatdb.ScoredMessage, error) {
	s.searchCalls++
	s.gotTerm = term
	s.gotSince = since
	return s.scored, nil
}

func (s *fakeStore) ListChats(limit int) ([]chatdb.Chat, error) { return s.chats, nil }

func (s *fakeStore) ListHandles() ([]chatdb.Handle, error) { return s.handles, nil }

func (s *fakeStore) Probe() error { return s.probeErr }

type fakeSender struct {
	got     *send.Request
	outcome *send.Outcome
	err     error
}

func (s *fakeSender) Send(ctx context.Context, req send.Request) (*send.Outcome, error) {
	s.got = &req
	if s.outcome != nil {
		return s.outcome, s.err
	}
	return &send.Outcome{Recipient: req.Recipient, Target: req.Target, Delivered: true}, s.err
}

type fakeMessenger struct {
	available  bool
	probeCalls int
	probedWith string
}

func (m *fakeMessenger) CheckAvailability(ctx context.Context, handle string) (bool, error) {
	m.probeCalls++
	m.probedWith = handle
	return m.available, nil
}

func (m *fakeMessenger) Send(ctx context.Context, ch imessage.Channel, handle, body string) error {
	return nil
}

func (m *fakeMessenger) SendToChat(ctx context.Context, chatID, body string) error { return nil }

type fakeLoader struct {
	contacts []contacts.Contact
	err      error
	loads    int
}

func (l *fakeLoader) Load(ctx context.Context) ([]contacts.Contact, error) {
	l.loads++
	return l.contacts, l.err
}

func newEngine(t *testing.T, store *fakeStore, loader *fakeLoader, sender *fakeSender, client *fakeMessenger) *Engine {
	t.Helper()
	return newEngineWithPending(t, store, loader, sender, client, nil)
}

func newEngineWithPending(t *testing.T, store *fakeStore, loader *fakeLoader, sender *fakeSender, client *fakeMessenger, pending CandidateStore) *Engine {
	t.Helper()
	logger := zap.NewNop()
	dir := contacts.NewDirectory(loader, contacts.DefaultTTL, bus.New(), logger)
	res := resolve.NewResolver(store, dir, logger)
	return New(store, dir, res, sender, client, pending, logger)
}

func TestRecentMessagesRejectsBadHours(t *testing.T) {
	store := &fakeStore{}
	e := newEngine(t, store, &fakeLoader{}, &fakeSender{}, &fakeMessenger{})

	for _, hours := range []int{0, -1, 721} {
		_, err := e.RecentMessages(context.Background(), hours, "")
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("hours=%d: expected ValidationError, got %v", hours, err)
		}
	}
	if store.recentCalls != 0 {
		t.Errorf("store queried %d times before validation", store.recentCalls)
	}
}

func TestRecentMessagesWindow(t *testing.T) {
	store := &fakeStore{messages: []chatdb.Message{{ID: 1, Body: "hi"}}}
	e := newEngine(t, store, &fakeLoader{}, &fakeSender{}, &fakeMessenger{})

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	msgs, err := e.RecentMessages(context.Background(), 24, "")
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if want := fixed.Add(-24 * time.Hour); !store.gotSince.Equal(want) {
		t.Errorf("since = %v, want %v", store.gotSince, want)
	}
	if store.gotAddrs != nil {
		t.Errorf("expected no address filter, got %v", store.gotAddrs)
	}
}

func TestRecentMessagesPhoneFilter(t *testing.T) {
	store := &fakeStore{}
	e := newEngine(t, store, &fakeLoader{}, &fakeSender{}, &fakeMessenger{})

	if _, err := e.RecentMessages(context.Background(), 24, "+1 (555) 123-4567"); err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(store.gotAddrs) == 0 {
		t.Fatal("expected phone variants in the address filter")
	}
	found := false
	for _, a := range store.gotAddrs {
		if a == "+15551234567" {
			found = true
		}
	}
	if !found {
		t.Errorf("address filter %v missing +15551234567", store.gotAddrs)
	}
}

func TestRecentMessagesNameFilter(t *testing.T) {
	store := &fakeStore{}
	loader := &fakeLoader{contacts: []contacts.Contact{
		{Name: "Alice Chen", Phones: []string{"+15551234567"}, Emails: []string{"alice@example.com"}},
	}}
	e := newEngine(t, store, loader, &fakeSender{}, &fakeMessenger{})

	if _, err := e.RecentMessages(context.Background(), 24, "Alice"); err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	var hasEmail bool
	for _, a := range store.gotAddrs {
		if a == "alice@example.com" {
			hasEmail = true
		}
	}
	if !hasEmail {
		t.Errorf("address filter %v missing the contact's email", store.gotAddrs)
	}
}

func TestRecentMessagesUnknownName(t *testing.T) {
	store := &fakeStore{}
	e := newEngine(t, store, &fakeLoader{}, &fakeSender{}, &fakeMessenger{})

	_, err := e.RecentMessages(context.Background(), 24, "Nobody Atall")
	var nf *resolve.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if store.recentCalls != 0 {
		t.Error("store queried despite unresolvable contact filter")
	}
}

func TestSearchMessagesValidation(t *testing.T) {
	store := &fakeStore{}
	e := newEngine(t, store, &fakeLoader{}, &fakeSender{}, &fakeMessenger{})

	cases := []struct {
		name      string
		term      string
		hours     int
		threshold int
	}{
		{"empty term", "   ", 24, 70},
		{"negative hours", "dinner", -1, 70},
		{"threshold too high", "dinner", 24, 150},
		{"threshold negative", "dinner", 24, -5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.SearchMessages(context.Background(), tc.term, tc.hours, tc.threshold)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
	if store.searchCalls != 0 {
		t.Errorf("store queried %d times before validation", store.searchCalls)
	}
}

func TestSearchMessagesTrimsTerm(t *testing.T) {
	store := &fakeStore{scored: []chatdb.ScoredMessage{{Score: 88}}}
	e := newEngine(t, store, &fakeLoader{}, &fakeSender{}, &fakeMessenger{})

	got, err := e.SearchMessages(context.Background(), "  dinner ", 24, 70)
	if err != nil {
		t.Fatalf("SearchMessages() error = %v", err)
	}
	if store.gotTerm != "dinner" {
		t.Errorf("term = %q, want %q", store.gotTerm, "dinner")
	}
	if len(got) != 1 || got[0].Score != 88 {
		t.Errorf("unexpected results %v", got)
	}
}

func TestFindContactValidation(t *testing.T) {
	loader := &fakeLoader{}
	e := newEngine(t, &fakeStore{}, loader, &fakeSender{}, &fakeMessenger{})

	_, err := e.FindContact(context.Background(), "")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if loader.loads != 0 {
		t.Error("directory loaded despite empty name")
	}
}

func TestSendMessageValidation(t *testing.T) {
	sender := &fakeSender{}
	e := newEngine(t, &fakeStore{}, &fakeLoader{}, sender, &fakeMessenger{})

	if _, err := e.SendMessage(context.Background(), "", "hi", false); err == nil {
		t.Error("empty recipient accepted")
	}
	if _, err := e.SendMessage(context.Background(), "+15551234567", "  ", false); err == nil {
		t.Error("empty body accepted")
	}
	if sender.got != nil {
		t.Error("send attempted despite invalid input")
	}
}

func TestSendMessageDirect(t *testing.T) {
	store := &fakeStore{handles: []chatdb.Handle{{ID: 1, Address: "+15551234567", Service: "iMessage"}}}
	sender := &fakeSender{}
	e := newEngine(t, store, &fakeLoader{}, sender, &fakeMessenger{})

	out, err := e.SendMessage(context.Background(), "555-123-4567", "lunch?", false)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if !out.Delivered {
		t.Error("outcome not delivered")
	}
	if sender.got.Target != "+15551234567" {
		t.Errorf("target = %q, want the store handle", sender.got.Target)
	}
	if sender.got.Group {
		t.Error("direct send flagged as group")
	}
	if sender.got.Strategy != string(resolve.StrategyPhone) {
		t.Errorf("strategy = %q, want %q", sender.got.Strategy, resolve.StrategyPhone)
	}
}

func TestSendMessageGroupBypassesResolution(t *testing.T) {
	loader := &fakeLoader{}
	sender := &fakeSender{}
	e := newEngine(t, &fakeStore{}, loader, sender, &fakeMessenger{})

	_, err := e.SendMessage(context.Background(), "chat831718", "standup moved", true)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if !sender.got.Group {
		t.Error("group flag not carried")
	}
	if sender.got.Target != "chat831718" {
		t.Errorf("target = %q, want the chat identifier", sender.got.Target)
	}
	if loader.loads != 0 {
		t.Error("group send touched the directory")
	}
}

func TestSendMessageAmbiguousThenSelection(t *testing.T) {
	loader := &fakeLoader{contacts: []contacts.Contact{
		{Name: "Bob Marsh", Phones: []string{"+15550001111"}},
		{Name: "Bob Marley", Phones: []string{"+15550002222"}},
	}}
	sender := &fakeSender{}
	e := newEngine(t, &fakeStore{}, loader, sender, &fakeMessenger{})

	_, err := e.SendMessage(context.Background(), "Bob", "hey", false)
	var amb *resolve.AmbiguousError
	if !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousError, got %v", err)
	}
	if len(amb.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(amb.Candidates))
	}
	if sender.got != nil {
		t.Fatal("send attempted on ambiguous recipient")
	}

	out, err := e.SendMessage(context.Background(), "candidate 2", "hey", false)
	if err != nil {
		t.Fatalf("selection send error = %v", err)
	}
	if out.Target != "+15550002222" {
		t.Errorf("target = %q, want the second candidate", out.Target)
	}

	// The pending set is consumed; a fresh selection has nothing to
	// point at.
	_, err = e.SendMessage(context.Background(), "candidate 1", "hey", false)
	var sel *resolve.SelectionError
	if !errors.As(err, &sel) {
		t.Errorf("expected SelectionError after pending set cleared, got %v", err)
	}
}

func TestSelectionSurvivesNewEngineInstance(t *testing.T) {
	loader := &fakeLoader{contacts: []contacts.Contact{
		{Name: "Bob Marsh", Phones: []string{"+15550001111"}},
		{Name: "Bob Marley", Phones: []string{"+15550002222"}},
	}}
	pending := NewFileCandidates(filepath.Join(t.TempDir(), "candidates.json"))

	// One invocation hits the ambiguity.
	first := newEngineWithPending(t, &fakeStore{}, loader, &fakeSender{}, &fakeMessenger{}, pending)
	_, err := first.SendMessage(context.Background(), "Bob", "hey", false)
	var amb *resolve.AmbiguousError
	if !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousError, got %v", err)
	}

	// The advised follow-up runs as a new process with a fresh engine
	// over the same state dir.
	sender := &fakeSender{}
	second := newEngineWithPending(t, &fakeStore{}, loader, sender, &fakeMessenger{}, NewFileCandidates(pending.path))
	out, err := second.SendMessage(context.Background(), "candidate 2", "hey", false)
	if err != nil {
		t.Fatalf("selection send error = %v", err)
	}
	if out.Target != "+15550002222" {
		t.Errorf("target = %q, want the second candidate", out.Target)
	}

	// Success clears the file; a third instance has nothing to select.
	third := newEngineWithPending(t, &fakeStore{}, loader, &fakeSender{}, &fakeMessenger{}, NewFileCandidates(pending.path))
	_, err = third.SendMessage(context.Background(), "candidate 1", "hey", false)
	var sel *resolve.SelectionError
	if !errors.As(err, &sel) {
		t.Errorf("expected SelectionError after selection consumed, got %v", err)
	}
}

func TestCheckIMessageAvailability(t *testing.T) {
	store := &fakeStore{handles: []chatdb.Handle{{ID: 1, Address: "+15551234567", Service: "iMessage"}}}
	client := &fakeMessenger{available: true}
	e := newEngine(t, store, &fakeLoader{}, &fakeSender{}, client)

	ok, err := e.CheckIMessageAvailability(context.Background(), "5551234567")
	if err != nil {
		t.Fatalf("CheckIMessageAvailability() error = %v", err)
	}
	if !ok {
		t.Error("expected available")
	}
	if client.probedWith != "+15551234567" {
		t.Errorf("probed %q, want the resolved handle", client.probedWith)
	}

	if _, err := e.CheckIMessageAvailability(context.Background(), ""); err == nil {
		t.Error("empty recipient accepted")
	}
}

func TestCheckStoreAccess(t *testing.T) {
	store := &fakeStore{}
	e := newEngine(t, store, &fakeLoader{}, &fakeSender{}, &fakeMessenger{})

	if d := e.CheckStoreAccess(); !d.Reachable {
		t.Errorf("healthy store reported unreachable: %+v", d)
	}

	store.probeErr = errors.New("unable to open database file")
	d := e.CheckStoreAccess()
	if d.Reachable {
		t.Error("failing store reported reachable")
	}
	if d.Detail == "" {
		t.Error("failure detail empty")
	}
}

func TestCheckDirectoryAccess(t *testing.T) {
	loader := &fakeLoader{}
	e := newEngine(t, &fakeStore{}, loader, &fakeSender{}, &fakeMessenger{})

	if d := e.CheckDirectoryAccess(context.Background()); !d.Reachable {
		t.Errorf("healthy directory reported unreachable: %+v", d)
	}

	loader.err = errors.New("permission denied")
	d := e.CheckDirectoryAccess(context.Background())
	if d.Reachable {
		t.Error("failing directory reported reachable")
	}
}
