package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/imsglab/imsg/internal/bus"
	"github.com/imsglab/imsg/internal/imessage"
	"github.com/imsglab/imsg/internal/send"
	"go.uber.org/zap"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func outcome(id string, delivered bool) *send.Outcome {
	o := &send.Outcome{
		RequestID: id,
		Recipient: "Alice Jones",
		Target:    "+15551234567",
		Strategy:  "name",
		Delivered: delivered,
		Trail:     []send.State{send.NotAttempted, send.PrimaryAttempted, send.Delivered},
	}
	if delivered {
		o.Channel = imessage.ChannelIMessage
	} else {
		o.Trail = []send.State{send.NotAttempted, send.FallbackAttempted, send.Failed}
		o.Attempts = []send.Attempt{{Channel: imessage.ChannelSMS, Err: "carrier down"}}
	}
	return o
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	// Re-opening an already migrated journal must not fail.
	j, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = j.Close()
}

func TestRecordAndRecent(t *testing.T) {
	j := testJournal(t)

	if err := j.Record(outcome("req-1", true)); err != nil {
		t.Fatal(err)
	}
	if err := j.Record(outcome("req-2", false)); err != nil {
		t.Fatal(err)
	}

	entries, err := j.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	byID := map[string]Entry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	ok := byID["req-1"]
	if !ok.Delivered || ok.Channel != "imessage" {
		t.Errorf("delivered entry = %+v", ok)
	}
	failed := byID["req-2"]
	if failed.Delivered || failed.Detail != "carrier down" {
		t.Errorf("failed entry = %+v", failed)
	}
	if len(failed.Trail) != 3 || failed.Trail[2] != "FAILED" {
		t.Errorf("trail = %v", failed.Trail)
	}
}

func TestRecorderPersistsFinalEvents(t *testing.T) {
	j := testJournal(t)
	b := bus.New()
	r := NewRecorder(j, b, zap.NewNop())
	r.Start(context.Background())
	defer r.Stop()

	// Intermediate events are ignored; final ones are persisted.
	b.Publish(bus.Event{Kind: bus.KindSendAttempted, Payload: outcome("req-3", true)})
	b.Publish(bus.Event{Kind: bus.KindSendDelivered, Payload: outcome("req-3", true)})

	deadline := time.After(2 * time.Second)
	for {
		entries, err := j.Recent(10)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) == 1 && entries[0].ID == "req-3" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("entry not recorded, have %+v", entries)
		case <-time.After(20 * time.Millisecond):
		}
	}
}
