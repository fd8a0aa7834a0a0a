// Package send drives the two-tier delivery protocol: probe the primary
// channel, send on it when available, otherwise (or on a failed primary
// invocation, exactly once) fall through to the carrier channel. Group
// sends are restricted to the primary channel by policy.
package send

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/imsglab/imsg/internal/bus"
	"github.com/imsglab/imsg/internal/imessage"
	"go.uber.org/zap"
)

// Request is one send to perform against an already resolved target.
type Request struct {
	Recipient string // the caller's original recipient reference
	Target    string // resolved handle address, or chat external id for groups
	Body      string
	Group     bool
	Strategy  string // resolution strategy, recorded for the journal
}

// Attempt records one channel invocation inside a send.
type Attempt struct {
	Channel imessage.Channel
	Err     string // empty on success
}

// Outcome reports how a send concluded: the channel that delivered (or
// empty), every state transition taken and every channel attempted, so
// the caller can report "sent via X" and diagnostics can replay the path.
type Outcome struct {
	RequestID string
	Recipient string
	Target    string
	Strategy  string
	Group     bool
	Delivered bool
	Channel   imessage.Channel
	Trail     []State
	Attempts  []Attempt
}

// DeliveryError is returned when every permitted channel was exhausted.
type DeliveryError struct {
	Tried []imessage.Channel
	Last  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed on %v: %v", e.Tried, e.Last)
}

func (e *DeliveryError) Unwrap() error { return e.Last }

// Orchestrator performs sends through the automation surface and
// publishes each transition on the bus.
type Orchestrator struct {
	client imessage.Messenger
	bus    *bus.Bus
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(client imessage.Messenger, b *bus.Bus, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{client: client, bus: b, logger: logger}
}

// Send performs one delivery attempt. The returned outcome is non-nil
// even on failure; the error is a *DeliveryError when all permitted
// channels were exhausted.
func (o *Orchestrator) Send(ctx context.Context, req Request) (*Outcome, error) {
	out := &Outcome{
		RequestID: uuid.New().String(),
		Recipient: req.Recipient,
		Target:    req.Target,
		Strategy:  req.Strategy,
		Group:     req.Group,
	}
	o.publish(bus.KindSendAttempted, out)

	var err error
	if req.Group {
		err = o.sendGroup(ctx, req, out)
	} else {
		err = o.sendDirect(ctx, req, out)
	}

	if out.Delivered {
		o.logger.Info("message delivered",
			zap.String("request_id", out.RequestID),
			zap.String("channel", string(out.Channel)))
		o.publish(bus.KindSendDelivered, out)
		return out, nil
	}
	o.logger.Warn("message delivery failed",
		zap.String("request_id", out.RequestID),
		zap.Error(err))
	o.publish(bus.KindSendFailed, out)
	return out, err
}

// sendDirect runs the single-recipient protocol: availability probe,
// primary when available, carrier otherwise, with exactly one fallback
// when the primary invocation itself fails.
func (o *Orchestrator) sendDirect(ctx context.Context, req Request, out *Outcome) error {
	m := newMachine()
	defer func() { out.Trail = m.trail }()

	available, probeErr := o.client.CheckAvailability(ctx, req.Target)
	if probeErr != nil {
		// An unanswerable probe counts as "not reachable on primary".
		o.logger.Warn("availability probe failed, using carrier channel",
			zap.String("request_id", out.RequestID), zap.Error(probeErr))
		available = false
	}

	if available {
		_ = m.to(PrimaryAttempted)
		err := o.client.Send(ctx, imessage.ChannelIMessage, req.Target, req.Body)
		out.Attempts = append(out.Attempts, attempt(imessage.ChannelIMessage, err))
		if err == nil {
			_ = m.to(Delivered)
			out.Delivered = true
			out.Channel = imessage.ChannelIMessage
			return nil
		}
		// The channel said available but the invocation failed: one
		// fallback, never a primary retry.
		o.publish(bus.KindSendFallback, out)
	}

	_ = m.to(FallbackAttempted)
	err := o.client.Send(ctx, imessage.ChannelSMS, req.Target, req.Body)
	out.Attempts = append(out.Attempts, attempt(imessage.ChannelSMS, err))
	if err == nil {
		_ = m.to(Delivered)
		out.Delivered = true
		out.Channel = imessage.ChannelSMS
		return nil
	}
	_ = m.to(Failed)
	return &DeliveryError{Tried: tried(out.Attempts), Last: err}
}

// sendGroup runs the group protocol: primary channel only. A failed
// group invocation is terminal; falling back to the carrier channel
// would splinter the conversation, so policy forbids it.
func (o *Orchestrator) sendGroup(ctx context.Context, req Request, out *Outcome) error {
	m := newMachine()
	defer func() { out.Trail = m.trail }()

	_ = m.to(PrimaryAttempted)
	err := o.client.SendToChat(ctx, req.Target, req.Body)
	out.Attempts = append(out.Attempts, attempt(imessage.ChannelIMessage, err))
	if err == nil {
		_ = m.to(Delivered)
		out.Delivered = true
		out.Channel = imessage.ChannelIMessage
		return nil
	}
	_ = m.to(Failed)
	return &DeliveryError{Tried: tried(out.Attempts), Last: err}
}

func (o *Orchestrator) publish(kind string, out *Outcome) {
	o.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: out})
}

func attempt(ch imessage.Channel, err error) Attempt {
	a := Attempt{Channel: ch}
	if err != nil {
		a.Err = err.Error()
	}
	return a
}

func tried(attempts []Attempt) []imessage.Channel {
	chs := make([]imessage.Channel, len(attempts))
	for i, a := range attempts {
		chs[i] = a.Channel
	}
	return chs
}
