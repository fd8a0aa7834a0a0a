// Package imessage drives the system automation surface that owns actual
// message delivery. The engine only needs a narrow contract from it:
// a primary-channel availability probe and a send per channel, each a
// blocking call with an explicit timeout.
package imessage

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Channel is a delivery channel.
type Channel string

const (
	// ChannelIMessage is the primary channel, preferred when the
	// recipient is reachable on it.
	ChannelIMessage Channel = "imessage"
	// ChannelSMS is the carrier-protocol fallback.
	ChannelSMS Channel = "sms"
)

// Messenger is the contract the send orchestrator consumes.
type Messenger interface {
	// CheckAvailability reports whether handle is reachable on the
	// primary channel.
	CheckAvailability(ctx context.Context, handle string) (bool, error)
	// Send delivers body to handle over the given channel.
	Send(ctx context.Context, ch Channel, handle, body string) error
	// SendToChat delivers body to a conversation by its external
	// identifier (group sends).
	SendToChat(ctx context.Context, chatID, body string) error
}

// DefaultTimeout bounds each automation invocation.
const DefaultTimeout = 8 * time.Second

// runner executes one automation script and returns its output.
// Swapped out in tests.
type runner func(ctx context.Context, script string) (string, error)

// Client runs automation scripts through osascript.
type Client struct {
	timeout time.Duration
	logger  *zap.Logger
	run     runner
}

// NewClient creates a client. A timeout of zero selects DefaultTimeout.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{timeout: timeout, logger: logger}
	c.run = c.osascript
	return c
}

func (c *Client) osascript(ctx context.Context, script string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("automation call timed out after %s: %w", c.timeout, ctx.Err())
	}
	if err != nil {
		return "", fmt.Errorf("automation call failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// CheckAvailability probes the primary channel for handle.
func (c *Client) CheckAvailability(ctx context.Context, handle string) (bool, error) {
	script := fmt.Sprintf(`tell application "Messages"
	set targetService to 1st account whose service type = iMessage
	return exists (participant "%s" of targetService)
end tell`, escape(handle))

	out, err := c.run(ctx, script)
	if err != nil {
		return false, err
	}
	return out == "true", nil
}

// Send delivers body to handle over ch.
func (c *Client) Send(ctx context.Context, ch Channel, handle, body string) error {
	serviceType := "iMessage"
	if ch == ChannelSMS {
		serviceType = "SMS"
	}
	script := fmt.Sprintf(`tell application "Messages"
	set targetService to 1st account whose service type = %s
	send "%s" to participant "%s" of targetService
end tell`, serviceType, escape(body), escape(handle))

	_, err := c.run(ctx, script)
	if err == nil {
		c.logger.Info("message handed to automation surface",
			zap.String("channel", string(ch)))
	}
	return err
}

// SendToChat delivers body to the conversation with the given external
// identifier. Group conversations are addressed this way.
func (c *Client) SendToChat(ctx context.Context, chatID, body string) error {
	script := fmt.Sprintf(`tell application "Messages"
	send "%s" to chat id "%s"
end tell`, escape(body), escape(chatID))

	_, err := c.run(ctx, script)
	return err
}

// escape makes s safe inside a double-quoted automation string literal.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
