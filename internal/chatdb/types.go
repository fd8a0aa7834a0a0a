package chatdb

import "time"

// Message is one stored message, assembled from the message row, its
// handle, its chat association and any attachments. Body holds the plain
// text column when present, otherwise the text recovered from the rich
// payload; it may be empty when neither yields text.
type Message struct {
	ID          int64
	Body        string
	Sender      string // handle address; empty for some outgoing rows
	Service     string
	ChatID      string // chat external identifier
	SentAt      time.Time
	ReadAt      time.Time // zero = not read (or not tracked)
	DeliveredAt time.Time // zero = not delivered
	Outgoing    bool
	Attachments []Attachment
}

// Handle is one addressable identity (phone or email) in the store.
type Handle struct {
	ID      int64
	Address string
	Service string
}

// Chat is a conversation. Name falls back from the display name to the
// room name to the member list to the external identifier.
type Chat struct {
	ID         int64
	ExternalID string
	Name       string
	Service    string
}

// Attachment is a media object linked to a message.
type Attachment struct {
	ID       int64
	Filename string
	MimeType string
	Outgoing bool
}

// ScoredMessage pairs a message with its search similarity score.
type ScoredMessage struct {
	Message Message
	Score   int
}
