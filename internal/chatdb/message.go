package chatdb

import (
	"strings"
	"time"

	"github.com/imsglab/imsg/internal/appletime"
	"github.com/imsglab/imsg/internal/bus"
	"github.com/imsglab/imsg/internal/richbody"
	"go.uber.org/zap"
)

const messageColumns = `
	m.id,
	COALESCE(m.text, ''),
	m.rich_body,
	COALESCE(h.address, ''),
	COALESCE(m.service, ''),
	COALESCE(c.external_id, ''),
	m.sent_at,
	COALESCE(m.read_at, 0),
	COALESCE(m.delivered_at, 0),
	m.is_outgoing`

const messageJoins = `
	FROM message m
	LEFT JOIN handle h ON h.id = m.handle_id
	LEFT JOIN chat_message_join cmj ON cmj.message_id = m.id
	LEFT JOIN chat c ON c.id = cmj.chat_id`

// RecentMessages returns messages sent at or after since, newest first.
// A non-empty addrs set restricts rows to those handle addresses,
// compared case-insensitively; both filters are applied in SQL. The
// chat join can multiply rows for messages in several conversations, so
// results are grouped back to one row per message.
func (db *DB) RecentMessages(since time.Time, addrs []string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	q := "SELECT" + messageColumns + messageJoins + "\n\tWHERE m.sent_at >= ?"
	args := []any{appletime.FromTime(since)}
	if len(addrs) > 0 {
		q += " AND LOWER(h.address) IN (" + placeholders(len(addrs)) + ")"
		for _, a := range addrs {
			args = append(args, strings.ToLower(a))
		}
	}
	q += " GROUP BY m.id ORDER BY m.sent_at DESC LIMIT ?"
	args = append(args, limit)

	return db.queryMessages(q, args...)
}

// UnreadMessages returns incoming messages with no read timestamp, newest
// first. Read-state tracking in the store is version-dependent and not
// fully reliable; treat the result as best effort.
func (db *DB) UnreadMessages(limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	q := "SELECT" + messageColumns + messageJoins + `
	WHERE m.is_outgoing = 0 AND (m.read_at IS NULL OR m.read_at = 0)
	GROUP BY m.id ORDER BY m.sent_at DESC LIMIT ?`

	return db.queryMessages(q, limit)
}

func (db *DB) queryMessages(q string, args ...any) ([]Message, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, db.access(err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	var ids []int64
	for rows.Next() {
		var (
			m                          Message
			rich                       []byte
			text                       string
			rawSent, rawRead, rawDeliv int64
		)
		if err := rows.Scan(&m.ID, &text, &rich, &m.Sender, &m.Service, &m.ChatID,
			&rawSent, &rawRead, &rawDeliv, &m.Outgoing); err != nil {
			// One undecodable row must not abort the batch.
			db.logger.Warn("skipping unreadable message row", zap.Error(err))
			db.bus.Publish(bus.Event{Kind: bus.KindStoreRowSkipped, Timestamp: time.Now(), Payload: err.Error()})
			continue
		}
		m.Body = text
		if m.Body == "" && len(rich) > 0 {
			if decoded, ok := richbody.Decode(rich); ok {
				m.Body = decoded
			} else {
				db.logger.Debug("rich payload yielded no text", zap.Int64("id", m.ID))
			}
		}
		m.SentAt, _ = appletime.ToTime(rawSent)
		m.ReadAt, _ = appletime.ToTime(rawRead)
		m.DeliveredAt, _ = appletime.ToTime(rawDeliv)
		msgs = append(msgs, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, db.access(err)
	}

	if err := db.attachTo(msgs, ids); err != nil {
		return nil, err
	}
	return msgs, nil
}

// attachTo loads attachments for the given message ids in one batched
// query and attaches them to the matching messages.
func (db *DB) attachTo(msgs []Message, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	q := `
		SELECT maj.message_id, a.id, COALESCE(a.filename, ''), COALESCE(a.mime_type, ''), a.is_outgoing
		FROM attachment a
		JOIN message_attachment_join maj ON maj.attachment_id = a.id
		WHERE maj.message_id IN (` + placeholders(len(ids)) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return db.access(err)
	}
	defer func() { _ = rows.Close() }()

	byMsg := make(map[int64][]Attachment)
	for rows.Next() {
		var (
			msgID int64
			a     Attachment
		)
		if err := rows.Scan(&msgID, &a.ID, &a.Filename, &a.MimeType, &a.Outgoing); err != nil {
			db.logger.Warn("skipping unreadable attachment row", zap.Error(err))
			continue
		}
		byMsg[msgID] = append(byMsg[msgID], a)
	}
	if err := rows.Err(); err != nil {
		return db.access(err)
	}

	for i := range msgs {
		msgs[i].Attachments = byMsg[msgs[i].ID]
	}
	return nil
}

// ListHandles returns every handle in the store. The handle table is
// small (one row per correspondent), so loading it for in-memory phone
// matching is fine.
func (db *DB) ListHandles() ([]Handle, error) {
	rows, err := db.Query(`SELECT id, COALESCE(address, ''), COALESCE(service, '') FROM handle`)
	if err != nil {
		return nil, db.access(err)
	}
	defer func() { _ = rows.Close() }()

	var handles []Handle
	for rows.Next() {
		var h Handle
		if err := rows.Scan(&h.ID, &h.Address, &h.Service); err != nil {
			return nil, db.access(err)
		}
		handles = append(handles, h)
	}
	return handles, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
