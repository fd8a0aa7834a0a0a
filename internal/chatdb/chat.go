package chatdb

import "strings"

// ListChats returns chats with display names resolved through the
// fallback chain: display name, then room name, then the member list,
// then the external identifier.
func (db *DB) ListChats(limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT c.id,
			COALESCE(c.external_id, ''),
			COALESCE(NULLIF(c.display_name, ''), NULLIF(c.room_name, ''), '') AS name,
			COALESCE(c.service_name, '')
		FROM chat c
		ORDER BY c.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, db.access(err)
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	var unnamed []int64
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.ExternalID, &c.Name, &c.Service); err != nil {
			return nil, db.access(err)
		}
		if c.Name == "" {
			unnamed = append(unnamed, c.ID)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, db.access(err)
	}

	members, err := db.chatMembers(unnamed)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		if chats[i].Name != "" {
			continue
		}
		if m := members[chats[i].ID]; len(m) > 0 {
			chats[i].Name = strings.Join(m, ", ")
		} else {
			chats[i].Name = chats[i].ExternalID
		}
	}
	return chats, nil
}

// chatMembers returns member handle addresses for the given chat ids.
func (db *DB) chatMembers(ids []int64) (map[int64][]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `
		SELECT chj.chat_id, COALESCE(h.address, '')
		FROM chat_handle_join chj
		JOIN handle h ON h.id = chj.handle_id
		WHERE chj.chat_id IN (` + placeholders(len(ids)) + `)
		ORDER BY chj.chat_id, h.id`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, db.access(err)
	}
	defer func() { _ = rows.Close() }()

	members := make(map[int64][]string)
	for rows.Next() {
		var (
			chatID int64
			addr   string
		)
		if err := rows.Scan(&chatID, &addr); err != nil {
			return nil, db.access(err)
		}
		if addr != "" {
			members[chatID] = append(members[chatID], addr)
		}
	}
	return members, rows.Err()
}
