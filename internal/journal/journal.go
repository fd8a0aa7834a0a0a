// Package journal persists delivery outcomes in an app-owned SQLite
// database, one row per send attempt. It is the only store this program
// writes; the message store itself stays read-only.
package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/imsglab/imsg/internal/journal/migrations"
	"github.com/imsglab/imsg/internal/send"
	_ "github.com/mattn/go-sqlite3"
)

// Journal wraps the journal database.
type Journal struct {
	*sql.DB
}

// Entry is one recorded delivery outcome.
type Entry struct {
	ID        string
	Recipient string
	Target    string
	Strategy  string
	Group     bool
	Delivered bool
	Channel   string
	Trail     []string
	Detail    string
	CreatedAt time.Time
}

// Open opens (creating if needed) the journal at path and applies any
// pending migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	j := &Journal{db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(j.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up: %w", err)
	}
	return nil
}

// Record persists one delivery outcome.
func (j *Journal) Record(o *send.Outcome) error {
	trail := make([]string, len(o.Trail))
	for i, s := range o.Trail {
		trail[i] = string(s)
	}
	detail := ""
	for _, a := range o.Attempts {
		if a.Err != "" {
			detail = a.Err
		}
	}
	_, err := j.Exec(`
		INSERT INTO send_attempts (id, recipient, target, strategy, grp, delivered, channel, trail, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RequestID, o.Recipient, o.Target, o.Strategy, o.Group, o.Delivered,
		string(o.Channel), strings.Join(trail, ">"), detail, time.Now().UnixMilli())
	return err
}

// Recent returns the newest entries, most recent first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.Query(`
		SELECT id, recipient, target, strategy, grp, delivered, channel, trail, detail, created_at
		FROM send_attempts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			trail     string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Recipient, &e.Target, &e.Strategy, &e.Group,
			&e.Delivered, &e.Channel, &trail, &e.Detail, &createdAt); err != nil {
			return nil, err
		}
		if trail != "" {
			e.Trail = strings.Split(trail, ">")
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
