package contacts

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// BookLoader reads contacts from the address-book SQLite databases on
// disk. The book may be split across per-source database files; every
// matched file contributes to one merged result.
type BookLoader struct {
	paths []string
}

// NewBookLoader creates a loader over explicit database paths.
func NewBookLoader(paths []string) *BookLoader {
	return &BookLoader{paths: paths}
}

// DiscoverBooks returns the address-book database files under root
// (the user's address-book support directory): the top-level database
// plus one per synced source.
func DiscoverBooks(root string) []string {
	var paths []string
	if p := filepath.Join(root, "AddressBook-v22.abcddb"); fileExists(p) {
		paths = append(paths, p)
	}
	matches, _ := filepath.Glob(filepath.Join(root, "Sources", "*", "AddressBook-v22.abcddb"))
	for _, m := range matches {
		if fileExists(m) {
			paths = append(paths, m)
		}
	}
	return paths
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Load reads every configured database and merges records by display
// name. Read-only; the books are owned by the OS.
func (l *BookLoader) Load(ctx context.Context) ([]Contact, error) {
	if len(l.paths) == 0 {
		return nil, fmt.Errorf("no address book databases configured")
	}

	byName := make(map[string]*Contact)
	var order []string
	for _, path := range l.paths {
		if err := l.loadOne(ctx, path, byName, &order); err != nil {
			return nil, fmt.Errorf("load address book %s: %w", path, err)
		}
	}

	out := make([]Contact, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func (l *BookLoader) loadOne(ctx context.Context, path string, byName map[string]*Contact, order *[]string) error {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=3000")
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	names := make(map[int64]string)
	rows, err := db.QueryContext(ctx, `
		SELECT Z_PK,
			TRIM(COALESCE(ZFIRSTNAME, '') || ' ' || COALESCE(ZLASTNAME, '')),
			COALESCE(ZORGANIZATION, '')
		FROM ZABCDRECORD`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			pk        int64
			name, org string
		)
		if err := rows.Scan(&pk, &name, &org); err != nil {
			_ = rows.Close()
			return err
		}
		if name == "" {
			name = org
		}
		if name != "" {
			names[pk] = name
		}
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	get := func(pk int64) *Contact {
		name, ok := names[pk]
		if !ok {
			return nil
		}
		key := strings.ToLower(name)
		c, ok := byName[key]
		if !ok {
			c = &Contact{Name: name}
			byName[key] = c
			*order = append(*order, key)
		}
		return c
	}

	rows, err = db.QueryContext(ctx, `SELECT ZOWNER, COALESCE(ZFULLNUMBER, '') FROM ZABCDPHONENUMBER`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			owner int64
			num   string
		)
		if err := rows.Scan(&owner, &num); err != nil {
			_ = rows.Close()
			return err
		}
		if c := get(owner); c != nil && num != "" {
			c.Phones = append(c.Phones, num)
		}
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = db.QueryContext(ctx, `SELECT ZOWNER, COALESCE(ZADDRESS, '') FROM ZABCDEMAILADDRESS`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			owner int64
			addr  string
		)
		if err := rows.Scan(&owner, &addr); err != nil {
			_ = rows.Close()
			return err
		}
		if c := get(owner); c != nil && addr != "" {
			c.Emails = append(c.Emails, addr)
		}
	}
	return closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}
