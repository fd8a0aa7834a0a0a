// Package chatdb is a read-only query facade over the externally owned
// message store: the message, handle, chat and attachment relations and
// their join tables. It never writes; every operation filters at the
// query layer rather than scanning whole tables into memory.
package chatdb

import (
	"database/sql"
	"os"

	"github.com/imsglab/imsg/internal/bus"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB wraps a read-only SQLite connection to the message store.
type DB struct {
	*sql.DB
	path   string
	logger *zap.Logger
	bus    *bus.Bus
}

// Open opens the store read-only. Open failures, including permission
// denials, are reported as *AccessError.
func Open(path string, logger *zap.Logger, b *bus.Bus) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &AccessError{Path: path, Err: err}
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=3000")
	if err != nil {
		return nil, &AccessError{Path: path, Err: err}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &AccessError{Path: path, Err: err}
	}
	return &DB{DB: db, path: path, logger: logger, bus: b}, nil
}

// Probe runs a cheap read to confirm the store is still reachable.
func (db *DB) Probe() error {
	var n int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM message`).Scan(&n); err != nil {
		return &AccessError{Path: db.path, Err: err}
	}
	return nil
}

// access wraps a query failure as an *AccessError for this store.
func (db *DB) access(err error) error {
	return &AccessError{Path: db.path, Err: err}
}
