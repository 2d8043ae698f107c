package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a customer id does not exist or was deleted.
var ErrNotFound = errors.New("not found")

type DB struct {
	conn *sql.DB
	path string

	cacheMu  sync.RWMutex
	settings map[string]string
}

func New(path string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(2)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn, path: path, settings: make(map[string]string)}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if err := db.loadSettingsCache(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseSizeBytes returns the size of the database file plus its
// write-ahead log, which holds pages not yet checkpointed.
func (db *DB) DatabaseSizeBytes() (int64, error) {
	info, err := os.Stat(db.path)
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if wal, err := os.Stat(db.path + "-wal"); err == nil {
		size += wal.Size()
	}
	return size, nil
}

const timeLayout = "2006-01-02 15:04:05"

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func (db *DB) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id           TEXT    PRIMARY KEY,
			name         TEXT    NOT NULL,
			email        TEXT    NOT NULL DEFAULT '',
			phone        TEXT    NOT NULL DEFAULT '',
			from_address TEXT    NOT NULL DEFAULT '',
			to_address   TEXT    NOT NULL DEFAULT '',
			moving_date  TEXT    NOT NULL DEFAULT '',
			notes        TEXT    NOT NULL DEFAULT '',
			tags         TEXT    NOT NULL DEFAULT '[]',
			is_deleted   INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at   TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_is_deleted ON customers(is_deleted)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS merge_log (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			mode          TEXT    NOT NULL,
			master_id     TEXT    NOT NULL,
			removed_ids   TEXT    NOT NULL DEFAULT '[]',
			match_type    TEXT    NOT NULL DEFAULT '',
			confidence    REAL    NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_merge_log_created_at ON merge_log(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w\nstatement: %s", err, stmt)
		}
	}

	return nil
}
