package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			address TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			symbol TEXT NOT NULL,
			logo_uri TEXT NOT NULL DEFAULT '',
			current_mcap REAL NOT NULL DEFAULT 0,
			scan_count INTEGER NOT NULL DEFAULT 0,
			views INTEGER NOT NULL DEFAULT 0,
			post_count INTEGER NOT NULL DEFAULT 0,
			post_views INTEGER NOT NULL DEFAULT 0,
			latest_post_id TEXT NOT NULL DEFAULT '',
			attention_score INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS token_groups (
			token_address TEXT NOT NULL,
			group_id TEXT NOT NULL,
			PRIMARY KEY (token_address, group_id)
		)`,

		`CREATE TABLE IF NOT EXISTS scans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token_address TEXT NOT NULL,
			source TEXT NOT NULL,
			group_id TEXT NOT NULL,
			group_name TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_token_created ON scans(token_address, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_created ON scans(created_at)`,

		`CREATE TABLE IF NOT EXISTS zone_state (
			token_address TEXT NOT NULL,
			zone TEXT NOT NULL,
			entry_mcap REAL NOT NULL,
			ath_mcap REAL NOT NULL,
			entered_at INTEGER NOT NULL,
			PRIMARY KEY (token_address, zone)
		)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			chat_id INTEGER PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS subscription_zones (
			chat_id INTEGER NOT NULL,
			zone TEXT NOT NULL,
			PRIMARY KEY (chat_id, zone)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscription_zones_zone ON subscription_zones(zone)`,

		`CREATE TABLE IF NOT EXISTS receipts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			token_address TEXT NOT NULL,
			zone TEXT NOT NULL,
			entered_at INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			entry_mcap REAL NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (chat_id, token_address, zone, entered_at)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_token ON receipts(token_address)`,

		`CREATE TABLE IF NOT EXISTS receipt_checkpoints (
			receipt_id INTEGER NOT NULL,
			multiple REAL NOT NULL,
			notified_at INTEGER NOT NULL,
			PRIMARY KEY (receipt_id, multiple)
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// withTx runs fn inside a transaction, rolling back on error
func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
