package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordScan stores a scan event and bumps the token's aggregate counters.
// The token must exist.
func (s *Storage) RecordScan(ctx context.Context, ev *ScanEvent) error {
	if ev == nil || ev.TokenAddress == "" || ev.GroupID == "" {
		return ErrInvalidInput
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE tokens SET scan_count = scan_count + 1 WHERE address = ?",
			ev.TokenAddress,
		)
		if err != nil {
			return fmt.Errorf("bump scan count: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return ErrNotFound
		}

		result, err = tx.ExecContext(ctx,
			`INSERT INTO scans (token_address, source, group_id, group_name, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			ev.TokenAddress, ev.Source, ev.GroupID, ev.GroupName, toMillis(createdAt),
		)
		if err != nil {
			return fmt.Errorf("insert scan: %w", err)
		}
		ev.ID, _ = result.LastInsertId()
		ev.CreatedAt = createdAt

		_, err = tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO token_groups (token_address, group_id) VALUES (?, ?)",
			ev.TokenAddress, ev.GroupID,
		)
		if err != nil {
			return fmt.Errorf("insert token group: %w", err)
		}
		return nil
	})
}

// ScansSince returns the token's scans created at or after since, oldest first
func (s *Storage) ScansSince(ctx context.Context, address string, since time.Time) ([]ScanEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, token_address, source, group_id, group_name, created_at
		 FROM scans WHERE token_address = ? AND created_at >= ?
		 ORDER BY created_at, id`,
		address, toMillis(since),
	)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var scans []ScanEvent
	for rows.Next() {
		var ev ScanEvent
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.TokenAddress, &ev.Source, &ev.GroupID, &ev.GroupName, &createdAt); err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		ev.CreatedAt = fromMillis(createdAt)
		scans = append(scans, ev)
	}

	return scans, rows.Err()
}

// WindowCounts is the number of scans and distinct groups of one token
// inside a window
type WindowCounts struct {
	Scans  int
	Groups int
}

// WindowCountsSince returns scan and distinct group counts per token for
// every token scanned at or after since
func (s *Storage) WindowCountsSince(ctx context.Context, since time.Time) (map[string]WindowCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token_address, COUNT(*), COUNT(DISTINCT group_id)
		 FROM scans WHERE created_at >= ?
		 GROUP BY token_address`,
		toMillis(since),
	)
	if err != nil {
		return nil, fmt.Errorf("query window counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]WindowCounts)
	for rows.Next() {
		var addr string
		var c WindowCounts
		if err := rows.Scan(&addr, &c.Scans, &c.Groups); err != nil {
			return nil, fmt.Errorf("scan window counts row: %w", err)
		}
		out[addr] = c
	}

	return out, rows.Err()
}
