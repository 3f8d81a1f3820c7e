package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/suspectuso/attention-tracker/internal/zone"
)

// --- Receipts ---

// InsertReceipt records a delivered zone-entry alert. It returns false when
// a receipt for the same chat, token, zone and entry already exists.
func (s *Storage) InsertReceipt(ctx context.Context, r *Receipt) (bool, error) {
	if r == nil || r.TokenAddress == "" || !r.Zone.Valid() {
		return false, ErrInvalidInput
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO receipts (chat_id, token_address, zone, entered_at, message_id, entry_mcap, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ChatID, r.TokenAddress, string(r.Zone), toMillis(r.EnteredAt), r.MessageID, r.EntryMcap, toMillis(createdAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert receipt: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}

	r.ID, _ = result.LastInsertId()
	r.CreatedAt = createdAt
	return true, nil
}

// HasReceipt reports whether a receipt exists for the chat and zone entry
func (s *Storage) HasReceipt(ctx context.Context, chatID int64, address string, z zone.Zone, enteredAt time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM receipts
		 WHERE chat_id = ? AND token_address = ? AND zone = ? AND entered_at = ?`,
		chatID, address, string(z), toMillis(enteredAt),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check receipt: %w", err)
	}
	return n > 0, nil
}

// ReceiptsForToken returns all receipts of a token, oldest first, with
// their notified checkpoints
func (s *Storage) ReceiptsForToken(ctx context.Context, address string) ([]Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, token_address, zone, entered_at, message_id, entry_mcap, created_at
		 FROM receipts WHERE token_address = ?
		 ORDER BY created_at, id`,
		address,
	)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}

	var receipts []Receipt
	index := make(map[int64]int)
	for rows.Next() {
		var r Receipt
		var name string
		var enteredAt, createdAt int64
		if err := rows.Scan(&r.ID, &r.ChatID, &r.TokenAddress, &name, &enteredAt, &r.MessageID, &r.EntryMcap, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan receipt row: %w", err)
		}
		r.Zone = zone.Zone(name)
		r.EnteredAt = fromMillis(enteredAt)
		r.CreatedAt = fromMillis(createdAt)
		index[r.ID] = len(receipts)
		receipts = append(receipts, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(receipts) == 0 {
		return nil, nil
	}

	cpRows, err := s.db.QueryContext(ctx,
		`SELECT c.receipt_id, c.multiple FROM receipt_checkpoints c
		 JOIN receipts r ON r.id = c.receipt_id
		 WHERE r.token_address = ?
		 ORDER BY c.multiple`,
		address,
	)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer cpRows.Close()

	for cpRows.Next() {
		var id int64
		var multiple float64
		if err := cpRows.Scan(&id, &multiple); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		if i, ok := index[id]; ok {
			receipts[i].Checkpoints = append(receipts[i].Checkpoints, multiple)
		}
	}

	return receipts, cpRows.Err()
}

// MarkCheckpoint records that multiple was notified for a receipt. It
// returns false when it was already recorded.
func (s *Storage) MarkCheckpoint(ctx context.Context, receiptID int64, multiple float64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO receipt_checkpoints (receipt_id, multiple, notified_at) VALUES (?, ?, ?)",
		receiptID, multiple, toMillis(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("mark checkpoint: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
