package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/suspectuso/attention-tracker/internal/zone"
)

// --- Subscriptions ---

// UpsertSubscription registers a chat, keeping existing zone opt-ins
func (s *Storage) UpsertSubscription(ctx context.Context, chatID int64, username string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (chat_id, username, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET username = excluded.username`,
		chatID, username, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// GetSubscription returns a chat's subscription
func (s *Storage) GetSubscription(ctx context.Context, chatID int64) (*Subscription, error) {
	var sub Subscription
	var createdAt int64

	err := s.db.QueryRowContext(ctx,
		"SELECT chat_id, username, created_at FROM subscriptions WHERE chat_id = ?",
		chatID,
	).Scan(&sub.ChatID, &sub.Username, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	sub.CreatedAt = fromMillis(createdAt)

	rows, err := s.db.QueryContext(ctx,
		"SELECT zone FROM subscription_zones WHERE chat_id = ?",
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscription zones: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan subscription zone: %w", err)
		}
		sub.Zones = sub.Zones.Add(zone.Zone(name))
	}

	return &sub, rows.Err()
}

// SetZone turns alerts for one zone on or off for a chat
func (s *Storage) SetZone(ctx context.Context, chatID int64, z zone.Zone, enabled bool) error {
	if !z.Valid() {
		return ErrInvalidInput
	}

	var err error
	if enabled {
		_, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO subscription_zones (chat_id, zone)
			 SELECT chat_id, ? FROM subscriptions WHERE chat_id = ?`,
			string(z), chatID,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			"DELETE FROM subscription_zones WHERE chat_id = ? AND zone = ?",
			chatID, string(z),
		)
	}
	if err != nil {
		return fmt.Errorf("set zone: %w", err)
	}
	return nil
}

// DisableAllZones drops every zone opt-in of a chat
func (s *Storage) DisableAllZones(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM subscription_zones WHERE chat_id = ?",
		chatID,
	)
	if err != nil {
		return fmt.Errorf("disable zones: %w", err)
	}
	return nil
}

// SubscribersForZone returns chat ids opted in to a zone
func (s *Storage) SubscribersForZone(ctx context.Context, z zone.Zone) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chat_id FROM subscription_zones WHERE zone = ? ORDER BY chat_id",
		string(z),
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// CountSubscribers returns the number of chats with at least one zone enabled
func (s *Storage) CountSubscribers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT chat_id) FROM subscription_zones",
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return n, nil
}
