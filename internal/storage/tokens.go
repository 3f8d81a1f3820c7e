package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/suspectuso/attention-tracker/internal/zone"
)

const tokenColumns = `t.address, t.name, t.symbol, t.logo_uri, t.current_mcap, t.scan_count,
	(SELECT COUNT(*) FROM token_groups g WHERE g.token_address = t.address),
	t.views, t.post_count, t.post_views, t.latest_post_id, t.attention_score, t.created_at`

// --- Tokens ---

// CreateToken inserts a token, returns false if it was already tracked
func (s *Storage) CreateToken(ctx context.Context, t *Token) (bool, error) {
	if t == nil || t.Address == "" {
		return false, ErrInvalidInput
	}

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tokens (address, name, symbol, logo_uri, current_mcap, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Address, t.Name, t.Symbol, t.LogoURI, t.CurrentMcap, toMillis(createdAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert token: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetToken returns a token with its zone state
func (s *Storage) GetToken(ctx context.Context, address string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens t WHERE t.address = ?`,
		address,
	)

	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	zones, err := s.zoneStates(ctx, `WHERE token_address = ?`, address)
	if err != nil {
		return nil, err
	}
	t.Zones = zones[address]
	if t.Zones == nil {
		t.Zones = make(map[zone.Zone]ZoneEntry)
	}

	return t, nil
}

// ActiveTokens returns every token occupying at least one zone
func (s *Storage) ActiveTokens(ctx context.Context) ([]Token, error) {
	tokens, err := s.queryTokens(ctx,
		`SELECT `+tokenColumns+` FROM tokens t
		 WHERE EXISTS (SELECT 1 FROM zone_state z WHERE z.token_address = t.address)
		 ORDER BY t.address`,
	)
	if err != nil {
		return nil, err
	}

	zones, err := s.zoneStates(ctx, "")
	if err != nil {
		return nil, err
	}

	for i := range tokens {
		tokens[i].Zones = zones[tokens[i].Address]
	}
	return tokens, nil
}

// RefreshableTokens returns tokens whose market cap is still worth
// refreshing. Old tokens that never took off are left out.
func (s *Storage) RefreshableTokens(ctx context.Context, now time.Time) ([]Token, error) {
	tokens, err := s.queryTokens(ctx,
		`SELECT `+tokenColumns+` FROM tokens t
		 WHERE NOT (t.created_at < ? AND t.current_mcap < 10000)
		   AND NOT (t.created_at < ? AND t.current_mcap < 30000)
		 ORDER BY t.address`,
		toMillis(now.Add(-2*time.Hour)), toMillis(now.Add(-8*time.Hour)),
	)
	if err != nil {
		return nil, err
	}

	zones, err := s.zoneStates(ctx, "")
	if err != nil {
		return nil, err
	}

	for i := range tokens {
		tokens[i].Zones = zones[tokens[i].Address]
	}
	return tokens, nil
}

func (s *Storage) queryTokens(ctx context.Context, query string, args ...any) ([]Token, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		tokens = append(tokens, *t)
	}

	return tokens, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*Token, error) {
	var t Token
	var createdAt int64

	err := row.Scan(&t.Address, &t.Name, &t.Symbol, &t.LogoURI, &t.CurrentMcap, &t.ScanCount,
		&t.GroupCount, &t.Views, &t.PostCount, &t.PostViews, &t.LatestPostID, &t.AttentionScore, &createdAt)
	if err != nil {
		return nil, err
	}

	t.CreatedAt = fromMillis(createdAt)
	return &t, nil
}

// SetAttentionScore stores a new score
func (s *Storage) SetAttentionScore(ctx context.Context, address string, score int) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE tokens SET attention_score = ? WHERE address = ?",
		score, address,
	)
	if err != nil {
		return fmt.Errorf("set attention score: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMarketCap stores the current market cap and raises the ATH of every
// active zone to it when higher
func (s *Storage) UpdateMarketCap(ctx context.Context, address string, mcap float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE tokens SET current_mcap = ? WHERE address = ?",
			mcap, address,
		)
		if err != nil {
			return fmt.Errorf("update market cap: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return ErrNotFound
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE zone_state SET ath_mcap = MAX(ath_mcap, ?) WHERE token_address = ?",
			mcap, address,
		)
		if err != nil {
			return fmt.Errorf("update zone ath: %w", err)
		}
		return nil
	})
}

// ApplyEngagement stores fresh engagement counters
func (s *Storage) ApplyEngagement(ctx context.Context, address string, u EngagementUpdate) error {
	sets := []string{
		"post_count = post_count + ?",
		"post_views = post_views + ?",
	}
	args := []any{u.NewPosts, u.NewPostViews}

	if u.Views != nil {
		sets = append(sets, "views = ?")
		args = append(args, *u.Views)
	}
	if u.LatestPostID != "" {
		sets = append(sets, "latest_post_id = ?")
		args = append(args, u.LatestPostID)
	}
	args = append(args, address)

	result, err := s.db.ExecContext(ctx,
		"UPDATE tokens SET "+strings.Join(sets, ", ")+" WHERE address = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("apply engagement: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Zone state ---

// ApplyTransition applies zone entries and exits of one token in a single
// transaction. Entries for zones that are already active and exits for
// zones that are not active are no-ops, so concurrent callers never apply
// the same change twice. The returned value lists what actually changed.
func (s *Storage) ApplyTransition(ctx context.Context, tr Transition) (Applied, error) {
	var applied Applied

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		applied = Applied{}

		for _, z := range tr.Exit.Zones() {
			result, err := tx.ExecContext(ctx,
				"DELETE FROM zone_state WHERE token_address = ? AND zone = ?",
				tr.Address, string(z),
			)
			if err != nil {
				return fmt.Errorf("delete zone state: %w", err)
			}
			if rows, _ := result.RowsAffected(); rows > 0 {
				applied.Exited = applied.Exited.Add(z)
			}
		}

		for _, z := range zone.All {
			entry, ok := tr.Enter[z]
			if !ok {
				continue
			}
			result, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO zone_state (token_address, zone, entry_mcap, ath_mcap, entered_at)
				 VALUES (?, ?, ?, ?, ?)`,
				tr.Address, string(z), entry.EntryMcap, entry.AthMcap, toMillis(entry.EnteredAt),
			)
			if err != nil {
				return fmt.Errorf("insert zone state: %w", err)
			}
			if rows, _ := result.RowsAffected(); rows > 0 {
				applied.Entered = applied.Entered.Add(z)
			}
		}

		if tr.Mcap != nil {
			_, err := tx.ExecContext(ctx,
				"UPDATE tokens SET current_mcap = ? WHERE address = ?",
				*tr.Mcap, tr.Address,
			)
			if err != nil {
				return fmt.Errorf("update market cap: %w", err)
			}

			_, err = tx.ExecContext(ctx,
				"UPDATE zone_state SET ath_mcap = MAX(ath_mcap, ?) WHERE token_address = ?",
				*tr.Mcap, tr.Address,
			)
			if err != nil {
				return fmt.Errorf("update zone ath: %w", err)
			}
		}

		return nil
	})

	return applied, err
}

// zoneStates loads zone_state rows grouped by token address
func (s *Storage) zoneStates(ctx context.Context, where string, args ...any) (map[string]map[zone.Zone]ZoneEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token_address, zone, entry_mcap, ath_mcap, entered_at FROM zone_state `+where,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query zone state: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[zone.Zone]ZoneEntry)
	for rows.Next() {
		var addr, name string
		var e ZoneEntry
		var enteredAt int64

		if err := rows.Scan(&addr, &name, &e.EntryMcap, &e.AthMcap, &enteredAt); err != nil {
			return nil, fmt.Errorf("scan zone state row: %w", err)
		}

		z := zone.Zone(name)
		if !z.Valid() {
			continue
		}
		e.EnteredAt = fromMillis(enteredAt)

		if out[addr] == nil {
			out[addr] = make(map[zone.Zone]ZoneEntry)
		}
		out[addr][z] = e
	}

	return out, rows.Err()
}
