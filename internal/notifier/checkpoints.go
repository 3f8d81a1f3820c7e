package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/suspectuso/attention-tracker/internal/metrics"
	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/telegram"
)

// DefaultCheckpoints are the market cap multiples followed up on
var DefaultCheckpoints = []float64{3, 10, 25, 50, 100}

// Checkpoints notifies chats when a token they were alerted about reaches
// a multiple of the market cap it had at alert time
type Checkpoints struct {
	storage   *storage.Storage
	messenger Messenger
	multiples []float64
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewCheckpoints creates a Checkpoints tracker. Multiples are sorted and
// must be positive; an empty list means DefaultCheckpoints.
func NewCheckpoints(store *storage.Storage, m Messenger, multiples []float64, met *metrics.Metrics, log *slog.Logger) (*Checkpoints, error) {
	if len(multiples) == 0 {
		multiples = DefaultCheckpoints
	}

	sorted := append([]float64(nil), multiples...)
	sort.Float64s(sorted)
	if sorted[0] <= 0 {
		return nil, fmt.Errorf("checkpoint multiple %v must be positive", sorted[0])
	}

	return &Checkpoints{
		storage:   store,
		messenger: m,
		multiples: sorted,
		metrics:   met,
		log:       log,
	}, nil
}

// Check evaluates the receipts of every token occupying a zone. Each
// (receipt, multiple) pair is notified at most once; a failed send is
// retried on a later check.
func (c *Checkpoints) Check(ctx context.Context) error {
	tokens, err := c.storage.ActiveTokens(ctx)
	if err != nil {
		return fmt.Errorf("load active tokens: %w", err)
	}

	for i := range tokens {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.checkToken(ctx, &tokens[i]); err != nil {
			c.log.Error("check checkpoints", "address", tokens[i].Address, "error", err)
		}
	}

	return nil
}

func (c *Checkpoints) checkToken(ctx context.Context, tok *storage.Token) error {
	receipts, err := c.storage.ReceiptsForToken(ctx, tok.Address)
	if err != nil {
		return err
	}

	for _, r := range anchors(receipts) {
		if r.EntryMcap <= 0 {
			continue
		}

		multiple := tok.CurrentMcap / r.EntryMcap
		if multiple < c.multiples[0] {
			continue
		}

		c.notifyCrossed(ctx, tok, &r, multiple)
	}

	return nil
}

// notifyCrossed sends every reached multiple that was not notified yet,
// lowest first
func (c *Checkpoints) notifyCrossed(ctx context.Context, tok *storage.Token, r *storage.Receipt, multiple float64) {
	for _, m := range c.multiples {
		if m > multiple {
			return
		}
		if r.HasCheckpoint(m) {
			continue
		}

		_, err := c.messenger.ReplyTo(ctx, r.ChatID, r.MessageID, formatCheckpoint(tok, r, m))
		if err != nil {
			c.log.Warn("send checkpoint",
				"chat_id", r.ChatID,
				"address", tok.Address,
				"multiple", m,
				"error", err,
			)
			if telegram.IsBlocked(err) {
				if err := c.storage.DisableAllZones(ctx, r.ChatID); err != nil {
					c.log.Error("disable zones", "chat_id", r.ChatID, "error", err)
				}
			}
			return
		}

		if _, err := c.storage.MarkCheckpoint(ctx, r.ID, m); err != nil {
			c.log.Error("record checkpoint", "receipt_id", r.ID, "multiple", m, "error", err)
			return
		}
		r.Checkpoints = append(r.Checkpoints, m)

		c.metrics.CheckpointsNotified.WithLabelValues(formatMultiple(m)).Inc()
		c.log.Info("checkpoint notified", "chat_id", r.ChatID, "address", tok.Address, "multiple", m)
	}
}

// anchors keeps the earliest receipt of every chat. receipts must be in
// creation order.
func anchors(receipts []storage.Receipt) []storage.Receipt {
	seen := make(map[int64]struct{})
	var out []storage.Receipt

	for _, r := range receipts {
		if _, ok := seen[r.ChatID]; ok {
			continue
		}
		seen[r.ChatID] = struct{}{}
		out = append(out, r)
	}

	return out
}
