package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/suspectuso/attention-tracker/internal/metrics"
	"github.com/suspectuso/attention-tracker/internal/storage"
)

const (
	mcapBatchSize  = 100
	mcapBatchPause = 2 * time.Second
)

// McapUpdater refreshes market caps of tracked tokens and raises the
// all-time high of their active zones
type McapUpdater struct {
	storage     *storage.Storage
	market      MarketData
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	log         *slog.Logger

	batchSize int
	pause     time.Duration
	now       func() time.Time
}

// NewMcapUpdater creates a McapUpdater
func NewMcapUpdater(store *storage.Storage, market MarketData, b Broadcaster, m *metrics.Metrics, log *slog.Logger) *McapUpdater {
	return &McapUpdater{
		storage:     store,
		market:      market,
		broadcaster: b,
		metrics:     m,
		log:         log,
		batchSize:   mcapBatchSize,
		pause:       mcapBatchPause,
		now:         time.Now,
	}
}

// Run refreshes every token that is not excluded for staleness. A failed
// batch is skipped and retried on the next run.
func (u *McapUpdater) Run(ctx context.Context) error {
	tokens, err := u.storage.RefreshableTokens(ctx, u.now())
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}

	updated := 0
	for start := 0; start < len(tokens); start += u.batchSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(u.pause):
			}
		}

		end := min(start+u.batchSize, len(tokens))
		updated += u.refreshBatch(ctx, tokens[start:end])
	}

	u.log.Debug("market caps refreshed", "tokens", len(tokens), "updated", updated)
	return nil
}

func (u *McapUpdater) refreshBatch(ctx context.Context, batch []storage.Token) int {
	addrs := make([]string, len(batch))
	for i, tok := range batch {
		addrs[i] = tok.Address
	}

	caps, err := u.market.FetchMarketCaps(ctx, addrs)
	if err != nil {
		u.metrics.ExternalErrors.WithLabelValues("market_data").Inc()
		u.log.Warn("fetch market caps", "tokens", len(addrs), "error", err)
		return 0
	}

	updated := 0
	for _, tok := range batch {
		mcap, ok := caps[tok.Address]
		if !ok || mcap <= 0 {
			continue
		}

		if err := u.storage.UpdateMarketCap(ctx, tok.Address, mcap); err != nil {
			u.log.Error("update market cap", "address", tok.Address, "error", err)
			continue
		}
		updated++

		zones := make(map[string]any, len(tok.Zones))
		for z, e := range tok.Zones {
			zones[string(z)] = map[string]any{
				"entryMcap": e.EntryMcap,
				"athMcap":   max(e.AthMcap, mcap),
				"enteredAt": e.EnteredAt.UnixMilli(),
			}
		}

		u.broadcaster.StatsUpdate(tok.Address, map[string]any{
			"currentMarketCap": mcap,
			"zoneState":        zones,
		})
	}

	return updated
}
