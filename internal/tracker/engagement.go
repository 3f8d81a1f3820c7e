package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/suspectuso/attention-tracker/internal/metrics"
	"github.com/suspectuso/attention-tracker/internal/storage"
)

// EngagementPoller polls social engagement for tokens about to enter a zone
type EngagementPoller struct {
	storage    *storage.Storage
	candidates *Candidates
	source     EngagementSource
	scorer     *Scorer
	metrics    *metrics.Metrics
	log        *slog.Logger

	spacing time.Duration
}

// NewEngagementPoller creates an EngagementPoller. spacing is the pause
// between two lookups.
func NewEngagementPoller(store *storage.Storage, c *Candidates, src EngagementSource, s *Scorer, m *metrics.Metrics, log *slog.Logger, spacing time.Duration) *EngagementPoller {
	return &EngagementPoller{
		storage:    store,
		candidates: c,
		source:     src,
		scorer:     s,
		metrics:    m,
		log:        log,
		spacing:    spacing,
	}
}

// Run polls every current pre-entry candidate once.
func (p *EngagementPoller) Run(ctx context.Context) error {
	addrs, err := p.candidates.Select(ctx)
	if err != nil {
		return fmt.Errorf("select candidates: %w", err)
	}

	for i, addr := range addrs {
		if i > 0 && p.spacing > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.spacing):
			}
		}

		if err := p.poll(ctx, addr); err != nil {
			p.log.Warn("poll engagement", "address", addr, "error", err)
		}
	}

	return nil
}

func (p *EngagementPoller) poll(ctx context.Context, addr string) error {
	tok, err := p.storage.GetToken(ctx, addr)
	if err != nil {
		return err
	}

	update, err := p.source.Fetch(ctx, tok)
	if err != nil {
		p.metrics.ExternalErrors.WithLabelValues("engagement").Inc()
		return err
	}

	if err := p.storage.ApplyEngagement(ctx, addr, update); err != nil {
		return err
	}

	return p.scorer.Update(ctx, addr)
}
