package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/suspectuso/attention-tracker/internal/metrics"
	"github.com/suspectuso/attention-tracker/internal/storage"
)

// Sweep reevaluates active tokens so zones whose window aged out are left
// even when no new scans arrive
type Sweep struct {
	storage   *storage.Storage
	processor *Processor
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewSweep creates a Sweep
func NewSweep(store *storage.Storage, p *Processor, m *metrics.Metrics, log *slog.Logger) *Sweep {
	return &Sweep{storage: store, processor: p, metrics: m, log: log}
}

// Run performs one pass over every active token. Failures are logged per
// token and never stop the pass.
func (s *Sweep) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	tokens, err := s.storage.ActiveTokens(ctx)
	if err != nil {
		return fmt.Errorf("load active tokens: %w", err)
	}
	s.metrics.ActiveTokens.Set(float64(len(tokens)))

	failed := 0
	for _, tok := range tokens {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.processor.EvaluateExits(ctx, tok.Address); err != nil {
			failed++
			s.log.Error("reevaluate token", "address", tok.Address, "error", err)
		}
	}

	s.log.Debug("sweep finished", "tokens", len(tokens), "failed", failed, "took", time.Since(start))
	return nil
}
