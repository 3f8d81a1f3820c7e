package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/suspectuso/attention-tracker/internal/metrics"
	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

// Processor applies zone entries and exits to tokens
type Processor struct {
	storage     *storage.Storage
	aggregator  *Aggregator
	registry    *zone.Registry
	scorer      *Scorer
	market      MarketData
	broadcaster Broadcaster
	notifier    Notifier
	locks       *KeyedMutex
	metrics     *metrics.Metrics
	log         *slog.Logger

	now func() time.Time
}

// ProcessorDeps are the collaborators of a Processor
type ProcessorDeps struct {
	Storage     *storage.Storage
	Aggregator  *Aggregator
	Registry    *zone.Registry
	Scorer      *Scorer
	Market      MarketData
	Broadcaster Broadcaster
	Notifier    Notifier
	Locks       *KeyedMutex
	Metrics     *metrics.Metrics
	Log         *slog.Logger
}

// NewProcessor creates a Processor
func NewProcessor(d ProcessorDeps) *Processor {
	return &Processor{
		storage:     d.Storage,
		aggregator:  d.Aggregator,
		registry:    d.Registry,
		scorer:      d.Scorer,
		market:      d.Market,
		broadcaster: d.Broadcaster,
		notifier:    d.Notifier,
		locks:       d.Locks,
		metrics:     d.Metrics,
		log:         d.Log,
		now:         time.Now,
	}
}

// Evaluate reclassifies a token and applies any zone entries and exits.
func (p *Processor) Evaluate(ctx context.Context, address string) error {
	unlock := p.locks.Lock(address)
	defer unlock()

	return p.evaluate(ctx, address, false)
}

// EvaluateExits reclassifies a token and applies only zone exits.
func (p *Processor) EvaluateExits(ctx context.Context, address string) error {
	unlock := p.locks.Lock(address)
	defer unlock()

	return p.evaluate(ctx, address, true)
}

// evaluate must be called with the token lock held
func (p *Processor) evaluate(ctx context.Context, address string, exitsOnly bool) error {
	tok, err := p.storage.GetToken(ctx, address)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}

	now := p.now()
	stats, err := p.aggregator.Stats(ctx, address, now)
	if err != nil {
		return err
	}

	entered, exited := zone.Diff(tok.ActiveZones(), zone.Classify(stats, p.registry))
	if exitsOnly {
		entered = 0
	}
	if entered.Empty() && exited.Empty() {
		return nil
	}

	tr := storage.Transition{Address: address, Exit: exited}
	if !entered.Empty() {
		mcap := tok.CurrentMcap
		if fresh, ok := p.latestMarketCap(ctx, address); ok {
			mcap = fresh
			tr.Mcap = &fresh
		}

		tr.Enter = make(map[zone.Zone]storage.ZoneEntry, entered.Len())
		for _, z := range entered.Zones() {
			tr.Enter[z] = storage.ZoneEntry{EntryMcap: mcap, AthMcap: mcap, EnteredAt: now}
		}
	}

	applied, err := p.storage.ApplyTransition(ctx, tr)
	if err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}
	if applied.Empty() {
		return nil
	}

	p.log.Info("zones changed",
		"address", address,
		"symbol", tok.Symbol,
		"entered", applied.Entered.String(),
		"exited", applied.Exited.String(),
	)

	for _, z := range applied.Exited.Zones() {
		p.metrics.ZoneTransitions.WithLabelValues(string(z), "exit").Inc()
		p.broadcaster.ZoneExit(address, z)
	}

	if err := p.scorer.Update(ctx, address); err != nil {
		p.log.Error("update attention score", "address", address, "error", err)
	}

	if applied.Entered.Empty() {
		return nil
	}

	tok, err = p.storage.GetToken(ctx, address)
	if err != nil {
		return fmt.Errorf("reload token: %w", err)
	}

	for _, z := range applied.Entered.Zones() {
		p.metrics.ZoneTransitions.WithLabelValues(string(z), "enter").Inc()
	}
	p.broadcaster.ZoneEntry(tok, applied.Entered)
	p.notifier.Enqueue(tok, applied.Entered)

	return nil
}

// latestMarketCap asks the market data provider for a fresh value
func (p *Processor) latestMarketCap(ctx context.Context, address string) (float64, bool) {
	mcap, err := p.market.FetchMarketCap(ctx, address)
	if err != nil {
		p.metrics.ExternalErrors.WithLabelValues("market_data").Inc()
		p.log.Warn("fetch market cap, using stored value", "address", address, "error", err)
		return 0, false
	}
	if mcap <= 0 {
		return 0, false
	}
	return mcap, true
}
