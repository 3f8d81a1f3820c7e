package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/suspectuso/attention-tracker/internal/address"
	"github.com/suspectuso/attention-tracker/internal/metrics"
	"github.com/suspectuso/attention-tracker/internal/storage"
)

// ScanInput is a scan event as delivered by an ingestion source
type ScanInput struct {
	TokenAddress string    `json:"tokenAddress"`
	GroupID      string    `json:"groupId"`
	GroupName    string    `json:"groupName"`
	Source       string    `json:"source"`
	Timestamp    time.Time `json:"timestamp"`
}

// Ingestor stores scan events and reevaluates the scanned token
type Ingestor struct {
	storage   *storage.Storage
	market    MarketData
	processor *Processor
	locks     *KeyedMutex
	metrics   *metrics.Metrics
	log       *slog.Logger

	now func() time.Time
}

// NewIngestor creates an Ingestor. It shares the token locks of p.
func NewIngestor(store *storage.Storage, market MarketData, p *Processor, m *metrics.Metrics, log *slog.Logger) *Ingestor {
	return &Ingestor{
		storage:   store,
		market:    market,
		processor: p,
		locks:     p.locks,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// Ingest records one scan. Unknown tokens are created from market data
// first; the scan is dropped when no metadata is available. Scans for the
// same token are processed one at a time. Redelivered scans count again.
func (in *Ingestor) Ingest(ctx context.Context, s ScanInput) error {
	rawAddr := strings.TrimSpace(s.TokenAddress)
	groupID := strings.TrimSpace(s.GroupID)
	if rawAddr == "" || groupID == "" {
		in.drop("missing_field", s, nil)
		return fmt.Errorf("%w: address and group are required", ErrMalformedScan)
	}

	addr, _, err := address.Normalize(rawAddr)
	if err != nil {
		in.drop("malformed_address", s, err)
		return fmt.Errorf("%w: %v", ErrMalformedScan, err)
	}

	unlock := in.locks.Lock(addr)
	defer unlock()

	if err := in.ensureToken(ctx, addr); err != nil {
		in.drop("metadata_unavailable", s, err)
		return err
	}

	source := strings.ToLower(strings.TrimSpace(s.Source))
	if source == "" {
		source = "telegram"
	}
	at := s.Timestamp
	if at.IsZero() || at.After(in.now()) {
		at = in.now()
	}

	err = in.storage.RecordScan(ctx, &storage.ScanEvent{
		TokenAddress: addr,
		Source:       source,
		GroupID:      groupID,
		GroupName:    s.GroupName,
		CreatedAt:    at,
	})
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}
	in.metrics.ScansIngested.Inc()

	in.log.Debug("scan recorded", "address", addr, "group", groupID, "source", source)

	return in.processor.evaluate(ctx, addr, false)
}

func (in *Ingestor) ensureToken(ctx context.Context, addr string) error {
	_, err := in.storage.GetToken(ctx, addr)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	info, err := in.market.FetchToken(ctx, addr)
	if err != nil {
		in.metrics.ExternalErrors.WithLabelValues("market_data").Inc()
		return fmt.Errorf("fetch token metadata: %w", err)
	}

	created, err := in.storage.CreateToken(ctx, &storage.Token{
		Address:     addr,
		Name:        info.Name,
		Symbol:      info.Symbol,
		LogoURI:     info.LogoURI,
		CurrentMcap: info.MarketCap,
		CreatedAt:   in.now(),
	})
	if err != nil {
		return err
	}
	if created {
		in.log.Info("new token tracked", "address", addr, "symbol", info.Symbol, "mcap", info.MarketCap)
	}
	return nil
}

func (in *Ingestor) drop(reason string, s ScanInput, err error) {
	in.metrics.ScansDropped.WithLabelValues(reason).Inc()
	in.log.Warn("scan dropped", "reason", reason, "address", s.TokenAddress, "group", s.GroupID, "error", err)
}
