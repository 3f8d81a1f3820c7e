// Package tracker turns scan events into zone membership. It aggregates
// scans over zone windows, applies zone entries and exits, keeps the
// attention score current and hands newly entered zones to the notifier.
package tracker

import (
	"context"
	"errors"

	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

// ErrMalformedScan is returned for scan events that cannot be ingested
var ErrMalformedScan = errors.New("malformed scan")

// TokenInfo is token metadata returned by a market data provider
type TokenInfo struct {
	Address   string
	Name      string
	Symbol    string
	LogoURI   string
	MarketCap float64
}

// MarketData looks up token metadata and market caps
type MarketData interface {
	FetchToken(ctx context.Context, address string) (*TokenInfo, error)
	// FetchMarketCap returns 0 when no market cap is known.
	FetchMarketCap(ctx context.Context, address string) (float64, error)
	// FetchMarketCaps omits addresses without a known market cap.
	FetchMarketCaps(ctx context.Context, addresses []string) (map[string]float64, error)
}

// Broadcaster pushes live updates to connected clients. Delivery is best
// effort.
type Broadcaster interface {
	// ZoneEntry is called once per transition with every zone entered.
	ZoneEntry(tok *storage.Token, entered zone.Set)
	ZoneExit(address string, z zone.Zone)
	StatsUpdate(address string, fields map[string]any)
}

// Notifier delivers zone-entry alerts to subscribers
type Notifier interface {
	Enqueue(tok *storage.Token, entered zone.Set)
}

// EngagementSource returns fresh social engagement numbers for a token
type EngagementSource interface {
	Fetch(ctx context.Context, tok *storage.Token) (storage.EngagementUpdate, error)
}
