package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

// Aggregator computes windowed scan statistics of a token
type Aggregator struct {
	storage  *storage.Storage
	registry *zone.Registry
}

// NewAggregator creates an Aggregator over the windows of registry
func NewAggregator(store *storage.Storage, registry *zone.Registry) *Aggregator {
	return &Aggregator{storage: store, registry: registry}
}

// Stats returns scan and distinct group counts for every zone window ending
// at now. A token without scans gets zeros for every zone.
func (a *Aggregator) Stats(ctx context.Context, address string, now time.Time) (zone.Stats, error) {
	scans, err := a.storage.ScansSince(ctx, address, now.Add(-a.registry.Longest()))
	if err != nil {
		return nil, fmt.Errorf("load scans: %w", err)
	}

	stats := make(zone.Stats, len(zone.All))
	for _, z := range zone.All {
		since := now.Add(-a.registry.Criteria(z).Window)
		groups := make(map[string]struct{})

		var ws zone.WindowStats
		for _, ev := range scans {
			if ev.CreatedAt.Before(since) {
				continue
			}
			ws.Scans++
			groups[ev.GroupID] = struct{}{}
		}
		ws.Groups = len(groups)

		stats[z] = ws
	}

	return stats, nil
}
