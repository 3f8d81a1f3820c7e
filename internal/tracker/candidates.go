package tracker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

// Candidates finds tokens close to entering a zone
type Candidates struct {
	storage *storage.Storage
	relaxed *zone.Registry

	now func() time.Time
}

// NewCandidates creates a selector using the relaxed variant of registry
func NewCandidates(store *storage.Storage, registry *zone.Registry) *Candidates {
	return &Candidates{storage: store, relaxed: registry.Relaxed(), now: time.Now}
}

// Select returns the sorted addresses of every token satisfying the relaxed
// criteria of at least one zone.
func (c *Candidates) Select(ctx context.Context) ([]string, error) {
	now := c.now()
	seen := make(map[string]struct{})

	for _, z := range zone.All {
		crit := c.relaxed.Criteria(z)

		counts, err := c.storage.WindowCountsSince(ctx, now.Add(-crit.Window))
		if err != nil {
			return nil, fmt.Errorf("window counts for %s: %w", z, err)
		}

		for addr, wc := range counts {
			if crit.Satisfied(zone.WindowStats{Scans: wc.Scans, Groups: wc.Groups}) {
				seen[addr] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for addr := range seen {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out, nil
}
