package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

// Score weights and normalization caps
const (
	velocityWeight   = 0.15
	diversityWeight  = 0.25
	viewsWeight      = 0.20
	engagementWeight = 0.40

	velocityCap   = 20
	diversityCap  = 10
	viewsCap      = 50_000
	engagementCap = 250_000

	postWeight = 5000
)

// Score computes the attention score from the statistics of the shortest
// zone window and the external engagement counters. The result is in
// [0, 100].
func Score(window zone.WindowStats, views, posts, postViews int64) int {
	engagement := float64(posts*postWeight + postViews)

	total := velocityWeight*capped(float64(window.Scans), velocityCap) +
		diversityWeight*capped(float64(window.Groups), diversityCap) +
		viewsWeight*capped(float64(views), viewsCap) +
		engagementWeight*capped(engagement, engagementCap)

	return int(math.Round(total * 100))
}

func capped(raw, limit float64) float64 {
	if raw <= 0 {
		return 0
	}
	return math.Min(raw/limit, 1)
}

// Scorer keeps the stored attention score of tokens current
type Scorer struct {
	storage     *storage.Storage
	aggregator  *Aggregator
	registry    *zone.Registry
	broadcaster Broadcaster
	log         *slog.Logger

	now func() time.Time
}

// NewScorer creates a Scorer
func NewScorer(store *storage.Storage, agg *Aggregator, registry *zone.Registry, b Broadcaster, log *slog.Logger) *Scorer {
	return &Scorer{
		storage:     store,
		aggregator:  agg,
		registry:    registry,
		broadcaster: b,
		log:         log,
		now:         time.Now,
	}
}

// Update recomputes the score of a token. Tokens outside every zone score
// 0. The score is stored and broadcast only when it changed.
func (s *Scorer) Update(ctx context.Context, address string) error {
	tok, err := s.storage.GetToken(ctx, address)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}

	score := 0
	if !tok.ActiveZones().Empty() {
		stats, err := s.aggregator.Stats(ctx, address, s.now())
		if err != nil {
			return err
		}
		score = Score(stats[s.registry.Shortest()], tok.Views, tok.PostCount, tok.PostViews)
	}

	if score == tok.AttentionScore {
		return nil
	}

	if err := s.storage.SetAttentionScore(ctx, address, score); err != nil {
		return err
	}

	s.log.Debug("attention score updated", "address", address, "from", tok.AttentionScore, "to", score)
	s.broadcaster.StatsUpdate(address, map[string]any{"attentionScore": score})
	return nil
}
