package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		window    zone.WindowStats
		views     int64
		posts     int64
		postViews int64
		want      int
	}{
		{"nothing", zone.WindowStats{}, 0, 0, 0, 0},
		{"velocity only capped", zone.WindowStats{Scans: 40}, 0, 0, 0, 15},
		{"diversity only", zone.WindowStats{Groups: 10}, 0, 0, 0, 25},
		{"views half", zone.WindowStats{}, 25_000, 0, 0, 10},
		{"posts count", zone.WindowStats{}, 0, 25, 0, 20},
		{"everything capped", zone.WindowStats{Scans: 100, Groups: 100}, 1_000_000, 100, 1_000_000, 100},
		{"mixed", zone.WindowStats{Scans: 10, Groups: 5}, 10_000, 10, 50_000, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.window, tt.views, tt.posts, tt.postViews)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestScorer_UpdateOnlyOnChange(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.knownToken(mintA, "AAA", 1_000)

	for _, g := range []string{"g1", "g2", "g3", "g4"} {
		e.scan(t, mintA, g)
	}
	before := len(e.broadcaster.stats)

	require.NoError(t, e.scorer.Update(ctx, mintA))
	assert.Len(t, e.broadcaster.stats, before)

	views := int64(50_000)
	require.NoError(t, e.store.ApplyEngagement(ctx, mintA, storage.EngagementUpdate{Views: &views}))
	require.NoError(t, e.scorer.Update(ctx, mintA))
	assert.Len(t, e.broadcaster.stats, before+1)

	tok, err := e.store.GetToken(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, e.broadcaster.stats[before]["attentionScore"], tok.AttentionScore)
}

func TestScorer_InactiveTokenScoresZero(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.knownToken(mintA, "AAA", 1_000)

	// one scan keeps the token outside every zone
	e.scan(t, mintA, "g1")
	views := int64(50_000)
	require.NoError(t, e.store.ApplyEngagement(ctx, mintA, storage.EngagementUpdate{Views: &views}))

	require.NoError(t, e.scorer.Update(ctx, mintA))

	tok, err := e.store.GetToken(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, 0, tok.AttentionScore)
	assert.Empty(t, e.broadcaster.stats)
}
