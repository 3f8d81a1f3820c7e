package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

func newTestUpdater(e *testEnv) *McapUpdater {
	u := NewMcapUpdater(e.store, e.market, e.broadcaster, e.metrics, e.log)
	u.now = e.clock.Now
	u.pause = 0
	return u
}

func TestMcapUpdater_RaisesAth(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.knownToken(mintA, "AAA", 10_000)
	for _, g := range []string{"g1", "g2", "g3", "g4"} {
		e.scan(t, mintA, g)
	}

	u := newTestUpdater(e)

	for _, mcap := range []float64{20_000, 15_000, 30_000} {
		e.market.setCap(mintA, mcap)
		require.NoError(t, u.Run(ctx))
	}

	tok, err := e.store.GetToken(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, 30_000.0, tok.CurrentMcap)
	assert.Equal(t, 10_000.0, tok.Zones[zone.DegenOrbit].EntryMcap)
	assert.Equal(t, 30_000.0, tok.Zones[zone.DegenOrbit].AthMcap)

	last := e.broadcaster.stats[len(e.broadcaster.stats)-1]
	assert.Equal(t, 30_000.0, last["currentMarketCap"])
	zones := last["zoneState"].(map[string]any)
	assert.Equal(t, 30_000.0, zones["DEGEN_ORBIT"].(map[string]any)["athMcap"])
}

func TestMcapUpdater_Batches(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	for _, addr := range []string{mintA, mintB, mintC} {
		_, err := e.store.CreateToken(ctx, &storage.Token{Address: addr, Name: addr, Symbol: "X", CreatedAt: base})
		require.NoError(t, err)
		e.market.setCap(addr, 50_000)
	}

	u := newTestUpdater(e)
	u.batchSize = 2
	require.NoError(t, u.Run(ctx))

	assert.Equal(t, 2, e.market.calls)
	for _, addr := range []string{mintA, mintB, mintC} {
		tok, err := e.store.GetToken(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, 50_000.0, tok.CurrentMcap)
	}
}

func TestMcapUpdater_SkipsStaleTokens(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.store.CreateToken(ctx, &storage.Token{Address: mintA, Name: "A", Symbol: "A", CurrentMcap: 5_000, CreatedAt: base.Add(-3 * time.Hour)})
	require.NoError(t, err)
	e.market.setCap(mintA, 100_000)

	require.NoError(t, newTestUpdater(e).Run(ctx))

	tok, err := e.store.GetToken(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, 5_000.0, tok.CurrentMcap)
}

func TestMcapUpdater_ProviderErrorKeepsValues(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.store.CreateToken(ctx, &storage.Token{Address: mintA, Name: "A", Symbol: "A", CurrentMcap: 5_000, CreatedAt: base})
	require.NoError(t, err)
	e.market.capsErr = errors.New("timeout")

	require.NoError(t, newTestUpdater(e).Run(ctx))

	tok, err := e.store.GetToken(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, 5_000.0, tok.CurrentMcap)
	assert.Empty(t, e.broadcaster.stats)
}
