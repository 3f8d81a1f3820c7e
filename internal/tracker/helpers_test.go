package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/attention-tracker/internal/metrics"
	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

const (
	mintA = "So11111111111111111111111111111111111111112"
	mintB = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	mintC = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

var base = time.UnixMilli(1_760_000_000_000)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeMarket struct {
	mu      sync.Mutex
	tokens  map[string]*TokenInfo
	caps    map[string]float64
	capsErr error
	calls   int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{tokens: map[string]*TokenInfo{}, caps: map[string]float64{}}
}

func (m *fakeMarket) FetchToken(_ context.Context, addr string) (*TokenInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.tokens[addr]
	if !ok {
		return nil, errors.New("token not found")
	}
	return info, nil
}

func (m *fakeMarket) FetchMarketCap(_ context.Context, addr string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capsErr != nil {
		return 0, m.capsErr
	}
	return m.caps[addr], nil
}

func (m *fakeMarket) FetchMarketCaps(_ context.Context, addrs []string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.capsErr != nil {
		return nil, m.capsErr
	}
	out := map[string]float64{}
	for _, a := range addrs {
		if v, ok := m.caps[a]; ok {
			out[a] = v
		}
	}
	return out, nil
}

func (m *fakeMarket) setCap(addr string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caps[addr] = v
}

type zoneEvent struct {
	Address string
	Zone    zone.Zone
}

type entryEvent struct {
	Address string
	Entered zone.Set
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	entries []entryEvent
	exits   []zoneEvent
	stats   []map[string]any
}

func (b *fakeBroadcaster) ZoneEntry(tok *storage.Token, entered zone.Set) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entryEvent{tok.Address, entered})
}

func (b *fakeBroadcaster) ZoneExit(addr string, z zone.Zone) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exits = append(b.exits, zoneEvent{addr, z})
}

func (b *fakeBroadcaster) StatsUpdate(addr string, fields map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := map[string]any{"address": addr}
	for k, v := range fields {
		f[k] = v
	}
	b.stats = append(b.stats, f)
}

type enqueued struct {
	Token   storage.Token
	Entered zone.Set
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []enqueued
}

func (n *fakeNotifier) Enqueue(tok *storage.Token, entered zone.Set) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, enqueued{*tok, entered})
}

type testEnv struct {
	store       *storage.Storage
	registry    *zone.Registry
	clock       *fakeClock
	market      *fakeMarket
	broadcaster *fakeBroadcaster
	notifier    *fakeNotifier
	metrics     *metrics.Metrics
	log         *slog.Logger

	aggregator *Aggregator
	scorer     *Scorer
	processor  *Processor
	ingestor   *Ingestor
	sweep      *Sweep
	candidates *Candidates
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	e := &testEnv{
		store:       store,
		registry:    zone.DefaultRegistry(),
		clock:       &fakeClock{t: base},
		market:      newFakeMarket(),
		broadcaster: &fakeBroadcaster{},
		notifier:    &fakeNotifier{},
		metrics:     metrics.New(prometheus.NewRegistry()),
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	e.aggregator = NewAggregator(store, e.registry)
	e.scorer = NewScorer(store, e.aggregator, e.registry, e.broadcaster, e.log)
	e.scorer.now = e.clock.Now

	e.processor = NewProcessor(ProcessorDeps{
		Storage:     store,
		Aggregator:  e.aggregator,
		Registry:    e.registry,
		Scorer:      e.scorer,
		Market:      e.market,
		Broadcaster: e.broadcaster,
		Notifier:    e.notifier,
		Locks:       NewKeyedMutex(),
		Metrics:     e.metrics,
		Log:         e.log,
	})
	e.processor.now = e.clock.Now

	e.ingestor = NewIngestor(store, e.market, e.processor, e.metrics, e.log)
	e.ingestor.now = e.clock.Now

	e.sweep = NewSweep(store, e.processor, e.metrics, e.log)

	e.candidates = NewCandidates(store, e.registry)
	e.candidates.now = e.clock.Now

	return e
}

// knownToken registers metadata for addr on the fake market
func (e *testEnv) knownToken(addr, symbol string, mcap float64) {
	e.market.mu.Lock()
	defer e.market.mu.Unlock()
	e.market.tokens[addr] = &TokenInfo{Address: addr, Name: symbol + " token", Symbol: symbol, MarketCap: mcap}
	e.market.caps[addr] = mcap
}

// scan ingests one scan at the current clock and advances it by a minute
func (e *testEnv) scan(t *testing.T, addr, group string) {
	t.Helper()
	require.NoError(t, e.ingestor.Ingest(context.Background(), ScanInput{
		TokenAddress: addr, GroupID: group, GroupName: "Group " + group, Source: "telegram",
	}))
	e.clock.Advance(time.Minute)
}
