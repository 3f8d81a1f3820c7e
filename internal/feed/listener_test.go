package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/attention-tracker/internal/tracker"
)

const scanMsg = `{"type":"NEW_SCAN","data":{"token":{"mintAddress":"So11111111111111111111111111111111111111112"},"groupProfile":{"platformId":"-100123","name":"Alpha Calls"},"sourcePlatform":"discord","createdAt":"2025-03-01T12:00:00Z"}}`

type fakeIngester struct {
	mu    sync.Mutex
	scans []tracker.ScanInput
}

func (f *fakeIngester) Ingest(_ context.Context, s tracker.ScanInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, s)
	return nil
}

func (f *fakeIngester) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scans)
}

func TestParseMessage(t *testing.T) {
	s, err := ParseMessage([]byte(scanMsg))
	require.NoError(t, err)
	assert.Equal(t, "So11111111111111111111111111111111111111112", s.TokenAddress)
	assert.Equal(t, "-100123", s.GroupID)
	assert.Equal(t, "Alpha Calls", s.GroupName)
	assert.Equal(t, "discord", s.Source)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), s.Timestamp)
}

func TestParseMessage_Ignored(t *testing.T) {
	_, err := ParseMessage([]byte(`{"type":"HEARTBEAT"}`))
	assert.ErrorIs(t, err, errIgnored)

	_, err = ParseMessage([]byte(`{"type":"NEW_SCAN","data":null}`))
	assert.ErrorIs(t, err, errIgnored)

	_, err = ParseMessage([]byte(`not json`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errIgnored)
}

func TestListener_ReconnectsAndIngests(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	var connects atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		connects.Add(1)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HEARTBEAT"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(scanMsg))
		// drop the connection to force a reconnect
	}))
	defer srv.Close()

	in := &fakeIngester{}
	l := NewListener("ws"+strings.TrimPrefix(srv.URL, "http"), in, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.reconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return in.count() >= 2 }, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, connects.Load(), int32(2))

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}
