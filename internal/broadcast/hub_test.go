package broadcast

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, h *Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return h.ClientCount() == want }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_ZoneEntry(t *testing.T) {
	h, url := newTestHub(t)
	conn := dial(t, h, url, 1)

	entered := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tok := &storage.Token{
		Address:     "mint1",
		Symbol:      "AAA",
		CurrentMcap: 50_000,
		Zones: map[zone.Zone]storage.ZoneEntry{
			zone.DegenOrbit: {EntryMcap: 40_000, AthMcap: 55_000, EnteredAt: entered},
		},
	}
	h.ZoneEntry(tok, zone.NewSet(zone.DegenOrbit))

	msg := readMessage(t, conn)
	assert.Equal(t, TypeZoneEntry, msg["type"])

	payload := msg["payload"].(map[string]any)
	assert.Equal(t, string(zone.DegenOrbit), payload["zone"])
	assert.Equal(t, []any{string(zone.DegenOrbit)}, payload["zones"])

	data := payload["tokenData"].(map[string]any)
	assert.Equal(t, "mint1", data["mintAddress"])
	assert.Equal(t, []any{string(zone.DegenOrbit)}, data["activeZones"])
	state := data["zoneState"].(map[string]any)[string(zone.DegenOrbit)].(map[string]any)
	assert.Equal(t, 40_000.0, state["entryMcap"])
	assert.Equal(t, 55_000.0, state["athMcap"])
}

func TestHub_ZoneEntry_SeveralZonesOneMessage(t *testing.T) {
	h, url := newTestHub(t)
	conn := dial(t, h, url, 1)

	tok := &storage.Token{Address: "mint1"}
	h.ZoneEntry(tok, zone.NewSet(zone.Mainframe, zone.DegenOrbit))
	h.ZoneExit("mint1", zone.SentimentCore)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeZoneEntry, msg["type"])
	payload := msg["payload"].(map[string]any)
	assert.Equal(t, string(zone.Mainframe), payload["zone"])
	assert.Equal(t, []any{string(zone.DegenOrbit), string(zone.Mainframe)}, payload["zones"])

	// the next frame is the exit, not a second entry
	next := readMessage(t, conn)
	assert.Equal(t, TypeZoneExit, next["type"])
}

func TestHub_ExitAndStatsReachEveryClient(t *testing.T) {
	h, url := newTestHub(t)
	a := dial(t, h, url, 1)
	b := dial(t, h, url, 2)

	h.ZoneExit("mint1", zone.Mainframe)
	h.StatsUpdate("mint1", map[string]any{"attentionScore": 42})

	for _, conn := range []*websocket.Conn{a, b} {
		exit := readMessage(t, conn)
		assert.Equal(t, TypeZoneExit, exit["type"])
		assert.Equal(t, map[string]any{"mintAddress": "mint1", "zone": string(zone.Mainframe)}, exit["payload"])

		stats := readMessage(t, conn)
		assert.Equal(t, TypeStatsUpdate, stats["type"])
		payload := stats["payload"].(map[string]any)
		assert.Equal(t, map[string]any{"attentionScore": 42.0}, payload["updatedStats"])
	}
}

func TestHub_Disconnect(t *testing.T) {
	h, url := newTestHub(t)
	conn := dial(t, h, url, 1)

	conn.Close()
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	// broadcasting to nobody is a no-op
	h.ZoneExit("mint1", zone.DegenOrbit)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	h, url := newTestHub(t)
	conn := dial(t, h, url, 1)

	h.Close()
	assert.Equal(t, 0, h.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestNewTokenData_NoZones(t *testing.T) {
	d := NewTokenData(&storage.Token{Address: "mint1"})
	assert.Empty(t, d.ActiveZones)
	assert.NotNil(t, d.ActiveZones)
	assert.Empty(t, d.ZoneState)
}
