// Package broadcast pushes live zone events to dashboard websocket clients.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/tracker"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

const (
	TypeZoneEntry   = "ZONE_ENTRY"
	TypeZoneExit    = "ZONE_EXIT"
	TypeStatsUpdate = "TOKEN_STATS_UPDATE"

	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

// Message is the envelope written to every client
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ZoneState is the per-zone entry state of a token
type ZoneState struct {
	EntryMcap float64   `json:"entryMcap"`
	AthMcap   float64   `json:"athMcap"`
	EnteredAt time.Time `json:"enteredAt"`
}

// TokenData is the public view of a token
type TokenData struct {
	MintAddress      string               `json:"mintAddress"`
	Name             string               `json:"name"`
	Symbol           string               `json:"symbol"`
	LogoURI          string               `json:"logoURI,omitempty"`
	CurrentMarketCap float64              `json:"currentMarketCap"`
	ScanCount        int64                `json:"scanCount"`
	GroupCount       int                  `json:"groupCount"`
	AttentionScore   int                  `json:"attentionScore"`
	ActiveZones      []string             `json:"activeZones"`
	ZoneState        map[string]ZoneState `json:"zoneState"`
	CreatedAt        time.Time            `json:"createdAt"`
}

// NewTokenData converts a stored token to its public view.
func NewTokenData(tok *storage.Token) TokenData {
	d := TokenData{
		MintAddress:      tok.Address,
		Name:             tok.Name,
		Symbol:           tok.Symbol,
		LogoURI:          tok.LogoURI,
		CurrentMarketCap: tok.CurrentMcap,
		ScanCount:        tok.ScanCount,
		GroupCount:       tok.GroupCount,
		AttentionScore:   tok.AttentionScore,
		ActiveZones:      []string{},
		ZoneState:        make(map[string]ZoneState, len(tok.Zones)),
		CreatedAt:        tok.CreatedAt,
	}
	for _, z := range tok.ActiveZones().Zones() {
		e := tok.Zones[z]
		d.ActiveZones = append(d.ActiveZones, string(z))
		d.ZoneState[string(z)] = ZoneState{
			EntryMcap: e.EntryMcap,
			AthMcap:   e.AthMcap,
			EnteredAt: e.EnteredAt,
		}
	}
	return d
}

var _ tracker.Broadcaster = (*Hub)(nil)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to connected websocket clients. A client whose
// buffer is full is disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates an empty Hub
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and keeps the client registered until it
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.wg.Add(1)
	h.mu.Unlock()

	h.log.Info("websocket client connected", "clients", count)

	go h.writeLoop(c)

	// Clients never send anything meaningful; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(c)
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			// drain until remove closes the channel
			for range c.send {
			}
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.log.Info("websocket client disconnected", "clients", len(h.clients))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("websocket client too slow, dropping")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ZoneEntry announces one transition. zone is the highest tier entered;
// zones lists all of them.
func (h *Hub) ZoneEntry(tok *storage.Token, entered zone.Set) {
	zones := entered.Zones()
	if len(zones) == 0 {
		return
	}

	names := make([]string, len(zones))
	for i, z := range zones {
		names[i] = string(z)
	}
	h.broadcast(Message{
		Type: TypeZoneEntry,
		Payload: map[string]any{
			"zone":      names[len(names)-1],
			"zones":     names,
			"tokenData": NewTokenData(tok),
		},
	})
}

// ZoneExit announces a token leaving z.
func (h *Hub) ZoneExit(address string, z zone.Zone) {
	h.broadcast(Message{
		Type: TypeZoneExit,
		Payload: map[string]any{
			"mintAddress": address,
			"zone":        string(z),
		},
	})
}

// StatsUpdate pushes changed fields of a token.
func (h *Hub) StatsUpdate(address string, stats map[string]any) {
	h.broadcast(Message{
		Type: TypeStatsUpdate,
		Payload: map[string]any{
			"mintAddress":  address,
			"updatedStats": stats,
		},
	})
}

// Close disconnects every client and waits for their writers to finish.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	h.wg.Wait()
}
