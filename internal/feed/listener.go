// Package feed consumes the upstream scan stream over a websocket.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/suspectuso/attention-tracker/internal/tracker"
)

const (
	TypeNewScan = "NEW_SCAN"

	DefaultReconnectDelay = 5 * time.Second
	defaultWorkers        = 4
	queueSize             = 256
)

var errIgnored = errors.New("message ignored")

// Ingester accepts parsed scans
type Ingester interface {
	Ingest(ctx context.Context, s tracker.ScanInput) error
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type scanPayload struct {
	Token struct {
		MintAddress string `json:"mintAddress"`
	} `json:"token"`
	GroupProfile struct {
		PlatformID string `json:"platformId"`
		Name       string `json:"name"`
	} `json:"groupProfile"`
	SourcePlatform string    `json:"sourcePlatform"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ParseMessage decodes one stream message. Messages other than NEW_SCAN
// return errIgnored.
func ParseMessage(data []byte) (tracker.ScanInput, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return tracker.ScanInput{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type != TypeNewScan || len(env.Data) == 0 || string(env.Data) == "null" {
		return tracker.ScanInput{}, errIgnored
	}

	var p scanPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return tracker.ScanInput{}, fmt.Errorf("unmarshal scan: %w", err)
	}

	return tracker.ScanInput{
		TokenAddress: p.Token.MintAddress,
		GroupID:      p.GroupProfile.PlatformID,
		GroupName:    p.GroupProfile.Name,
		Source:       p.SourcePlatform,
		Timestamp:    p.CreatedAt,
	}, nil
}

// Listener reads the scan stream and hands scans to a pool of workers.
// It reconnects after every disconnect until its context is cancelled.
type Listener struct {
	url      string
	ingester Ingester
	log      *slog.Logger

	reconnectDelay time.Duration
	workers        int
}

// NewListener creates a Listener for the stream at url
func NewListener(url string, in Ingester, log *slog.Logger) *Listener {
	return &Listener{
		url:            url,
		ingester:       in,
		log:            log,
		reconnectDelay: DefaultReconnectDelay,
		workers:        defaultWorkers,
	}
}

// Run blocks until ctx is cancelled. Queued scans are drained before it
// returns.
func (l *Listener) Run(ctx context.Context) {
	queue := make(chan tracker.ScanInput, queueSize)
	ingestCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < l.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range queue {
				if err := l.ingester.Ingest(ingestCtx, s); err != nil {
					l.log.Warn("ingest scan", "address", s.TokenAddress, "group", s.GroupID, "error", err)
				}
			}
		}()
	}

	for {
		if err := l.consume(ctx, queue); err != nil && ctx.Err() == nil {
			l.log.Warn("scan stream disconnected, reconnecting",
				"error", err, "delay", l.reconnectDelay)
		}

		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *Listener) consume(ctx context.Context, queue chan<- tracker.ScanInput) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	l.log.Info("connected to scan stream", "url", l.url)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		s, err := ParseMessage(data)
		if errors.Is(err, errIgnored) {
			continue
		}
		if err != nil {
			l.log.Warn("bad stream message", "error", err)
			continue
		}

		select {
		case queue <- s:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
