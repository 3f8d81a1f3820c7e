// Package notifier delivers zone-entry alerts and checkpoint follow-ups to
// subscribed chats.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/suspectuso/attention-tracker/internal/metrics"
	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/telegram"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

// Messenger delivers chat messages. Failed deliveries are reported as
// *telegram.SendError.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, buttons []telegram.Button) (int, error)
	ReplyTo(ctx context.Context, chatID int64, messageID int, text string) (int, error)
}

// Result summarizes one dispatch
type Result struct {
	Sent    int
	Failed  int
	Blocked int
	Skipped int
}

type task struct {
	chatID int64
	zone   zone.Zone
	entry  storage.ZoneEntry
}

type taskKey struct {
	chatID    int64
	address   string
	zone      zone.Zone
	enteredAt int64
}

// Dispatcher fans zone-entry alerts out to subscribers. Send starts are
// spaced by a fixed minimum interval; sends themselves run concurrently.
type Dispatcher struct {
	storage   *storage.Storage
	messenger Messenger
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	log       *slog.Logger

	mu       sync.Mutex
	inflight map[taskKey]struct{}
	closed   bool
	pending  sync.WaitGroup
}

// NewDispatcher creates a Dispatcher that starts at most one send per
// interval
func NewDispatcher(store *storage.Storage, m Messenger, interval time.Duration, met *metrics.Metrics, log *slog.Logger) *Dispatcher {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &Dispatcher{
		storage:   store,
		messenger: m,
		limiter:   rate.NewLimiter(limit, 1),
		metrics:   met,
		log:       log,
		inflight:  make(map[taskKey]struct{}),
	}
}

// Enqueue dispatches in the background. Calls after Close are dropped.
func (d *Dispatcher) Enqueue(tok *storage.Token, entered zone.Set) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("dispatcher closed, alert dropped", "address", tok.Address, "zones", entered.String())
		return
	}
	d.pending.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.pending.Done()
		d.Dispatch(context.Background(), tok, entered)
	}()
}

// Close stops accepting work and waits for queued dispatches to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.pending.Wait()
}

// Dispatch sends the alert of every entered zone to its subscribers and
// records a receipt for each successful send. Failed sends are not retried.
func (d *Dispatcher) Dispatch(ctx context.Context, tok *storage.Token, entered zone.Set) Result {
	tasks := d.collect(ctx, tok, entered)

	var (
		mu  sync.Mutex
		res Result
		wg  sync.WaitGroup
	)

	for _, t := range tasks {
		key := taskKey{t.chatID, tok.Address, t.zone, t.entry.EnteredAt.UnixMilli()}
		if !d.claim(ctx, key) {
			res.Skipped++
			continue
		}

		if err := d.limiter.Wait(ctx); err != nil {
			d.release(key)
			d.log.Warn("dispatch interrupted", "address", tok.Address, "error", err)
			break
		}

		wg.Add(1)
		go func(t task, key taskKey) {
			defer wg.Done()
			defer d.release(key)

			outcome := d.send(ctx, tok, t)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case "sent":
				res.Sent++
			case "blocked":
				res.Blocked++
			default:
				res.Failed++
			}
		}(t, key)
	}

	wg.Wait()

	d.log.Info("alerts dispatched",
		"address", tok.Address,
		"symbol", tok.Symbol,
		"zones", entered.String(),
		"sent", res.Sent,
		"failed", res.Failed,
		"blocked", res.Blocked,
		"skipped", res.Skipped,
	)

	return res
}

// collect flattens subscribers of every entered zone into send tasks
func (d *Dispatcher) collect(ctx context.Context, tok *storage.Token, entered zone.Set) []task {
	var tasks []task
	seen := make(map[int64]zone.Set)

	for _, z := range entered.Zones() {
		entry, ok := tok.Zones[z]
		if !ok {
			continue
		}

		chatIDs, err := d.storage.SubscribersForZone(ctx, z)
		if err != nil {
			d.log.Error("load subscribers", "zone", z, "error", err)
			continue
		}

		for _, id := range chatIDs {
			if seen[id].Has(z) {
				continue
			}
			seen[id] = seen[id].Add(z)
			tasks = append(tasks, task{chatID: id, zone: z, entry: entry})
		}
	}

	return tasks
}

// claim reserves a task so concurrent or repeated dispatches of the same
// zone entry do not send it twice
func (d *Dispatcher) claim(ctx context.Context, key taskKey) bool {
	d.mu.Lock()
	if _, busy := d.inflight[key]; busy {
		d.mu.Unlock()
		return false
	}
	d.inflight[key] = struct{}{}
	d.mu.Unlock()

	done, err := d.storage.HasReceipt(ctx, key.chatID, key.address, key.zone, time.UnixMilli(key.enteredAt))
	if err != nil {
		d.log.Error("check receipt", "chat_id", key.chatID, "error", err)
	}
	if done || err != nil {
		d.release(key)
		return false
	}
	return true
}

func (d *Dispatcher) release(key taskKey) {
	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()
}

func (d *Dispatcher) send(ctx context.Context, tok *storage.Token, t task) string {
	msgID, err := d.messenger.Send(ctx, t.chatID, formatAlert(tok, t.zone), tradeLinks(tok.Address))
	if err != nil {
		if telegram.IsBlocked(err) {
			d.metrics.Notifications.WithLabelValues(string(t.zone), "blocked").Inc()
			d.log.Warn("chat unreachable, disabling alerts", "chat_id", t.chatID, "error", err)
			if err := d.storage.DisableAllZones(ctx, t.chatID); err != nil {
				d.log.Error("disable zones", "chat_id", t.chatID, "error", err)
			}
			return "blocked"
		}

		d.metrics.Notifications.WithLabelValues(string(t.zone), "failed").Inc()
		d.log.Error("send alert", "chat_id", t.chatID, "address", tok.Address, "zone", t.zone, "error", err)
		return "failed"
	}

	_, err = d.storage.InsertReceipt(ctx, &storage.Receipt{
		ChatID:       t.chatID,
		TokenAddress: tok.Address,
		Zone:         t.zone,
		EnteredAt:    t.entry.EnteredAt,
		MessageID:    msgID,
		EntryMcap:    t.entry.EntryMcap,
	})
	if err != nil {
		d.log.Error("store receipt", "chat_id", t.chatID, "address", tok.Address, "error", fmt.Errorf("message %d: %w", msgID, err))
	}

	d.metrics.Notifications.WithLabelValues(string(t.zone), "sent").Inc()
	return "sent"
}
