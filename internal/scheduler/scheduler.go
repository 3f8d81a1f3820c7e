// Package scheduler runs periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Job is a unit of periodic work. It receives a context that is canceled
// when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler wraps a cron runner. Jobs never overlap with themselves: a tick
// that fires while the previous run is still going is skipped.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New creates a scheduler
func New(log *slog.Logger) *Scheduler {
	logger := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a named job. spec accepts standard cron expressions and
// descriptors such as "@every 5m".
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.log.Debug("job started", "job", name)
		job(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	s.log.Info("job scheduled", "job", name, "schedule", spec)
	return nil
}

// Start begins running jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if s.started {
		<-s.cron.Stop().Done()
		s.started = false
	}
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
