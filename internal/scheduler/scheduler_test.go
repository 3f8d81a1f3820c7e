package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := New(testLogger())
	err := s.Add("bad", "not a schedule", func(context.Context) {})
	assert.Error(t, err)
}

func TestScheduler_RunsJob(t *testing.T) {
	s := New(testLogger())

	var runs atomic.Int32
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) {
		runs.Add(1)
	}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := New(testLogger())

	var running, maxRunning, runs atomic.Int32
	require.NoError(t, s.Add("slow", "@every 1s", func(ctx context.Context) {
		n := running.Add(1)
		defer running.Add(-1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		runs.Add(1)
		select {
		case <-ctx.Done():
		case <-time.After(2500 * time.Millisecond):
		}
	}))

	s.Start()
	time.Sleep(3500 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, runs.Load(), int32(1))
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestScheduler_StopCancelsContext(t *testing.T) {
	s := New(testLogger())

	started := make(chan struct{}, 1)
	var canceled atomic.Bool
	require.NoError(t, s.Add("wait", "@every 1s", func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		canceled.Store(true)
	}))

	s.Start()
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}

	s.Stop()
	assert.True(t, canceled.Load())
}
