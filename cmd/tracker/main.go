package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/suspectuso/attention-tracker/internal/broadcast"
	"github.com/suspectuso/attention-tracker/internal/config"
	"github.com/suspectuso/attention-tracker/internal/engagement"
	"github.com/suspectuso/attention-tracker/internal/feed"
	"github.com/suspectuso/attention-tracker/internal/jupiter"
	"github.com/suspectuso/attention-tracker/internal/metrics"
	"github.com/suspectuso/attention-tracker/internal/notifier"
	"github.com/suspectuso/attention-tracker/internal/scheduler"
	"github.com/suspectuso/attention-tracker/internal/server"
	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/telegram"
	"github.com/suspectuso/attention-tracker/internal/tracker"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

type job struct {
	name string
	spec string
	run  func(context.Context) error
}

func main() {
	envFile := pflag.String("env-file", ".env", "path to a .env file")
	logLevel := pflag.String("log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	pflag.Parse()

	// Load .env file
	envErr := godotenv.Load(*envFile)

	// Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(log)

	if envErr != nil {
		log.Debug("no .env file found", "path", *envFile)
	}

	if cfg.BotToken == "" {
		log.Error("BOT_TOKEN is required")
		os.Exit(1)
	}

	registry, err := zone.LoadRegistry(cfg.ZonesFile)
	if err != nil {
		log.Error("load zones", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg)

	market := jupiter.NewClient(cfg.JupiterBaseURL, cfg.ExternalTimeout)
	log.Info("jupiter client initialized", "base_url", cfg.JupiterBaseURL)

	// Initialize telegram bot
	bot, err := telegram.New(cfg.BotToken, store, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized")

	hub := broadcast.NewHub(log)
	dispatcher := notifier.NewDispatcher(store, bot, cfg.NotifySendDelay, met, log)

	checkpoints, err := notifier.NewCheckpoints(store, bot, cfg.Checkpoints, met, log)
	if err != nil {
		log.Error("init checkpoints", "error", err)
		os.Exit(1)
	}

	aggregator := tracker.NewAggregator(store, registry)
	scorer := tracker.NewScorer(store, aggregator, registry, hub, log)
	processor := tracker.NewProcessor(tracker.ProcessorDeps{
		Storage:     store,
		Aggregator:  aggregator,
		Registry:    registry,
		Scorer:      scorer,
		Market:      market,
		Broadcaster: hub,
		Notifier:    dispatcher,
		Locks:       tracker.NewKeyedMutex(),
		Metrics:     met,
		Log:         log,
	})
	ingestor := tracker.NewIngestor(store, market, processor, met, log)
	sweep := tracker.NewSweep(store, processor, met, log)
	mcap := tracker.NewMcapUpdater(store, market, hub, met, log)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Schedule periodic jobs
	sched := scheduler.New(log)
	jobs := []job{
		{"sweep", cfg.SweepSchedule, sweep.Run},
		{"mcap", cfg.McapSchedule, mcap.Run},
		{"checkpoints", cfg.CheckpointSchedule, checkpoints.Check},
	}
	if cfg.EngagementBaseURL != "" {
		source := engagement.NewClient(cfg.EngagementBaseURL, cfg.ExternalTimeout)
		poller := tracker.NewEngagementPoller(store, tracker.NewCandidates(store, registry), source, scorer, met, log, cfg.EngagementSpacing)
		jobs = append(jobs, job{"engagement", cfg.EngagementSchedule, poller.Run})
	} else {
		log.Warn("ENGAGEMENT_BASE_URL not set, engagement polling disabled")
	}

	for _, j := range jobs {
		name, run := j.name, j.run
		err := sched.Add(name, j.spec, func(ctx context.Context) {
			if err := run(ctx); err != nil && ctx.Err() == nil {
				log.Error("job failed", "job", name, "error", err)
			}
		})
		if err != nil {
			log.Error("schedule job", "error", err)
			os.Exit(1)
		}
	}
	sched.Start()

	var wg sync.WaitGroup

	// Start http server
	srv := server.NewServer(store, ingestor, hub, met.Handler(), log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(ctx, cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Error("http server", "error", err)
		}
	}()

	// Start scan feed
	if cfg.ScanFeedURL != "" {
		listener := feed.NewListener(cfg.ScanFeedURL, ingestor, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			listener.Run(ctx)
		}()
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)

	sched.Stop()
	wg.Wait()
	dispatcher.Close()
	hub.Close()
	log.Info("stopped")
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
