package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	BotToken string

	// HTTP API
	HTTPPort int

	// Database
	DBPath string

	// Upstream services
	ScanFeedURL       string
	JupiterBaseURL    string
	EngagementBaseURL string
	ExternalTimeout   time.Duration

	// Notifications
	NotifySendDelay time.Duration
	Checkpoints     []float64

	// Schedules (cron specs)
	SweepSchedule      string
	McapSchedule       string
	CheckpointSchedule string
	EngagementSchedule string
	EngagementSpacing  time.Duration

	// Zones
	ZonesFile string

	LogLevel string
}

func Load() (*Config, error) {
	cfg := &Config{
		// Telegram
		BotToken: getEnv("BOT_TOKEN", ""),

		// HTTP API
		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		// Database
		DBPath: getEnv("DB_PATH", "./attention.db"),

		// Upstream services
		ScanFeedURL:       getEnv("SCAN_FEED_URL", "wss://fnfscan.xyz"),
		JupiterBaseURL:    strings.TrimSuffix(getEnv("JUPITER_BASE_URL", "https://lite-api.jup.ag"), "/"),
		EngagementBaseURL: strings.TrimSuffix(getEnv("ENGAGEMENT_BASE_URL", ""), "/"),
		ExternalTimeout:   getEnvDuration("EXTERNAL_TIMEOUT", 15*time.Second),

		// Notifications
		NotifySendDelay: getEnvDuration("NOTIFY_SEND_DELAY", 50*time.Millisecond),

		// Schedules
		SweepSchedule:      getEnv("SWEEP_SCHEDULE", "@every 1m"),
		McapSchedule:       getEnv("MCAP_SCHEDULE", "@every 20s"),
		CheckpointSchedule: getEnv("CHECKPOINT_SCHEDULE", "@every 30s"),
		EngagementSchedule: getEnv("ENGAGEMENT_SCHEDULE", "@every 1m"),
		EngagementSpacing:  getEnvDuration("ENGAGEMENT_SPACING", 2*time.Second),

		// Zones
		ZonesFile: getEnv("ZONES_FILE", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	checkpoints, err := parseMultiples(getEnv("CHECKPOINTS", ""))
	if err != nil {
		return nil, fmt.Errorf("CHECKPOINTS: %w", err)
	}
	cfg.Checkpoints = checkpoints

	return cfg, nil
}

// parseMultiples parses a comma separated list like "3,10,25". An empty
// list yields nil, leaving the choice of defaults to the checkpoint tracker.
func parseMultiples(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "x"))
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
