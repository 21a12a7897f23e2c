package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address serving HTTP and spectator WebSockets.
	DefaultAddr = ":8470"
	// DefaultGRPCAddr is the default address of the gRPC health service.
	DefaultGRPCAddr = ":8471"
	// DefaultPingInterval controls the keepalive cadence for spectator connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxViewers bounds concurrent spectator connections. Zero disables the limit.
	DefaultMaxViewers = 128
	// DefaultTickRate keeps the scenario's own tick rate. ARENA_TICK_RATE overrides it for served
	// battles.
	DefaultTickRate = 0
	// DefaultSpeed scales wall-clock time fed to the fixed-timestep loop.
	DefaultSpeed = 1.0
	// DefaultSnapshotInterval controls how often state snapshots are broadcast to spectators.
	DefaultSnapshotInterval = 100 * time.Millisecond
	// DefaultRestartDelay is the pause between a finished battle and the next one.
	DefaultRestartDelay = 5 * time.Second
	// DefaultReplayDir is where battle replays are recorded.
	DefaultReplayDir = "replays"

	// DefaultReplayFrameEvery is how many ticks separate recorded state frames.
	DefaultReplayFrameEvery = 30
	// DefaultReplayMaxBundles caps how many replay bundles the retention sweep keeps.
	DefaultReplayMaxBundles = 50
	// DefaultReplayMaxAge removes replay bundles older than this.
	DefaultReplayMaxAge = 7 * 24 * time.Hour

	// DefaultReplayDumpWindow bounds how frequently replay dump triggers may be requested.
	DefaultReplayDumpWindow = time.Minute
	// DefaultReplayDumpBurst sets how many replay dump requests may be made per window.
	DefaultReplayDumpBurst = 1

	// DefaultLogLevel controls verbosity for arena logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "arena.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// ErrInvalidConfig wraps every environment validation failure.
var ErrInvalidConfig = errors.New("invalid arena configuration")

// Config captures all runtime tunables for the arena service.
type Config struct {
	Address          string
	GRPCAddress      string
	AllowedOrigins   []string
	PingInterval     time.Duration
	MaxViewers       int
	ScenarioPath     string
	ReplayDir        string
	ReplayFrameEvery int
	ReplayMaxBundles int
	ReplayMaxAge     time.Duration
	TickRate         int
	Speed            float64
	SnapshotInterval time.Duration
	RestartDelay     time.Duration
	AdminToken       string
	SpectateSecret   string
	GRPCSecret       string
	ReplayDumpWindow time.Duration
	ReplayDumpBurst  int
	Logging          LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the arena configuration from ARENA_* environment variables, applying defaults and
// collecting every invalid override into a single error.
func Load() (*Config, error) {
	cfg := &Config{
		Address:          getString("ARENA_ADDR", DefaultAddr),
		GRPCAddress:      getString("ARENA_GRPC_ADDR", DefaultGRPCAddr),
		AllowedOrigins:   parseList(os.Getenv("ARENA_ALLOWED_ORIGINS")),
		PingInterval:     DefaultPingInterval,
		MaxViewers:       DefaultMaxViewers,
		ScenarioPath:     strings.TrimSpace(os.Getenv("ARENA_SCENARIO")),
		ReplayDir:        getString("ARENA_REPLAY_DIR", DefaultReplayDir),
		ReplayFrameEvery: DefaultReplayFrameEvery,
		ReplayMaxBundles: DefaultReplayMaxBundles,
		ReplayMaxAge:     DefaultReplayMaxAge,
		TickRate:         DefaultTickRate,
		Speed:            DefaultSpeed,
		SnapshotInterval: DefaultSnapshotInterval,
		RestartDelay:     DefaultRestartDelay,
		AdminToken:       strings.TrimSpace(os.Getenv("ARENA_ADMIN_TOKEN")),
		SpectateSecret:   strings.TrimSpace(os.Getenv("ARENA_SPECTATE_SECRET")),
		GRPCSecret:       strings.TrimSpace(os.Getenv("ARENA_GRPC_SHARED_SECRET")),
		ReplayDumpWindow: DefaultReplayDumpWindow,
		ReplayDumpBurst:  DefaultReplayDumpBurst,
		Logging: LoggingConfig{
			Level:      getString("ARENA_LOG_LEVEL", DefaultLogLevel),
			Path:       getString("ARENA_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	parseDuration(&problems, "ARENA_PING_INTERVAL", &cfg.PingInterval)
	parseDuration(&problems, "ARENA_SNAPSHOT_INTERVAL", &cfg.SnapshotInterval)
	parseDuration(&problems, "ARENA_RESTART_DELAY", &cfg.RestartDelay)
	parseDuration(&problems, "ARENA_REPLAY_DUMP_WINDOW", &cfg.ReplayDumpWindow)
	parseDuration(&problems, "ARENA_REPLAY_MAX_AGE", &cfg.ReplayMaxAge)

	parseInt(&problems, "ARENA_MAX_VIEWERS", 0, &cfg.MaxViewers)
	parseInt(&problems, "ARENA_TICK_RATE", 1, &cfg.TickRate)
	parseInt(&problems, "ARENA_REPLAY_DUMP_BURST", 1, &cfg.ReplayDumpBurst)
	parseInt(&problems, "ARENA_REPLAY_FRAME_EVERY", 1, &cfg.ReplayFrameEvery)
	parseInt(&problems, "ARENA_REPLAY_MAX_BUNDLES", 0, &cfg.ReplayMaxBundles)
	parseInt(&problems, "ARENA_LOG_MAX_SIZE_MB", 1, &cfg.Logging.MaxSizeMB)
	parseInt(&problems, "ARENA_LOG_MAX_BACKUPS", 0, &cfg.Logging.MaxBackups)
	parseInt(&problems, "ARENA_LOG_MAX_AGE_DAYS", 0, &cfg.Logging.MaxAgeDays)

	if raw := strings.TrimSpace(os.Getenv("ARENA_SPEED")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("ARENA_SPEED must be a positive number, got %q", raw))
		} else {
			cfg.Speed = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ARENA_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("ARENA_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return cfg, nil
}

func parseDuration(problems *[]string, key string, dst *time.Duration) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	duration, err := time.ParseDuration(raw)
	if err != nil || duration <= 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return
	}
	*dst = duration
}

func parseInt(problems *[]string, key string, minimum int, dst *int) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < minimum {
		*problems = append(*problems, fmt.Sprintf("%s must be an integer >= %d, got %q", key, minimum, raw))
		return
	}
	*dst = value
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
