// Package config loads the axiosly CLI configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jkbrsn/axiosly"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Environment variable names.
const (
	EnvLogLevel       = "AXIOSLY_LOG_LEVEL"
	EnvAIEnabled      = "AXIOSLY_AI_ENABLED"
	EnvBackendURL     = "AXIOSLY_BACKEND_URL"
	EnvAPIKey         = "AXIOSLY_API_KEY"
	EnvFlushInterval  = "AXIOSLY_FLUSH_INTERVAL"
	EnvBufferCapacity = "AXIOSLY_BUFFER_CAPACITY"
	EnvSlowThreshold  = "AXIOSLY_SLOW_THRESHOLD"
	EnvCollectorAddr  = "AXIOSLY_COLLECTOR_ADDR"
	EnvCollectorKey   = "AXIOSLY_COLLECTOR_KEY"
)

// DefaultCollectorAddr is the listen address of `axiosly collect`.
const DefaultCollectorAddr = ":8090"

// Monitor holds the settings of the monitored client used by `axiosly probe`.
type Monitor struct {
	LogLevel       axiosly.LogLevel
	AIEnabled      bool
	BackendURL     string
	APIKey         string
	FlushInterval  time.Duration
	BufferCapacity int
	SlowThreshold  time.Duration
}

// Collector holds the settings of `axiosly collect` and `axiosly tail`.
type Collector struct {
	Addr   string
	APIKey string
}

// Config is the full CLI configuration.
type Config struct {
	Monitor   Monitor
	Collector Collector
}

// Load reads a .env file from each of paths, if present, then the process environment.
// Values already set in the environment take precedence over .env files.
func Load(paths ...string) (Config, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p).Msg("could not read env file")
		}
	}

	level, err := axiosly.ParseLogLevel(os.Getenv(EnvLogLevel))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Monitor: Monitor{
			LogLevel:       level,
			AIEnabled:      envBool(EnvAIEnabled, false),
			BackendURL:     strings.TrimSpace(os.Getenv(EnvBackendURL)),
			APIKey:         strings.TrimSpace(os.Getenv(EnvAPIKey)),
			FlushInterval:  envDurationMS(EnvFlushInterval, 0),
			BufferCapacity: envInt(EnvBufferCapacity, axiosly.DefaultBufferCapacity),
			SlowThreshold:  envDurationMS(EnvSlowThreshold, axiosly.DefaultSlowThreshold),
		},
		Collector: Collector{
			Addr:   envDefault(EnvCollectorAddr, DefaultCollectorAddr),
			APIKey: strings.TrimSpace(os.Getenv(EnvCollectorKey)),
		},
	}
	// The collector accepts what the monitor forwards unless told otherwise
	if cfg.Collector.APIKey == "" {
		cfg.Collector.APIKey = cfg.Monitor.APIKey
	}
	return cfg, nil
}

// Options converts the monitor settings to axiosly options.
func (m Monitor) Options() []axiosly.Option {
	return []axiosly.Option{
		axiosly.WithLogLevel(m.LogLevel),
		axiosly.WithAI(m.AIEnabled),
		axiosly.WithBackend(m.BackendURL, m.APIKey),
		axiosly.WithFlushInterval(m.FlushInterval),
		axiosly.WithBufferCapacity(m.BufferCapacity),
		axiosly.WithSlowThreshold(m.SlowThreshold),
	}
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Err(err).Str("key", k).Str("value", v).Int("default", def).Msg("invalid env value, using default")
		return def
	}
	return n
}

func envBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Err(err).Str("key", k).Str("value", v).Bool("default", def).Msg("invalid env value, using default")
		return def
	}
	return b
}

// envDurationMS accepts plain integer milliseconds ("1500") or Go duration strings ("1.5s").
func envDurationMS(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }) != -1 {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Warn().Err(err).Str("key", k).Str("value", v).Dur("default", def).Msg("invalid env value, using default")
			return def
		}
		return d
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Err(err).Str("key", k).Str("value", v).Dur("default", def).Msg("invalid env value, using default")
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
