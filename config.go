package axiosly

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBufferCapacity is the number of records a monitor keeps before evicting the oldest.
	DefaultBufferCapacity = 10_000
	// DefaultForwardQueueSize is the number of single-record forwards that may wait for the
	// background worker before new ones are dropped.
	DefaultForwardQueueSize = 256
	// DefaultForwardTimeout bounds every POST to the backend.
	DefaultForwardTimeout = 10 * time.Second
	// DefaultForwardConcurrency limits the fan-out of a batch forward.
	DefaultForwardConcurrency = 4
	// DefaultSlowThreshold is the latency above which an AI alert is raised.
	DefaultSlowThreshold = 5000 * time.Millisecond
	// DefaultMaxBodyBytes is the largest response body captured into a record.
	DefaultMaxBodyBytes int64 = 1 << 20
)

// LogLevel gates which request, response and error lines a monitor writes.
type LogLevel string

// Log levels understood by a monitor.
const (
	LogNone    LogLevel = "none"
	LogBasic   LogLevel = "basic"
	LogVerbose LogLevel = "verbose"
)

// Valid reports whether l is one of the known log levels.
func (l LogLevel) Valid() bool {
	switch l {
	case LogNone, LogBasic, LogVerbose:
		return true
	default:
		return false
	}
}

// ParseLogLevel parses a log level name, case-insensitively. The empty string maps to LogBasic.
func ParseLogLevel(s string) (LogLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LogBasic, nil
	}
	l := LogLevel(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// Config configures a monitor attached to a single http.Client.
//
// A zero Config is usable: it logs at basic level, never forwards, and does not redact
// anything since a nil Sanitize means identity. Use DefaultConfig to get the redacting
// sanitizer.
type Config struct {
	LogLevel   LogLevel
	AIEnabled  bool
	BackendURL string
	APIKey     string

	// Sanitize redacts header and body fragments before they are logged, buffered or
	// forwarded. Nil means IdentitySanitizer.
	Sanitize Sanitizer

	// Logger receives all monitor output. Nil means a console logger on stderr.
	Logger *zerolog.Logger

	// BufferCapacity is the maximum number of buffered records; the oldest record is evicted
	// when a new one would exceed it.
	BufferCapacity int

	// FlushInterval, when positive, flushes the buffer to the backend on that cadence.
	FlushInterval time.Duration

	// SlowThreshold is the duration above which an AI alert is logged.
	SlowThreshold time.Duration

	// MaxBodyBytes caps the response body captured into a record. Larger bodies are passed
	// through to the caller but not recorded.
	MaxBodyBytes int64

	// PhaseTimings enables httptrace based DNS, connect, TLS and server processing timings.
	PhaseTimings bool

	// MetricsSink receives completed records and internal events, if set.
	MetricsSink MetricsSink

	ForwardQueueSize   int
	ForwardTimeout     time.Duration
	ForwardConcurrency int
	// ForwardTimeouts shape the dedicated backend client built when ForwardClient is nil.
	ForwardTimeouts ForwardTimeouts
	// ForwardClient sends records to the backend. Nil means a dedicated client without
	// monitoring attached.
	ForwardClient *http.Client
}

// DefaultConfig returns the configuration used by Attach and NewMonitoredClient: basic logging,
// AI disabled and the redacting DefaultSanitizer.
func DefaultConfig() Config {
	return Config{
		LogLevel: LogBasic,
		Sanitize: DefaultSanitizer,
	}
}

// Option is a functional option for a monitor Config.
type Option func(*Config)

// WithLogLevel sets the log level.
func WithLogLevel(l LogLevel) Option {
	return func(c *Config) { c.LogLevel = l }
}

// WithAI enables or disables the AI hooks: per-request forwarding and the latency alert.
func WithAI(enabled bool) Option {
	return func(c *Config) { c.AIEnabled = enabled }
}

// WithBackend sets the collector URL and the API key sent as a bearer token.
func WithBackend(backendURL, apiKey string) Option {
	return func(c *Config) {
		c.BackendURL = backendURL
		c.APIKey = apiKey
	}
}

// WithSanitizer replaces the sanitizer. Passing nil disables redaction.
func WithSanitizer(s Sanitizer) Option {
	return func(c *Config) { c.Sanitize = s }
}

// WithLogger sets the logger used by the monitor.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.Logger = &l }
}

// WithBufferCapacity sets the record buffer capacity.
func WithBufferCapacity(n int) Option {
	return func(c *Config) { c.BufferCapacity = n }
}

// WithFlushInterval enables the periodic flush.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Config) { c.FlushInterval = d }
}

// WithSlowThreshold sets the latency alert threshold.
func WithSlowThreshold(d time.Duration) Option {
	return func(c *Config) { c.SlowThreshold = d }
}

// WithMaxBodyBytes sets the response body capture limit.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Config) { c.MaxBodyBytes = n }
}

// WithPhaseTimings enables per-phase request timings.
func WithPhaseTimings() Option {
	return func(c *Config) { c.PhaseTimings = true }
}

// WithMetricsSink sets the metrics sink.
func WithMetricsSink(s MetricsSink) Option {
	return func(c *Config) { c.MetricsSink = s }
}

// WithForwardQueueSize sets the size of the background forward queue.
func WithForwardQueueSize(n int) Option {
	return func(c *Config) { c.ForwardQueueSize = n }
}

// WithForwardTimeout sets the timeout of each backend POST.
func WithForwardTimeout(d time.Duration) Option {
	return func(c *Config) { c.ForwardTimeout = d }
}

// WithForwardTimeouts sets the connection timeouts of the dedicated backend client.
func WithForwardTimeouts(t ForwardTimeouts) Option {
	return func(c *Config) { c.ForwardTimeouts = t }
}

// WithForwardClient sets the client used to reach the backend.
func WithForwardClient(hc *http.Client) Option {
	return func(c *Config) { c.ForwardClient = hc }
}

// Validate checks that the Config can be used.
func (c Config) Validate() error {
	if c.LogLevel != "" && !c.LogLevel.Valid() {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.BufferCapacity < 0 {
		return errors.New("BufferCapacity cannot be negative")
	}
	if c.ForwardQueueSize < 0 {
		return errors.New("ForwardQueueSize cannot be negative")
	}
	if c.ForwardConcurrency < 0 {
		return errors.New("ForwardConcurrency cannot be negative")
	}
	if c.FlushInterval < 0 {
		return errors.New("FlushInterval cannot be negative")
	}
	if c.ForwardTimeout < 0 {
		return errors.New("ForwardTimeout cannot be negative")
	}
	if c.SlowThreshold < 0 {
		return errors.New("SlowThreshold cannot be negative")
	}
	if c.MaxBodyBytes < 0 {
		return errors.New("MaxBodyBytes cannot be negative")
	}
	if err := c.ForwardTimeouts.Validate(); err != nil {
		return err
	}
	if c.BackendURL != "" {
		u, err := url.Parse(c.BackendURL)
		if err != nil {
			return fmt.Errorf("invalid BackendURL: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("BackendURL %q must be an absolute http(s) URL", c.BackendURL)
		}
	}
	return nil
}

// forwardingEnabled reports whether records can be sent to a backend at all.
func (c Config) forwardingEnabled() bool {
	return c.BackendURL != "" && c.APIKey != ""
}

// withDefaults fills unset fields. Sanitize is deliberately left alone here: nil is resolved
// to identity by the monitor, not to DefaultSanitizer.
func (c Config) withDefaults() Config {
	if c.LogLevel == "" {
		c.LogLevel = LogBasic
	}
	if c.Logger == nil {
		l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(zerolog.InfoLevel).
			With().Timestamp().Logger()
		c.Logger = &l
	}
	if c.BufferCapacity == 0 {
		c.BufferCapacity = DefaultBufferCapacity
	}
	if c.ForwardQueueSize == 0 {
		c.ForwardQueueSize = DefaultForwardQueueSize
	}
	if c.ForwardTimeout == 0 {
		c.ForwardTimeout = DefaultForwardTimeout
	}
	if c.ForwardConcurrency == 0 {
		c.ForwardConcurrency = DefaultForwardConcurrency
	}
	if c.SlowThreshold == 0 {
		c.SlowThreshold = DefaultSlowThreshold
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.ForwardClient == nil {
		c.ForwardClient = newForwardClient(c.ForwardTimeouts)
	}
	return c
}
