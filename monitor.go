package axiosly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jkbrsn/taskman"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// Monitor owns the records captured from one monitored http.Client, along with the forwarder
// that ships them to a backend.
type Monitor struct {
	cfg       Config
	sanitize  Sanitizer
	logger    zerolog.Logger
	sink      MetricsSink
	buffer    *Buffer
	forwarder *Forwarder

	taskManager *taskman.TaskManager
	closeOnce   sync.Once
}

// Attach monitors client with DefaultConfig modified by opts. The client's Transport, or
// http.DefaultTransport when nil, is wrapped in a monitoring Transport.
//
// Attaching twice to the same client wraps the transport twice, and every request is then
// recorded by both monitors.
func Attach(client *http.Client, opts ...Option) (*Monitor, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return AttachConfig(client, cfg)
}

// AttachConfig monitors client with an explicit Config. Unlike Attach, a nil cfg.Sanitize is
// not replaced by DefaultSanitizer: it means no redaction.
func AttachConfig(client *http.Client, cfg Config) (*Monitor, error) {
	if client == nil {
		return nil, errors.New("client is nil")
	}
	m, err := NewMonitor(cfg)
	if err != nil {
		return nil, err
	}
	client.Transport = m.Wrap(client.Transport)

	m.capturedEvent().Msg("axiosly monitoring enabled on http client")
	m.sink.ObserveEvent(EventMonitorAttached, map[string]any{
		"log_level":  string(m.cfg.LogLevel),
		"ai_enabled": m.cfg.AIEnabled,
	})
	return m, nil
}

// NewMonitor creates a Monitor that is not yet attached to a client. Use Wrap to put it in
// front of a RoundTripper.
func NewMonitor(cfg Config) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	sanitize := cfg.Sanitize
	if sanitize == nil {
		sanitize = IdentitySanitizer
	}
	sink := cfg.MetricsSink
	if sink == nil {
		sink = nopSink{}
	}

	m := &Monitor{
		cfg:       cfg,
		sanitize:  sanitize,
		logger:    cfg.Logger.With().Str("component", "axiosly").Logger(),
		sink:      sink,
		buffer:    NewBuffer(cfg.BufferCapacity),
		forwarder: NewForwarder(cfg),
	}
	m.buffer.setEvictCallback(m.onEvict)

	if cfg.FlushInterval > 0 {
		if err := m.scheduleFlush(cfg.FlushInterval); err != nil {
			_ = m.forwarder.Close()
			return nil, err
		}
	}
	return m, nil
}

// Wrap returns a Transport recording into m that delegates to base, or to
// http.DefaultTransport when base is nil.
func (m *Monitor) Wrap(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, monitor: m}
}

// Flush drains the completed records from the buffer and forwards each to the backend, one POST
// each. It returns the number of records drained. Records of requests still in flight stay
// buffered for a later flush. Forward failures are logged, not returned. When no backend is
// configured the buffer is left untouched and Flush returns 0.
func (m *Monitor) Flush(ctx context.Context) int {
	if !m.forwarder.Configured() {
		m.logger.Warn().Int("buffered", m.buffer.Len()).Msg("Axiosly: flush skipped, backend not configured")
		return 0
	}

	recs := m.buffer.DrainCompleted()
	if len(recs) == 0 {
		return 0
	}

	sent, failed := m.forwarder.SendBatch(ctx, recs)
	m.logger.Debug().
		Int("records", len(recs)).
		Int("sent", sent).
		Int("failed", failed).
		Msg("Axiosly: flushed metrics")
	m.sink.ObserveEvent(EventFlush, map[string]any{
		"records": len(recs),
		"sent":    sent,
		"failed":  failed,
	})
	return len(recs)
}

// Records returns copies of the buffered records in request order.
func (m *Monitor) Records() []MetricsRecord {
	return m.buffer.Snapshot()
}

// Buffer returns the monitor's record buffer.
func (m *Monitor) Buffer() *Buffer {
	return m.buffer
}

// Forwarder returns the monitor's forwarder.
func (m *Monitor) Forwarder() *Forwarder {
	return m.forwarder
}

// Config returns the effective configuration, defaults included.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Close stops the periodic flush, if any, and the forwarder, waiting for queued forwards.
// Buffered records are not flushed.
func (m *Monitor) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.taskManager != nil {
			m.taskManager.Stop()
		}
		err = m.forwarder.Close()
	})
	return err
}

func (m *Monitor) onEvict(rec MetricsRecord) {
	m.logger.Debug().Str("id", rec.ID).Msg("Axiosly: buffer full, evicted oldest record")
	m.sink.ObserveEvent(EventRecordEvicted, map[string]any{"id": rec.ID})
}

// flushTask is a taskman.Task flushing the monitor it belongs to.
type flushTask struct {
	monitor *Monitor
}

// Execute flushes the monitor.
func (t flushTask) Execute() error {
	t.monitor.Flush(context.Background())
	return nil
}

func (m *Monitor) scheduleFlush(cadence time.Duration) error {
	tm := taskman.New()
	job := taskman.Job{
		ID:       "axiosly-flush-" + xid.New().String(),
		Cadence:  cadence,
		NextExec: time.Now().Add(cadence),
		Tasks:    []taskman.Task{flushTask{monitor: m}},
	}
	if err := tm.ScheduleJob(job); err != nil {
		tm.Stop()
		return fmt.Errorf("scheduling periodic flush: %w", err)
	}
	m.taskManager = tm
	return nil
}

// MonitoredClient is an http.Client with a Monitor attached, and an optional base URL that
// NewRequest resolves references against.
type MonitoredClient struct {
	*http.Client
	*Monitor

	BaseURL *url.URL
}

// NewMonitoredClient creates a fresh http.Client, attaches monitoring configured by opts, and
// returns both. baseURL may be empty; otherwise it must be an absolute URL.
func NewMonitoredClient(baseURL string, opts ...Option) (*MonitoredClient, error) {
	var base *url.URL
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		if !u.IsAbs() {
			return nil, fmt.Errorf("base URL %q is not absolute", baseURL)
		}
		base = u
	}

	client := &http.Client{}
	m, err := Attach(client, opts...)
	if err != nil {
		return nil, err
	}
	return &MonitoredClient{Client: client, Monitor: m, BaseURL: base}, nil
}

// NewRequest builds a request for ref, resolved against the base URL when one is set.
func (c *MonitoredClient) NewRequest(
	ctx context.Context,
	method, ref string,
	body io.Reader,
) (*http.Request, error) {
	target := ref
	if c.BaseURL != nil {
		u, err := c.BaseURL.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", ref, err)
		}
		target = u.String()
	}
	return http.NewRequestWithContext(ctx, method, target, body)
}
