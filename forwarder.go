package axiosly

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// ForwarderStats is a point-in-time view of a Forwarder's counters.
type ForwarderStats struct {
	Enqueued uint64 // Records accepted by Enqueue
	Dropped  uint64 // Records rejected by Enqueue because the queue was full or closed
	Sent     uint64 // Successful POSTs
	Failed   uint64 // Failed POSTs
}

// Forwarder sends MetricsRecords to a remote collector, one JSON object per POST, authenticated
// with a bearer token. Delivery is best-effort: failures are logged and counted, never retried.
type Forwarder struct {
	backendURL  string
	apiKey      string
	client      *http.Client
	timeout     time.Duration
	concurrency int

	logger zerolog.Logger
	sink   MetricsSink

	queue     chan MetricsRecord
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	sent     atomic.Uint64
	failed   atomic.Uint64
}

// NewForwarder creates a Forwarder from cfg. When a backend is configured it also starts the
// background worker; call Close to stop it.
func NewForwarder(cfg Config) *Forwarder {
	cfg = cfg.withDefaults()
	sink := cfg.MetricsSink
	if sink == nil {
		sink = nopSink{}
	}
	f := &Forwarder{
		backendURL:  cfg.BackendURL,
		apiKey:      cfg.APIKey,
		client:      cfg.ForwardClient,
		timeout:     cfg.ForwardTimeout,
		concurrency: cfg.ForwardConcurrency,
		logger:      cfg.Logger.With().Str("component", "forwarder").Logger(),
		sink:        sink,
		queue:       make(chan MetricsRecord, cfg.ForwardQueueSize),
		done:        make(chan struct{}),
	}

	if f.Configured() {
		f.wg.Add(1)
		go f.run()
	}
	return f
}

// Configured reports whether the forwarder has both a backend URL and an API key.
func (f *Forwarder) Configured() bool {
	return f.backendURL != "" && f.apiKey != ""
}

// Send POSTs a single record to the backend and waits for the reply. A non-2xx reply is
// reported as ErrBackendStatus.
func (f *Forwarder) Send(ctx context.Context, rec MetricsRecord) error {
	if !f.Configured() {
		return ErrBackendNotConfigured
	}
	payload, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.backendURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		// Drain to EOF to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrBackendStatus, resp.StatusCode)
	}
	return nil
}

// Enqueue hands rec to the background worker without blocking. It returns false, and counts
// a drop, when the record cannot be queued.
func (f *Forwarder) Enqueue(rec MetricsRecord) bool {
	if !f.Configured() {
		f.drop(rec, ErrBackendNotConfigured.Error())
		return false
	}
	if f.closed.Load() {
		f.drop(rec, ErrForwarderClosed.Error())
		return false
	}
	select {
	case f.queue <- rec:
		f.enqueued.Inc()
		return true
	default:
		f.drop(rec, "queue full")
		return false
	}
}

// SendBatch sends every record independently, with bounded concurrency, and returns how many
// POSTs succeeded and failed. Failures are logged, not returned.
func (f *Forwarder) SendBatch(ctx context.Context, recs []MetricsRecord) (sent, failed int) {
	var okCount, errCount atomic.Int64

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for _, rec := range recs {
		g.Go(func() error {
			if f.deliver(ctx, rec) {
				okCount.Inc()
			} else {
				errCount.Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(okCount.Load()), int(errCount.Load())
}

// Stats returns the forwarder's counters.
func (f *Forwarder) Stats() ForwarderStats {
	return ForwarderStats{
		Enqueued: f.enqueued.Load(),
		Dropped:  f.dropped.Load(),
		Sent:     f.sent.Load(),
		Failed:   f.failed.Load(),
	}
}

// Close stops accepting records, sends what is already queued and waits for the worker.
func (f *Forwarder) Close() error {
	f.closeOnce.Do(func() {
		f.closed.Store(true)
		close(f.done)
		f.wg.Wait()
	})
	return nil
}

func (f *Forwarder) run() {
	defer f.wg.Done()

	for {
		select {
		case rec := <-f.queue:
			f.deliver(context.Background(), rec)
		case <-f.done:
			for {
				select {
				case rec := <-f.queue:
					f.deliver(context.Background(), rec)
				default:
					return
				}
			}
		}
	}
}

// deliver sends rec and records the outcome. It never returns the error.
func (f *Forwarder) deliver(ctx context.Context, rec MetricsRecord) bool {
	if err := f.Send(ctx, rec); err != nil {
		f.failed.Inc()
		f.logger.Error().Err(err).Str("id", rec.ID).Msg("Axiosly: Failed to send metrics to backend")
		f.sink.ObserveEvent(EventForwardFailed, map[string]any{"id": rec.ID, "error": err.Error()})
		return false
	}
	f.sent.Inc()
	return true
}

func (f *Forwarder) drop(rec MetricsRecord, reason string) {
	f.dropped.Inc()
	f.logger.Warn().Str("id", rec.ID).Str("reason", reason).Msg("Axiosly: dropped metrics forward")
	f.sink.ObserveEvent(EventForwardDropped, map[string]any{"id": rec.ID, "reason": reason})
}
