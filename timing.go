package axiosly

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net/http/httptrace"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// PhaseTimings breaks a request's latency down into phases, in milliseconds. Phases that did
// not happen, e.g. DNS for an IP literal or TLS on a reused connection, are nil.
type PhaseTimings struct {
	DNSLookup        *int64 `json:"dnsLookup,omitempty"`
	TCPConnect       *int64 `json:"tcpConnect,omitempty"`
	TLSHandshake     *int64 `json:"tlsHandshake,omitempty"`
	ServerProcessing *int64 `json:"serverProcessing,omitempty"`
	// FirstByte is the time from acquiring a connection to the first response byte.
	FirstByte *int64 `json:"firstByte,omitempty"`
}

// traceTimes stores the instants reported by httptrace. Callbacks may fire on transport
// goroutines, hence the atomics.
type traceTimes struct {
	start     atomic.Time
	dnsStart  atomic.Time
	dnsDone   atomic.Time
	connStart atomic.Time
	connDone  atomic.Time
	tlsStart  atomic.Time
	tlsDone   atomic.Time
	wroteDone atomic.Time
	firstByte atomic.Time
}

// ptr returns a pointer to the given value.
func ptr[T any](v T) *T { return &v }

// millisBetween returns the milliseconds from a to b, or nil when either instant is unset.
func millisBetween(a, b time.Time) *int64 {
	if a.IsZero() || b.IsZero() {
		return nil
	}
	d := b.Sub(a)
	if d < 0 {
		d = 0
	}
	return ptr(d.Milliseconds())
}

// Timings derives PhaseTimings from the recorded instants. Returns nil when nothing was traced.
func (t *traceTimes) Timings() *PhaseTimings {
	pt := &PhaseTimings{
		DNSLookup:        millisBetween(t.dnsStart.Load(), t.dnsDone.Load()),
		TCPConnect:       millisBetween(t.connStart.Load(), t.connDone.Load()),
		TLSHandshake:     millisBetween(t.tlsStart.Load(), t.tlsDone.Load()),
		ServerProcessing: millisBetween(t.wroteDone.Load(), t.firstByte.Load()),
		FirstByte:        millisBetween(t.start.Load(), t.firstByte.Load()),
	}
	if *pt == (PhaseTimings{}) {
		return nil
	}
	return pt
}

// traceRequest returns a ClientTrace storing its timestamps in times.
func traceRequest(times *traceTimes) *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		// The earliest guaranteed callback is GetConn, so the start time is set there
		GetConn:           func(string) { times.start.Store(time.Now()) },
		DNSStart:          func(httptrace.DNSStartInfo) { times.dnsStart.Store(time.Now()) },
		DNSDone:           func(httptrace.DNSDoneInfo) { times.dnsDone.Store(time.Now()) },
		ConnectStart:      func(_, _ string) { times.connStart.Store(time.Now()) },
		ConnectDone:       func(_, _ string, _ error) { times.connDone.Store(time.Now()) },
		TLSHandshakeStart: func() { times.tlsStart.Store(time.Now()) },
		TLSHandshakeDone: func(_ tls.ConnectionState, _ error) {
			times.tlsDone.Store(time.Now())
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { times.wroteDone.Store(time.Now()) },
		GotFirstResponseByte: func() { times.firstByte.Store(time.Now()) },
	}
}

// captureBody wraps a response body and keeps a copy of up to limit bytes as the caller reads
// it, so the caller's reads are never delayed. done runs once, when the caller is finished with
// the body. data is only set when the whole body fit within the limit.
type captureBody struct {
	rc    io.ReadCloser
	limit int64
	size  int64 // Content-Length, or -1 when unknown

	mu   sync.Mutex
	buf  bytes.Buffer
	over bool

	once sync.Once
	done func(data []byte, complete bool)
}

func newCaptureBody(rc io.ReadCloser, limit, size int64, done func([]byte, bool)) *captureBody {
	return &captureBody{rc: rc, limit: limit, size: size, done: done}
}

// Read reads from the original body, copying what it returns.
func (b *captureBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		b.mu.Lock()
		if !b.over {
			if int64(b.buf.Len()+n) > b.limit {
				b.over = true
				b.buf = bytes.Buffer{}
			} else {
				b.buf.Write(p[:n])
			}
		}
		b.mu.Unlock()
	}
	switch {
	case errors.Is(err, io.EOF):
		b.finish(true)
	case err != nil:
		b.finish(false)
	}
	return n, err
}

// Close closes the original body.
func (b *captureBody) Close() error {
	err := b.rc.Close()
	b.finish(false)
	return err
}

func (b *captureBody) finish(eof bool) {
	b.once.Do(func() {
		b.mu.Lock()
		// A reader that stops at Content-Length without seeing EOF still read the whole body
		complete := !b.over && (eof || (b.size >= 0 && int64(b.buf.Len()) == b.size))
		var data []byte
		if complete {
			data = bytes.Clone(b.buf.Bytes())
		}
		b.mu.Unlock()
		b.done(data, complete)
	})
}
