package axiosly

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

//
// Mocks
//

type stubMetricsSink struct {
	recCh   chan MetricsRecord
	eventCh chan string
}

func newStubMetricsSink() *stubMetricsSink {
	return &stubMetricsSink{
		recCh:   make(chan MetricsRecord, 16),
		eventCh: make(chan string, 16),
	}
}

func (s *stubMetricsSink) ObserveRecord(rec MetricsRecord) {
	select {
	case s.recCh <- rec:
	default:
	}
}

func (s *stubMetricsSink) ObserveEvent(name string, _ map[string]any) {
	select {
	case s.eventCh <- name:
	default:
	}
}

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// syncBuffer is a goroutine-safe log sink; the forwarder logs from its own goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// lines returns the decoded JSON log lines written so far.
func (b *syncBuffer) lines(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(b.String()))
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, sonic.UnmarshalString(scanner.Text(), &line))
		out = append(out, line)
	}
	return out
}

// messages returns the "message" field of every log line.
func (b *syncBuffer) messages(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, l := range b.lines(t) {
		msg, _ := l["message"].(string)
		out = append(out, msg)
	}
	return out
}

// testLogger returns a JSON logger at the given level writing into a syncBuffer.
func testLogger(level zerolog.Level) (zerolog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return zerolog.New(buf).Level(level), buf
}

//
// Servers
//

// echoHandler mirrors the request back: method, path, headers and body are reflected in the
// response, and the query parameters "status", "delay" and "tag" shape it.
func echoHandler(w http.ResponseWriter, r *http.Request) {
	if d, err := time.ParseDuration(r.URL.Query().Get("delay")); err == nil {
		time.Sleep(d)
	}
	status := http.StatusOK
	if s, err := strconv.Atoi(r.URL.Query().Get("status")); err == nil {
		status = s
	}
	if tag := r.URL.Query().Get("tag"); tag != "" {
		w.Header().Set("X-Tag", tag)
	}
	w.Header().Set("X-Method", r.Method)
	for key, values := range r.Header {
		for _, v := range values {
			w.Header().Add("X-Echo-"+key, v)
		}
	}
	payload, _ := io.ReadAll(r.Body)
	if ct := r.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// jsonServer answers every request with a fixed JSON body.
func jsonServer(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
}

// recordingBackend is a collector stand-in that stores every forwarded record.
type recordingBackend struct {
	*httptest.Server

	mu      sync.Mutex
	records []MetricsRecord
	auth    []string
	status  int
}

func newRecordingBackend(status int) *recordingBackend {
	b := &recordingBackend{status: status}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec MetricsRecord
		body, _ := io.ReadAll(r.Body)
		_ = sonic.Unmarshal(body, &rec)

		b.mu.Lock()
		b.records = append(b.records, rec)
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		b.mu.Unlock()

		w.WriteHeader(b.status)
	}))
	return b
}

func (b *recordingBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

func (b *recordingBackend) received() []MetricsRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]MetricsRecord(nil), b.records...)
}

func (b *recordingBackend) authHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.auth...)
}

// doGet performs a GET through client and returns the response and its body.
func doGet(t *testing.T, client *http.Client, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}
