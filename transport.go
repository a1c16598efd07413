package axiosly

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// Transport is an http.RoundTripper that records every request passing through it into its
// Monitor, then delegates to the wrapped RoundTripper. It never changes what is sent: the
// request keeps its method, URL, headers and body, and the caller receives the same status,
// headers and body bytes the wrapped transport produced.
type Transport struct {
	base    http.RoundTripper
	monitor *Monitor
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	m := t.monitor
	start := time.Now()

	rec, err := m.beforeRequest(req, start)
	if err != nil {
		// The RoundTripper contract requires closing the body, even on errors
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	outReq := req
	var times *traceTimes
	if m.cfg.PhaseTimings {
		times = &traceTimes{}
		outReq = req.WithContext(httptrace.WithClientTrace(req.Context(), traceRequest(times)))
	}

	resp, err := t.base.RoundTrip(outReq)
	if err != nil {
		m.afterError(rec, err)
		return resp, err
	}
	m.afterResponse(rec, start, req, resp, times)
	return resp, nil
}

// CloseIdleConnections closes the idle connections of the wrapped RoundTripper, if it keeps any.
func (t *Transport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if ci, ok := t.base.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}

// beforeRequest is the request hook: it builds, sanitizes, logs and buffers the record and
// schedules a forward when the AI hooks are on.
func (m *Monitor) beforeRequest(req *http.Request, now time.Time) (MetricsRecord, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	var reqURL string
	if req.URL != nil {
		reqURL = req.URL.String()
	}

	headers, ok := safeSanitize(m.sanitize, flattenHeader(req.Header))
	if !ok {
		m.logger.Error().Str("url", reqURL).Msg("Axiosly: sanitizer panicked on request headers")
		return MetricsRecord{}, fmt.Errorf("%w: sanitizer panicked on request headers", ErrRequestHook)
	}

	rec := MetricsRecord{
		ID: xid.New().String(),
		Request: RequestInfo{
			URL:       reqURL,
			Method:    method,
			Headers:   asStringMap(headers),
			Timestamp: now.UnixMilli(),
		},
	}

	if m.cfg.LogLevel != LogNone {
		m.levelEvent().
			Str("url", rec.Request.URL).
			Str("method", rec.Request.Method).
			Interface("headers", rec.Request.Headers).
			Int64("timestamp", rec.Request.Timestamp).
			Msg("AxioslyRequest:")
	}

	m.buffer.Append(rec)
	m.capturedEvent().Str("id", rec.ID).Int("buffered", m.buffer.Len()).Msg("Request captured")

	if m.cfg.AIEnabled && m.cfg.forwardingEnabled() {
		m.forwarder.Enqueue(rec.Clone())
	}

	return rec, nil
}

// afterResponse is the response hook. Records whose body is captured are completed once the
// caller has read or closed the body; all others are completed here.
func (m *Monitor) afterResponse(
	rec MetricsRecord,
	start time.Time,
	req *http.Request,
	resp *http.Response,
	times *traceTimes,
) {
	now := time.Now()
	elapsed := max(now.Sub(start), 0)
	info := &ResponseInfo{
		Status:    resp.StatusCode,
		Headers:   flattenHeader(resp.Header),
		Duration:  elapsed.Milliseconds(),
		Timestamp: now.UnixMilli(),
	}
	if times != nil {
		info.Timings = times.Timings()
	}

	if !m.shouldCaptureBody(req, resp) {
		m.completeResponse(rec, info, elapsed)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	resp.Body = newCaptureBody(resp.Body, m.cfg.MaxBodyBytes, resp.ContentLength, func(raw []byte, complete bool) {
		if complete && len(raw) > 0 {
			sanitized, ok := safeSanitize(m.sanitize, decodeBody(raw, contentType))
			if ok {
				info.Data = sanitized
			} else {
				m.logger.Warn().Str("id", rec.ID).Msg("Axiosly: sanitizer panicked on response body, body not recorded")
			}
		}
		m.completeResponse(rec, info, elapsed)
	})
}

// completeResponse attaches info to the record and reports it.
func (m *Monitor) completeResponse(rec MetricsRecord, info *ResponseInfo, elapsed time.Duration) {
	updated, ok := m.buffer.Complete(rec.ID, func(r *MetricsRecord) { r.Response = info })
	if !ok {
		// Evicted while in flight; the outcome is still logged and reported
		m.logger.Debug().Str("id", rec.ID).Msg("Axiosly: record no longer buffered")
		updated = rec.Clone()
		updated.Response = info
	}

	m.capturedEvent().Str("id", updated.ID).Int("buffered", m.buffer.Len()).Msg("Response captured")
	if m.cfg.LogLevel != LogNone {
		e := m.levelEvent().
			Int("status", info.Status).
			Int64("duration", info.Duration).
			Int64("timestamp", info.Timestamp).
			Interface("headers", info.Headers)
		if info.Data != nil {
			e = e.Interface("data", info.Data)
		}
		e.Msg("AxioslyResponse:")
	}

	if m.cfg.AIEnabled && elapsed > m.cfg.SlowThreshold {
		m.logger.Warn().
			Str("id", updated.ID).
			Str("url", updated.Request.URL).
			Int64("duration", info.Duration).
			Msg("Axiosly AI Alert: High latency detected - Potential failure!")
		m.sink.ObserveEvent(EventSlowResponse, map[string]any{
			"id":       updated.ID,
			"url":      updated.Request.URL,
			"duration": info.Duration,
		})
	}

	m.sink.ObserveRecord(updated)
}

// afterError is the error hook. The caller returns err unchanged.
func (m *Monitor) afterError(rec MetricsRecord, err error) {
	info := &ErrorInfo{
		Message:   err.Error(),
		Code:      ErrorCode(err),
		Timestamp: time.Now().UnixMilli(),
	}

	updated, ok := m.buffer.Complete(rec.ID, func(r *MetricsRecord) { r.Error = info })
	if !ok {
		m.logger.Debug().Str("id", rec.ID).Msg("Axiosly: record no longer buffered")
		updated = rec.Clone()
		updated.Error = info
	}

	if m.cfg.LogLevel != LogNone {
		m.logger.Error().
			Str("message", info.Message).
			Str("code", info.Code).
			Int64("timestamp", info.Timestamp).
			Msg("Axiosly Error:")
	}

	m.sink.ObserveRecord(updated)
}

// capturedEvent returns the event for the "captured" lines, which ignore the configured
// LogLevel unless logging is off, in which case they drop to debug.
func (m *Monitor) capturedEvent() *zerolog.Event {
	if m.cfg.LogLevel == LogNone {
		return m.logger.Debug()
	}
	return m.logger.Log()
}

// levelEvent returns the event used for request and response lines: verbose output carries no
// level so it is always printed, basic output is logged at info.
func (m *Monitor) levelEvent() *zerolog.Event {
	if m.cfg.LogLevel == LogVerbose {
		return m.logger.Log()
	}
	return m.logger.Info()
}

// shouldCaptureBody reports whether the response body is small and finite enough to record.
// Upgraded connections are handed to the caller untouched.
func (m *Monitor) shouldCaptureBody(req *http.Request, resp *http.Response) bool {
	if resp.Body == nil || resp.Body == http.NoBody {
		return false
	}
	if resp.StatusCode == http.StatusSwitchingProtocols {
		return false
	}
	if _, ok := resp.Body.(io.Writer); ok {
		return false
	}
	if req.Method == http.MethodHead {
		return false
	}
	if resp.ContentLength > m.cfg.MaxBodyBytes {
		return false
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return mediaType != "text/event-stream"
}

// decodeBody turns a captured body into the value stored in the record: JSON bodies are
// decoded, anything else is kept as text.
func decodeBody(raw []byte, contentType string) any {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	trimmed := bytes.TrimSpace(raw)
	looksJSON := len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
	if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") || looksJSON {
		var v any
		if err := sonic.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}
