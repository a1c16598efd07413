package axiosly

import (
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// MetricsRecord tracks a single request attempt: the request, and at most one of a response or
// an error.
type MetricsRecord struct {
	ID       string        `json:"id"`
	Request  RequestInfo   `json:"request"`
	Response *ResponseInfo `json:"response,omitempty"`
	Error    *ErrorInfo    `json:"error,omitempty"`
}

// RequestInfo describes an outgoing request.
type RequestInfo struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Timestamp int64             `json:"timestamp"` // Unix milliseconds
}

// ResponseInfo describes a received response.
type ResponseInfo struct {
	Status    int               `json:"status"`
	Data      any               `json:"data,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Duration  int64             `json:"duration"`  // Milliseconds since the request timestamp
	Timestamp int64             `json:"timestamp"` // Unix milliseconds
	Timings   *PhaseTimings     `json:"timings,omitempty"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// Completed reports whether the record has a terminal outcome.
func (r MetricsRecord) Completed() bool {
	return r.Response != nil || r.Error != nil
}

// Outcome returns "response", "error" or "pending".
func (r MetricsRecord) Outcome() string {
	switch {
	case r.Response != nil:
		return "response"
	case r.Error != nil:
		return "error"
	default:
		return "pending"
	}
}

// Clone returns a copy of the record that shares no maps or pointers with r. Response data is
// copied shallowly; sanitizers already hand out fresh top-level values.
func (r MetricsRecord) Clone() MetricsRecord {
	out := r
	out.Request.Headers = maps.Clone(r.Request.Headers)
	if r.Response != nil {
		resp := *r.Response
		resp.Headers = maps.Clone(r.Response.Headers)
		if r.Response.Timings != nil {
			t := *r.Response.Timings
			resp.Timings = &t
		}
		out.Response = &resp
	}
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	return out
}

// String returns a one-line summary of the record.
func (r MetricsRecord) String() string {
	switch {
	case r.Response != nil:
		return fmt.Sprintf("%s %s -> %d (%dms)",
			r.Request.Method, r.Request.URL, r.Response.Status, r.Response.Duration)
	case r.Error != nil:
		return fmt.Sprintf("%s %s -> error %q", r.Request.Method, r.Request.URL, r.Error.Message)
	default:
		return fmt.Sprintf("%s %s -> pending", r.Request.Method, r.Request.URL)
	}
}

// flattenHeader joins multi-valued headers with ", " and returns nil for empty headers.
func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// asStringMap converts what a sanitizer returned for a header map back into the record shape.
func asStringMap(v any) map[string]string {
	switch typed := v.(type) {
	case nil:
		return nil
	case map[string]string:
		return typed
	case http.Header:
		return flattenHeader(typed)
	case map[string]any:
		out := make(map[string]string, len(typed))
		for k, val := range typed {
			out[k] = fmt.Sprint(val)
		}
		return out
	default:
		return nil
	}
}
