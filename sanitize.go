package axiosly

import (
	"maps"
	"net/http"
	"strings"
)

// RedactedMarker replaces the value of every redacted field.
const RedactedMarker = "[REDACTED]"

// Sanitizer transforms a record fragment, usually a header map or a decoded response body,
// into a same-shaped value with sensitive fields redacted. A Sanitizer must not mutate its
// input and must not panic.
type Sanitizer func(any) any

// IdentitySanitizer returns its input unchanged.
func IdentitySanitizer(v any) any { return v }

// DefaultSanitizer redacts authorization values and marks nested data payloads as sensitive.
//
// Keyed structures are shallow-copied: an "Authorization" key (any case) at the top level or
// inside a nested "headers" map is replaced with RedactedMarker, and a keyed "data" payload is
// copied with its "sensitive" field set to RedactedMarker. Any other value, slices included,
// passes through unchanged.
func DefaultSanitizer(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		if typed == nil {
			return v
		}
		out := maps.Clone(typed)
		redactAuthorization(out)
		if h, ok := out["headers"]; ok {
			out["headers"] = sanitizeHeaders(h)
		}
		switch data := out["data"].(type) {
		case map[string]any:
			if data != nil {
				d := maps.Clone(data)
				d["sensitive"] = RedactedMarker
				out["data"] = d
			}
		case map[string]string:
			if data != nil {
				d := maps.Clone(data)
				d["sensitive"] = RedactedMarker
				out["data"] = d
			}
		}
		return out
	case map[string]string, http.Header:
		return sanitizeHeaders(v)
	default:
		return v
	}
}

// sanitizeHeaders redacts authorization values in the header-like shapes used by records.
func sanitizeHeaders(v any) any {
	switch typed := v.(type) {
	case map[string]string:
		if typed == nil {
			return v
		}
		out := maps.Clone(typed)
		for k := range out {
			if isAuthorizationKey(k) {
				out[k] = RedactedMarker
			}
		}
		return out
	case map[string]any:
		if typed == nil {
			return v
		}
		out := maps.Clone(typed)
		redactAuthorization(out)
		return out
	case http.Header:
		if typed == nil {
			return v
		}
		out := typed.Clone()
		for k := range out {
			if isAuthorizationKey(k) {
				out[k] = []string{RedactedMarker}
			}
		}
		return out
	default:
		return v
	}
}

func redactAuthorization(m map[string]any) {
	for k := range m {
		if isAuthorizationKey(k) {
			m[k] = RedactedMarker
		}
	}
}

func isAuthorizationKey(k string) bool {
	return strings.EqualFold(k, "authorization")
}

// safeSanitize runs s and converts a panic into ok == false.
func safeSanitize(s Sanitizer, v any) (out any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = nil, false
		}
	}()
	return s(v), true
}
