package axiosly

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"
)

var (
	// ErrRequestHook is returned by a monitored transport when its request hook fails, e.g.
	// because a custom sanitizer panicked. The request is not sent.
	ErrRequestHook = errors.New("axiosly: request hook failed")

	// ErrBackendStatus is returned when the backend replies with a non-2xx status.
	ErrBackendStatus = errors.New("axiosly: unexpected backend status")

	// ErrBackendNotConfigured is returned when forwarding is attempted without a backend URL
	// and API key.
	ErrBackendNotConfigured = errors.New("axiosly: backend not configured")

	// ErrForwarderClosed is returned when forwarding is attempted after Close.
	ErrForwarderClosed = errors.New("axiosly: forwarder closed")
)

// Error codes recorded in ErrorInfo.Code.
const (
	CodeCanceled     = "ERR_CANCELED"
	CodeTimeout      = "ETIMEDOUT"
	CodeConnRefused  = "ECONNREFUSED"
	CodeConnReset    = "ECONNRESET"
	CodeNotFound     = "ENOTFOUND"
	CodeTLS          = "ERR_TLS"
	CodeRequestHook  = "ERR_REQUEST_HOOK"
	CodeUnclassified = ""
)

// ErrorCode classifies a transport error into a short, stable code. Unknown errors map to the
// empty string.
func ErrorCode(err error) string {
	if err == nil {
		return CodeUnclassified
	}
	if errors.Is(err, ErrRequestHook) {
		return CodeRequestHook
	}
	if errors.Is(err, context.Canceled) {
		return CodeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return CodeTimeout
		}
		return CodeNotFound
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return CodeConnRefused
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return CodeConnReset
	}

	var (
		certErr      *tls.CertificateVerificationError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		recordHeader tls.RecordHeaderError
	)
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) || errors.As(err, &recordHeader) {
		return CodeTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	return CodeUnclassified
}
