package axiosly

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestErrorCode(t *testing.T) {
	dial := func(err error) error {
		return &url.Error{Op: "Get", URL: "http://example.com", Err: &net.OpError{
			Op:  "dial",
			Net: "tcp",
			Err: os.NewSyscallError("connect", err),
		}}
	}

	testCases := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: CodeUnclassified},
		{name: "unknown", err: errors.New("something else"), expected: CodeUnclassified},
		{name: "request hook", err: fmt.Errorf("%w: sanitizer", ErrRequestHook), expected: CodeRequestHook},
		{name: "canceled", err: &url.Error{Op: "Get", Err: context.Canceled}, expected: CodeCanceled},
		{name: "deadline", err: &url.Error{Op: "Get", Err: context.DeadlineExceeded}, expected: CodeTimeout},
		{name: "connection refused", err: dial(syscall.ECONNREFUSED), expected: CodeConnRefused},
		{name: "connection reset", err: dial(syscall.ECONNRESET), expected: CodeConnReset},
		{
			name:     "dns not found",
			err:      &net.OpError{Op: "dial", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}},
			expected: CodeNotFound,
		},
		{
			name:     "dns timeout",
			err:      &net.DNSError{Err: "timeout", Name: "slow.example", IsTimeout: true},
			expected: CodeTimeout,
		},
		{
			name:     "tls unknown authority",
			err:      &url.Error{Op: "Get", Err: x509.UnknownAuthorityError{}},
			expected: CodeTLS,
		},
		{
			name:     "tls hostname",
			err:      x509.HostnameError{Host: "example.com", Certificate: &x509.Certificate{}},
			expected: CodeTLS,
		},
		{name: "net timeout", err: &url.Error{Op: "Get", Err: timeoutError{}}, expected: CodeTimeout},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ErrorCode(tc.err))
		})
	}
}
