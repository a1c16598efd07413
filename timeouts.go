package axiosly

import (
	"errors"
	"net"
	"net/http"
	"time"
)

// defaultDialTimeout is the dial timeout of the backend client when none is configured.
const defaultDialTimeout = 5 * time.Second

// ForwardTimeouts configures the connection-level timeouts of the client that sends records to
// the backend. The overall per-POST timeout is Config.ForwardTimeout. Ignored when
// Config.ForwardClient is set.
type ForwardTimeouts struct {
	// Dial is the maximum duration waiting for a network dial to complete.
	// Zero uses the default of 5 seconds.
	Dial time.Duration

	// TLSHandshake maps to http.Transport.TLSHandshakeTimeout.
	// Zero uses the Go stdlib default.
	TLSHandshake time.Duration

	// ResponseHeader maps to http.Transport.ResponseHeaderTimeout. Zero means no timeout.
	ResponseHeader time.Duration

	// IdleConn maps to http.Transport.IdleConnTimeout.
	// Zero uses the Go stdlib default.
	IdleConn time.Duration
}

// Validate checks that the ForwardTimeouts are usable.
func (t ForwardTimeouts) Validate() error {
	if t.Dial < 0 {
		return errors.New("ForwardTimeouts.Dial cannot be negative")
	}
	if t.TLSHandshake < 0 || t.ResponseHeader < 0 || t.IdleConn < 0 {
		return errors.New("ForwardTimeouts cannot be negative")
	}
	return nil
}

// newForwardClient builds the dedicated backend client. It never carries a monitoring
// transport, so forwards are not themselves recorded.
func newForwardClient(t ForwardTimeouts) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()

	dial := t.Dial
	if dial == 0 {
		dial = defaultDialTimeout
	}
	tr.DialContext = (&net.Dialer{Timeout: dial, KeepAlive: 30 * time.Second}).DialContext

	if t.TLSHandshake > 0 {
		tr.TLSHandshakeTimeout = t.TLSHandshake
	}
	if t.ResponseHeader > 0 {
		tr.ResponseHeaderTimeout = t.ResponseHeader
	}
	if t.IdleConn > 0 {
		tr.IdleConnTimeout = t.IdleConn
	}
	return &http.Client{Transport: tr}
}
