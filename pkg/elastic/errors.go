package elastic

import (
	"errors"
	"fmt"
	"net"
)

// ProtocolError is an HTTP-level error response (4xx/5xx) from the live
// source. Protocol errors are never retried on the same transport; they
// immediately escalate to the other transport.
type ProtocolError struct {
	StatusCode int
	Body       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("source returned status %d: %s", e.StatusCode, e.Body)
}

// NetworkError is a connection-level or timeout failure. Network errors are
// retried with backoff before the transport is given up on.
type NetworkError struct {
	Err     error
	Timeout bool
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("source request timed out: %v", e.Err)
	}
	return fmt.Sprintf("source request failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// wrapNetworkError classifies a transport-level error, flagging timeouts.
func wrapNetworkError(err error) *NetworkError {
	var netErr net.Error
	timeout := errors.As(err, &netErr) && netErr.Timeout()
	return &NetworkError{Err: err, Timeout: timeout}
}

// retryable reports whether an attempt error is worth retrying on the same
// transport: network and timeout failures are, protocol errors are not.
func retryable(err error) bool {
	var pe *ProtocolError
	return !errors.As(err, &pe)
}
