package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrMalformedResponse is returned for a response with neither a result nor an error.
var ErrMalformedResponse = errors.New("malformed JSON-RPC response")

// ErrChainMismatch is returned when an endpoint reports an unexpected chain id.
var ErrChainMismatch = errors.New("chain id mismatch")

// RPCError is an error response reported by the node.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// TransportError is a network-level failure: connection refused, proxy
// handshake, TLS, timeouts.
type TransportError struct {
	Op    string
	Proxy string // redacted proxy URL, empty for direct
	Err   error
}

func (e *TransportError) Error() string {
	if e.Proxy != "" {
		return fmt.Sprintf("transport %s via %s: %v", e.Op, e.Proxy, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError represents an HTTP-level error (non-2xx status).
type HTTPStatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s (body: %s)", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRetryable returns true if this HTTP error should be retried.
func (e *HTTPStatusError) IsRetryable() bool {
	// 429 Too Many Requests, 502 Bad Gateway, 503 Service Unavailable, 504 Gateway Timeout
	return e.StatusCode == 429 || e.StatusCode == 502 ||
		e.StatusCode == 503 || e.StatusCode == 504
}

func isRetryableHTTPError(err error) bool {
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	return false
}

func getRetryDelay(err error, defaultBackoff time.Duration) time.Duration {
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}
	return defaultBackoff
}
