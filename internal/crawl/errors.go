package crawl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrorKind classifies a processing failure for the recovery path.
// Only connection errors, timeouts, HTTP 5xx responses and captured
// interruptions are worth retrying; everything else would fail the
// same way on replay.
type ErrorKind int

const (
	// KindOther covers non-retryable failures (malformed responses,
	// normalization errors, protocol violations).
	KindOther ErrorKind = iota
	// KindConnection covers network-level connection failures.
	KindConnection
	// KindTimeout covers request and dial timeouts.
	KindTimeout
	// KindServerError covers HTTP 5xx responses.
	KindServerError
	// KindClientError covers HTTP 4xx responses.
	KindClientError
	// KindInterrupted marks items captured during a controlled
	// shutdown; they are always replayed.
	KindInterrupted
)

// String returns a log-friendly name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindServerError:
		return "server_error"
	case KindClientError:
		return "client_error"
	case KindInterrupted:
		return "interrupted"
	default:
		return "other"
	}
}

// Retryable reports whether a failure of this kind should be queued
// for out-of-band recovery.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindConnection, KindTimeout, KindServerError, KindInterrupted:
		return true
	default:
		return false
	}
}

// FetchError is returned by the HTTP fetch layer when a request could
// not be completed. StatusCode is zero for transport-level failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *FetchError) Unwrap() error { return e.Err }

// Kind classifies the fetch failure.
func (e *FetchError) Kind() ErrorKind {
	switch {
	case e.StatusCode >= 500 && e.StatusCode <= 599:
		return KindServerError
	case e.StatusCode >= 400 && e.StatusCode <= 499:
		return KindClientError
	case e.StatusCode != 0:
		return KindOther
	default:
		return classifyTransport(e.Err)
	}
}

func classifyTransport(err error) ErrorKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return KindConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindOther
}

// Classify maps an arbitrary error to an ErrorKind. FetchError carries
// its own classification; bare transport errors are inspected.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind()
	}
	if errors.Is(err, context.Canceled) {
		return KindInterrupted
	}
	return classifyTransport(err)
}
