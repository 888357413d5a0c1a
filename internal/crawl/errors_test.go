package crawl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"server error", &FetchError{URL: "http://x", StatusCode: 503}, KindServerError},
		{"client error", &FetchError{URL: "http://x", StatusCode: 404}, KindClientError},
		{"wrapped fetch error", fmt.Errorf("crawl: %w", &FetchError{StatusCode: 500}), KindServerError},
		{"timeout", &FetchError{Err: timeoutError{}}, KindTimeout},
		{"connection refused", syscall.ECONNREFUSED, KindConnection},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), KindConnection},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("no route")}, KindConnection},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"cancellation", context.Canceled, KindInterrupted},
		{"anything else", errors.New("malformed record"), KindOther},
	}
	for _, testCase := range cases {
		assert.Equal(t, testCase.kind, Classify(testCase.err), testCase.name)
	}
}

func TestErrorKindRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, KindConnection.Retryable())
	assert.True(t, KindTimeout.Retryable())
	assert.True(t, KindServerError.Retryable())
	assert.True(t, KindInterrupted.Retryable())
	assert.False(t, KindClientError.Retryable())
	assert.False(t, KindOther.Retryable())
}

func TestFetchErrorMessage(t *testing.T) {
	t.Parallel()

	statusErr := &FetchError{URL: "http://x/a.nc", StatusCode: 500}
	assert.Contains(t, statusErr.Error(), "500")

	wrapped := &FetchError{URL: "http://x/a.nc", Err: syscall.ECONNRESET}
	assert.ErrorIs(t, wrapped, syscall.ECONNRESET)
}
