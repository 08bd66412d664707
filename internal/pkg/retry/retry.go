// Package retry wraps outbound API calls with a fixed-delay retry
// policy. Only errors marked transient are retried; everything else
// surfaces immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Policy retries an operation a fixed number of times with a fixed
// delay between attempts.
type Policy struct {
	Attempts int
	Delay    time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Defaults to Transient.
	Retryable func(error) bool
}

// NewPolicy builds a policy with the default transient-error check.
func NewPolicy(attempts int, delay time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: delay, Retryable: Transient}
}

// ExhaustedError reports that every attempt failed. It unwraps to the
// last attempt's error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: %d attempts exhausted: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// TransientError marks an error as retryable regardless of its type.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Do runs fn until it succeeds, a non-retryable error occurs, the
// attempts are exhausted, or the context is done. The name only labels
// log lines.
func (p Policy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = Transient
	}

	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !retryable(last) {
			return last
		}

		if attempt < p.Attempts {
			log.Printf("retry: %s attempt %d/%d failed: %v", name, attempt, p.Attempts, last)
			timer := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return &ExhaustedError{Attempts: p.Attempts, Last: last}
}

// Transient reports whether an error looks like a temporary network
// or server condition.
func Transient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}

// TransientStatus reports whether an HTTP status code indicates a
// condition worth retrying.
func TransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
