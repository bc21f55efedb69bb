// Package retry runs remote calls with bounded exponential backoff.
//
// Only network-class failures are retried. Any other error, including HTTP
// status errors such as 429 or 5xx, is returned to the caller on first
// occurrence. When the retry budget runs out, the last error is returned as-is.
package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"
)

// ErrNetwork marks an error as network-class. Wrap it to opt a custom error into retries.
var ErrNetwork = errors.New("network error")

// Policy configures Do.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the wait before the first retry; it doubles per attempt.
	InitialDelay time.Duration
	// MaxDelay caps a single wait.
	MaxDelay time.Duration
	// AttemptTimeout, if positive, bounds each attempt.
	AttemptTimeout time.Duration
	// Classifier decides whether an error is retryable. Defaults to IsNetworkError.
	Classifier func(error) bool
	// Logger receives one debug line per retry. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// Delay returns the wait before retry number attempt (0-based):
// min(InitialDelay * 2^attempt, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
		if d <= 0 { // overflow
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do calls op until it succeeds, fails with a non-retryable error, or the retry
// budget is exhausted. It performs at most MaxRetries+1 invocations.
//
// If ctx is cancelled while waiting between attempts, Do returns ctx.Err().
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	classify := p.Classifier
	if classify == nil {
		classify = IsNetworkError
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := runAttempt(ctx, p.AttemptTimeout, op)
		if err == nil {
			return v, nil
		}
		if !classify(err) || attempt >= p.MaxRetries {
			return zero, err
		}

		wait := p.Delay(attempt)
		logger.Debug("retry: attempt failed, backing off",
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

// IsNetworkError reports whether err looks like a transport failure: a net.Error,
// a refused or reset connection, a truncated response, or anything wrapping ErrNetwork.
// Context cancellation by the caller is not a network error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrNetwork) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
