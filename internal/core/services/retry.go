package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/logger"
)

// ErrorClass groups errors by how a retry policy should treat them.
type ErrorClass int

const (
	// ErrorTransient is retried with backoff.
	ErrorTransient ErrorClass = iota

	// ErrorRateLimit is retried like ErrorTransient but logged distinctly.
	ErrorRateLimit

	// ErrorPermanent is never retried.
	ErrorPermanent
)

// String returns a short label for logs.
func (c ErrorClass) String() string {
	switch c {
	case ErrorRateLimit:
		return "rate_limit"
	case ErrorPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// ClassifyError decides whether err is worth retrying.
// Cancellation and invalid input are permanent. HTTP 429 and "rate limit"
// messages are rate limits. Everything else, network errors included, is transient.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorPermanent
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorPermanent
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		return ErrorPermanent
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return ErrorRateLimit
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorTransient
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "429") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") {
		return ErrorRateLimit
	}

	return ErrorTransient
}

// Default retry policy values.
const (
	DefaultRetryMaxDelay  = 30 * time.Second
	DefaultRetryMaxJitter = 500 * time.Millisecond
)

// RetryPolicy is the single retry strategy for calls to external services.
// Attempt n (zero-based) that fails waits BaseDelay*2^n plus a random jitter
// in [0, MaxJitter) before attempt n+1. At most MaxRetries retries are made.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxJitter  time.Duration

	// Classify overrides ClassifyError. Optional.
	Classify func(error) ErrorClass

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the standard policy: 3 retries from a 1s base.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: domain.DefaultMaxRetries,
		BaseDelay:  domain.DefaultBaseRetryDelay,
		MaxDelay:   DefaultRetryMaxDelay,
		MaxJitter:  DefaultRetryMaxJitter,
	}
}

// Backoff returns the wait after the given zero-based failed attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Cap the shift to avoid overflow.
	if attempt > 30 {
		attempt = 30
	}

	backoff := p.BaseDelay * time.Duration(1<<uint(attempt))
	if p.MaxDelay > 0 && (backoff > p.MaxDelay || backoff < 0) {
		backoff = p.MaxDelay
	}

	if p.MaxJitter > 0 {
		backoff += time.Duration(rand.Int64N(int64(p.MaxJitter)))
	}
	return backoff
}

// Do calls fn until it succeeds, fails permanently, or runs out of retries.
// op names the operation in log lines. The returned error wraps the last failure.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) error {
	classify := p.Classify
	if classify == nil {
		classify = ClassifyError
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	attempts := p.MaxRetries + 1
	var err error

	for attempt := 0; attempt < attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}

		class := classify(err)
		if class == ErrorPermanent {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		if attempt == attempts-1 {
			break
		}

		wait := p.Backoff(attempt)
		var rle *domain.RateLimitError
		if errors.As(err, &rle) && rle.RetryAfter > wait {
			wait = rle.RetryAfter
		}

		if class == ErrorRateLimit {
			logger.Warn("%s: rate limited (attempt %d/%d), retrying in %s: %v",
				op, attempt+1, attempts, wait.Round(time.Millisecond), err)
		} else {
			logger.Warn("%s: attempt %d/%d failed, retrying in %s: %v",
				op, attempt+1, attempts, wait.Round(time.Millisecond), err)
		}

		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("%s: giving up after %d attempts: %w", op, attempts, err)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
