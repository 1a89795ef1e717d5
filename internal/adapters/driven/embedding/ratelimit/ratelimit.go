// Package ratelimit wraps an embedding service with a shared token bucket.
//
// Every call waits for a token. When the wrapped service reports a rate
// limit, all callers pause until the server-requested time has passed.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docindex/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Defaults used when Config fields are zero.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 10
	DefaultBackoff           = 5 * time.Second
)

// Config holds rate limiting configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// Burst is the maximum burst size.
	Burst int
	// Backoff is the pause applied when a 429 carries no Retry-After.
	Backoff time.Duration
}

// Limiter is a token bucket with an optional shared pause.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
	backoff time.Duration
	now     func() time.Time
}

// NewLimiter creates a limiter from cfg.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		backoff: cfg.Backoff,
		now:     time.Now,
	}
}

// Wait blocks until a request may be made. A pause recorded by
// RecordRateLimit is honoured before the token bucket.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if wait := retryAt.Sub(l.now()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return l.limiter.Wait(ctx)
}

// RecordRateLimit pauses all callers for retryAfter, or the default backoff
// when retryAfter is zero. An existing later pause is kept.
func (l *Limiter) RecordRateLimit(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = l.backoff
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	until := l.now().Add(retryAfter)
	if until.After(l.retryAt) {
		l.retryAt = until
	}
}

// PausedUntil returns the end of the current pause, zero if none was recorded.
func (l *Limiter) PausedUntil() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retryAt
}

// EmbeddingService decorates another embedding service with a Limiter.
type EmbeddingService struct {
	inner   driven.EmbeddingService
	limiter *Limiter
}

// Wrap returns inner guarded by a limiter built from cfg.
func Wrap(inner driven.EmbeddingService, cfg Config) *EmbeddingService {
	return &EmbeddingService{inner: inner, limiter: NewLimiter(cfg)}
}

// Embed waits for the limiter, then embeds a single text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	vec, err := s.inner.Embed(ctx, text)
	s.observe(err)
	return vec, err
}

// EmbedBatch waits for the limiter, then embeds a batch.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	vecs, err := s.inner.EmbedBatch(ctx, texts)
	s.observe(err)
	return vecs, err
}

// Dimensions returns the wrapped service's vector size.
func (s *EmbeddingService) Dimensions() int { return s.inner.Dimensions() }

// ModelName returns the wrapped service's model.
func (s *EmbeddingService) ModelName() string { return s.inner.ModelName() }

// Ping is not rate limited.
func (s *EmbeddingService) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

// Close closes the wrapped service.
func (s *EmbeddingService) Close() error { return s.inner.Close() }

// Limiter exposes the shared limiter.
func (s *EmbeddingService) Limiter() *Limiter { return s.limiter }

func (s *EmbeddingService) observe(err error) {
	if err == nil || !errors.Is(err, domain.ErrRateLimited) {
		return
	}
	var retryAfter time.Duration
	var rle *domain.RateLimitError
	if errors.As(err, &rle) {
		retryAfter = rle.RetryAfter
	}
	s.limiter.RecordRateLimit(retryAfter)
	logger.Warn("embedding rate limited by %s, pausing requests until %s",
		s.inner.ModelName(), s.limiter.PausedUntil().Format(time.TimeOnly))
}
