package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 2}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int              { return 2 }
func (f *fakeEmbedder) ModelName() string            { return "fake" }
func (f *fakeEmbedder) Ping(_ context.Context) error { return nil }
func (f *fakeEmbedder) Close() error                 { return nil }

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(Config{})

	assert.Equal(t, DefaultBackoff, l.backoff)
	assert.Equal(t, DefaultBurst, l.limiter.Burst())
	assert.True(t, l.PausedUntil().IsZero())
}

func TestEmbeddingService_PassesThrough(t *testing.T) {
	inner := &fakeEmbedder{}
	svc := Wrap(inner, Config{RequestsPerSecond: 1000, Burst: 10})

	vec, err := svc.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)

	vecs, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 2, svc.Dimensions())
	assert.Equal(t, "fake", svc.ModelName())
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
}

func TestEmbeddingService_RateLimitPausesCallers(t *testing.T) {
	inner := &fakeEmbedder{err: &domain.RateLimitError{RetryAfter: time.Hour}}
	svc := Wrap(inner, Config{RequestsPerSecond: 1000, Burst: 10})

	_, err := svc.Embed(context.Background(), "x")
	require.ErrorIs(t, err, domain.ErrRateLimited)

	until := svc.Limiter().PausedUntil()
	assert.WithinDuration(t, time.Now().Add(time.Hour), until, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = svc.EmbedBatch(ctx, []string{"a"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, inner.calls)
}

func TestEmbeddingService_OtherErrorsDoNotPause(t *testing.T) {
	inner := &fakeEmbedder{err: errors.New("boom")}
	svc := Wrap(inner, Config{RequestsPerSecond: 1000, Burst: 10})

	_, err := svc.Embed(context.Background(), "x")

	require.Error(t, err)
	assert.True(t, svc.Limiter().PausedUntil().IsZero())
}

func TestLimiter_RecordRateLimit(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{Backoff: 2 * time.Second})
	l.now = func() time.Time { return now }

	l.RecordRateLimit(0)
	assert.Equal(t, now.Add(2*time.Second), l.PausedUntil())

	l.RecordRateLimit(10 * time.Second)
	assert.Equal(t, now.Add(10*time.Second), l.PausedUntil())

	// A shorter pause does not cut an existing one.
	l.RecordRateLimit(time.Second)
	assert.Equal(t, now.Add(10*time.Second), l.PausedUntil())
}

func TestLimiter_WaitAfterPauseExpires(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 1000, Burst: 1})
	l.RecordRateLimit(5 * time.Millisecond)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 4*time.Millisecond)
}
