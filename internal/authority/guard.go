package authority

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tunegate/resolver/internal/model"
	"github.com/tunegate/resolver/internal/resilience"
)

// Guarded wraps an Authority with the per-authority protections: a token
// bucket honoring the authority's published rate limit (callers queue,
// never fail, when the bucket is empty), retry with backoff for transient
// errors, and a circuit breaker isolating sustained failure.
type Guarded struct {
	inner   Authority
	breaker *resilience.CircuitBreaker
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewGuarded builds the guarded wrapper. The breaker and limiter are
// owned by the caller (one per authority) so tests inject fresh state.
func NewGuarded(inner Authority, breaker *resilience.CircuitBreaker, limiter *rate.Limiter, retry resilience.RetryConfig) *Guarded {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(inner.Name(), "call")
	}
	return &Guarded{
		inner:   inner,
		breaker: breaker,
		limiter: limiter,
		retry:   retry,
	}
}

// Name returns the wrapped authority's name.
func (g *Guarded) Name() string {
	return g.inner.Name()
}

// Breaker exposes the authority's breaker for status reporting.
func (g *Guarded) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}

// Search runs a guarded search. The limiter gates every attempt, not
// just the first, so retries cannot exceed the authority's rate.
func (g *Guarded) Search(ctx context.Context, query string, limit int) ([]model.RawRecord, error) {
	return resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) ([]model.RawRecord, error) {
		return resilience.DoVal(ctx, g.retry, func(ctx context.Context) ([]model.RawRecord, error) {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return g.inner.Search(ctx, query, limit)
		})
	})
}

// Lookup runs a guarded lookup.
func (g *Guarded) Lookup(ctx context.Context, id string) (*model.RawRecord, error) {
	return resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*model.RawRecord, error) {
		return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*model.RawRecord, error) {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return g.inner.Lookup(ctx, id)
		})
	})
}

// LogMalformed records a discarded payload. Malformed responses are data
// issues and never count against the breaker.
func LogMalformed(authority string, err error) {
	zap.L().Warn("discarding malformed authority response",
		zap.String("authority", authority),
		zap.Error(err),
	)
}
