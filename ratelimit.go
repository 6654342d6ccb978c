package codeact

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimitProvider wraps a Provider with proactive request rate limiting.
type rateLimitProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so that at most rpm streams start per minute, with
// bursts up to burst. A non-positive rpm returns p unchanged. Callers block until the budget allows the request or
// ctx is done. Compose with other wrappers:
//
//	llm = codeact.WithRateLimit(codeact.WithRetry(provider), 60, 1)
func WithRateLimit(p Provider, rpm, burst int) Provider {
	if rpm <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitProvider{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60), burst),
	}
}

func (r *rateLimitProvider) Name() string { return r.inner.Name() }

func (r *rateLimitProvider) Stream(ctx context.Context, req Request, ch chan<- ProviderEvent) (Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		close(ch)
		return Response{}, err
	}
	return r.inner.Stream(ctx, req, ch)
}

var _ Provider = (*rateLimitProvider)(nil)
