package ai

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	Gateway
	limiter *rate.Limiter
}

// WithRateLimit throttles outgoing calls to perMinute requests with a burst of
// one. A non-positive perMinute returns g untouched.
func WithRateLimit(g Gateway, perMinute int) Gateway {
	if g == nil || perMinute <= 0 {
		return g
	}
	return &rateLimited{
		Gateway: g,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (r *rateLimited) Generate(ctx context.Context, prompt Prompt) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, NewError(KindTimeout, r.Provider(), err)
	}
	return r.Gateway.Generate(ctx, prompt)
}

type deadlined struct {
	Gateway
	timeout time.Duration
}

// WithTimeout bounds every Generate call to d. A call cut off by the deadline
// fails with KindTimeout. A non-positive d returns g untouched.
func WithTimeout(g Gateway, d time.Duration) Gateway {
	if g == nil || d <= 0 {
		return g
	}
	return &deadlined{Gateway: g, timeout: d}
}

func (t *deadlined) Generate(ctx context.Context, prompt Prompt) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.Gateway.Generate(callCtx, prompt)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return nil, NewError(KindTimeout, t.Provider(), err)
	}
	return resp, err
}
