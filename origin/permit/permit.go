// Package permit bounds outbound requests: at most N in flight, and an
// optional steady request rate.
package permit

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const DefaultMaxConcurrent = 10

type Config struct {
	MaxConcurrent int     // <=0 => DefaultMaxConcurrent
	PerSecond     float64 // <=0 => unlimited
	Burst         int     // <=0 => max(1, MaxConcurrent)
}

// Permit is safe for concurrent use. A nil *Permit admits everything.
type Permit struct {
	sem *semaphore.Weighted
	lim *rate.Limiter
}

func New(cfg Config) *Permit {
	n := cfg.MaxConcurrent
	if n <= 0 {
		n = DefaultMaxConcurrent
	}
	p := &Permit{sem: semaphore.NewWeighted(int64(n))}
	if cfg.PerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = n
		}
		p.lim = rate.NewLimiter(rate.Limit(cfg.PerSecond), burst)
	}
	return p
}

// Acquire blocks until a slot is free and the rate allows a request, or ctx
// is done. release must be called exactly once on success.
func (p *Permit) Acquire(ctx context.Context) (release func(), err error) {
	if p == nil {
		return func() {}, nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if p.lim != nil {
		if err := p.lim.Wait(ctx); err != nil {
			p.sem.Release(1)
			return nil, err
		}
	}
	return func() { p.sem.Release(1) }, nil
}
