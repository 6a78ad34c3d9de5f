package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// moderatorMiddleware only lets moderators through.
func moderatorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := getIdentity(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context identity")
			}
			if id.IsModerator() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

const minLimiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool holds one token bucket per key.
// Entries idle for longer than idle are swept, at most once per idle period.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	every     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterPool(every rate.Limit, burst int) *limiterPool {
	if burst <= 0 {
		burst = 1
	}
	// an evicted bucket must already be full again
	idle := minLimiterIdle
	if every > 0 {
		if refill := time.Duration(float64(burst) / float64(every) * float64(time.Second)).Round(time.Second); refill > idle {
			idle = refill
		}
	}
	return &limiterPool{
		m:     make(map[string]*limiterEntry),
		every: every,
		burst: burst,
		idle:  idle,
		now:   time.Now,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Sub(p.lastSweep) >= p.idle {
		p.sweep(now)
	}
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	l := rate.NewLimiter(p.every, p.burst)
	p.m[key] = &limiterEntry{limiter: l, lastSeen: now}
	return l
}

func (p *limiterPool) sweep(now time.Time) {
	for key, e := range p.m {
		if now.Sub(e.lastSeen) >= p.idle {
			delete(p.m, key)
		}
	}
	p.lastSweep = now
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// userRateLimitMiddleware limits requests per authenticated user.
func userRateLimitMiddleware(pool *limiterPool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := getIdentity(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context identity")
			}
			if !pool.Allow(id.ID) {
				return errTooManyTests
			}
			return next(ctx)
		}
	}
}
