package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limited")

// LimiterOpts configures a token bucket.
type LimiterOpts struct {
	// Rate is tokens added per second.
	Rate float64
	// Burst is the bucket capacity.
	Burst int
}

func (o LimiterOpts) bucket() *rate.Limiter {
	if o.Burst <= 0 {
		o.Burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.Rate), o.Burst)
}

// Limiter is a single token bucket shared by all callers.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter.
func NewLimiter(opts LimiterOpts) *Limiter {
	return &Limiter{lim: opts.bucket()}
}

// Allow reports whether a token was available and consumes it.
func (l *Limiter) Allow() bool { return l.lim.Allow() }

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		return errors.Join(ErrRateLimited, err)
	}
	return nil
}

// KeyedLimiter keeps an independent bucket per key (a user id, say). Buckets
// unused for longer than the idle window are evicted on the next access.
type KeyedLimiter struct {
	mu      sync.Mutex
	opts    LimiterOpts
	idle    time.Duration
	buckets map[string]*keyedBucket
	now     func() time.Time
}

type keyedBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewKeyedLimiter creates a KeyedLimiter. idle <= 0 means ten minutes.
func NewKeyedLimiter(opts LimiterOpts, idle time.Duration) *KeyedLimiter {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &KeyedLimiter{
		opts:    opts,
		idle:    idle,
		buckets: make(map[string]*keyedBucket),
		now:     time.Now,
	}
}

// Allow consumes a token from key's bucket.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	now := k.now()
	for id, b := range k.buckets {
		if id != key && now.Sub(b.seen) > k.idle {
			delete(k.buckets, id)
		}
	}
	b, ok := k.buckets[key]
	if !ok {
		b = &keyedBucket{lim: k.opts.bucket()}
		k.buckets[key] = b
	}
	b.seen = now
	k.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

// Len returns the number of live buckets.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
