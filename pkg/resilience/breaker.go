// Package resilience guards calls to remote services with a circuit breaker
// and per-key rate limits.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pinstripe-labs/carart/pkg/fn"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls rejected
	StateHalfOpen              // probing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures a Breaker.
type BreakerOpts struct {
	// FailThreshold is how many consecutive failures trip the breaker.
	FailThreshold int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// Probes is the number of calls admitted while half-open.
	Probes int
	// OnStateChange, if set, is called (outside the lock) on every transition.
	OnStateChange func(from, to State)
}

// DefaultBreakerOpts suit a hosted model API.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Cooldown:      30 * time.Second,
	Probes:        1,
}

// Breaker implements a closed/open/half-open circuit breaker.
type Breaker struct {
	mu       sync.Mutex
	opts     BreakerOpts
	state    State
	failures int
	openedAt time.Time
	probing  int
	now      func() time.Time
}

// NewBreaker creates a Breaker, filling zero options from DefaultBreakerOpts.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultBreakerOpts.Cooldown
	}
	if opts.Probes <= 0 {
		opts.Probes = DefaultBreakerOpts.Probes
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, _ := b.refresh()
	return st
}

// refresh moves open to half-open once the cooldown has elapsed. Must hold mu.
func (b *Breaker) refresh() (State, bool) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Cooldown {
		b.state = StateHalfOpen
		b.probing = 0
		return b.state, true
	}
	return b.state, false
}

// admit reports whether a call may proceed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	st, moved := b.refresh()
	var err error
	switch st {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if b.probing >= b.opts.Probes {
			err = ErrCircuitOpen
		} else {
			b.probing++
		}
	}
	b.mu.Unlock()
	if moved {
		b.notify(StateOpen, StateHalfOpen)
	}
	return err
}

// record feeds the outcome of an admitted call back into the breaker.
func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	from := b.state
	if failed {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.failures = 0
			b.probing = 0
		}
	} else {
		if b.state == StateHalfOpen {
			b.state = StateClosed
		}
		b.failures = 0
	}
	to := b.state
	b.mu.Unlock()
	if from != to {
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to State) {
	if b.opts.OnStateChange != nil {
		b.opts.OnStateChange(from, to)
	}
}

// Call executes f through the breaker.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := f(ctx)
	b.record(err != nil)
	return err
}

// Do is the value-returning form of Call.
func Do[T any](ctx context.Context, b *Breaker, f func(context.Context) (T, error)) fn.Result[T] {
	if err := b.admit(); err != nil {
		return fn.Err[T](err)
	}
	r := fn.FromPair(f(ctx))
	b.record(r.IsErr())
	return r
}
