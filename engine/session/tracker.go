package session

import (
	"context"
	"sync"
	"time"

	"github.com/pinstripe-labs/carart/engine/domain"
)

// Hydrator fetches a user's session for a day from the remote mirror; nil
// means nothing usable.
type Hydrator interface {
	Hydrate(ctx context.Context, userID, date string) *domain.EventSession
}

// Tracker holds the live session of every active user. Each update clones
// the latest snapshot, applies one change and swaps the result in, so
// concurrent generation callbacks never lose each other's writes.
type Tracker struct {
	store    *Store
	hydrator Hydrator
	now      func() time.Time

	mu    sync.Mutex
	users map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	ev     domain.EventSession
	loaded bool
}

// NewTracker creates a Tracker. hydrator may be nil.
func NewTracker(store *Store, hydrator Hydrator) *Tracker {
	return &Tracker{store: store, hydrator: hydrator, now: time.Now, users: make(map[string]*entry)}
}

func (t *Tracker) entry(userID string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.users[userID]
	if !ok {
		e = &entry{}
		t.users[userID] = e
	}
	return e
}

// current returns e's session for today, loading or rolling over as needed.
// Must hold e.mu.
func (t *Tracker) current(ctx context.Context, userID string, e *entry) domain.EventSession {
	now := t.now()
	if !e.loaded {
		e.ev = t.load(ctx, userID, now)
		e.loaded = true
	}
	if !e.ev.Current(now) {
		e.ev = domain.NewEventSession(now)
	}
	return e.ev
}

// load reads the local cache first and falls back to the mirror for today.
func (t *Tracker) load(ctx context.Context, userID string, now time.Time) domain.EventSession {
	ev, found := t.store.Load(ctx, userID, now)
	if found || userID == "" || t.hydrator == nil {
		return ev
	}
	if remote := t.hydrator.Hydrate(ctx, userID, ev.Date); remote != nil && remote.Current(now) {
		t.store.log.InfoContext(ctx, "session hydrated from mirror", "cars", len(remote.Cars))
		return Normalize(remote.Clone())
	}
	return ev
}

// Snapshot returns a copy of the user's current session.
func (t *Tracker) Snapshot(ctx context.Context, userID string) domain.EventSession {
	e := t.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return t.current(ctx, userID, e).Clone()
}

// Update applies change to a clone of the current session. When change
// returns an error the session is left as it was. Otherwise the new session
// gets the next version, is swapped in and persisted, and a copy is returned.
func (t *Tracker) Update(ctx context.Context, userID string, change func(*domain.EventSession) error) (domain.EventSession, error) {
	e := t.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	next := t.current(ctx, userID, e).Clone()
	if err := change(&next); err != nil {
		return domain.EventSession{}, err
	}
	next.Version++
	next.UpdatedAt = t.now().UTC()
	e.ev = next
	t.store.Persist(ctx, userID, next)
	return next.Clone(), nil
}

// UpdateCar is Update scoped to one car; it fails with ErrCarNotFound when
// the car is not in today's session.
func (t *Tracker) UpdateCar(ctx context.Context, userID, carID string, change func(*domain.CarSession) error) (domain.CarSession, error) {
	var out domain.CarSession
	_, err := t.Update(ctx, userID, func(ev *domain.EventSession) error {
		c := ev.Car(carID)
		if c == nil {
			return domain.ErrCarNotFound
		}
		if err := change(c); err != nil {
			return err
		}
		out = c.Clone()
		return nil
	})
	return out, err
}
