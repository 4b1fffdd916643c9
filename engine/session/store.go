// Package session keeps the per-user event session: a local cache written
// with a shrinking fallback ladder, a background mirror, and a copy-on-write
// tracker that serialises updates.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pinstripe-labs/carart/engine/catalog"
	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/pinstripe-labs/carart/pkg/localstore"
	"github.com/pinstripe-labs/carart/pkg/metrics"
)

// Rung reports how far down the write ladder a Persist went.
type Rung int

const (
	RungStripped Rung = iota + 1 // stripped projection written
	RungTrimmed                  // recent cars only, no thumbnails
	RungCleared                  // key deleted; the next read starts empty
	RungLost                     // even the delete failed
)

func (r Rung) String() string {
	switch r {
	case RungStripped:
		return "stripped"
	case RungTrimmed:
		return "trimmed"
	case RungCleared:
		return "cleared"
	case RungLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Mirror receives a copy of every persisted session for background sync.
type Mirror interface {
	Enqueue(ctx context.Context, userID string, ev domain.EventSession)
}

// Store reads and writes event sessions in a local KV.
type Store struct {
	kv     localstore.KV
	mirror Mirror
	log    *slog.Logger
	reg    *metrics.Registry
}

// NewStore creates a Store. mirror may be nil.
func NewStore(kv localstore.KV, mirror Mirror, logger *slog.Logger, reg *metrics.Registry) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Store{kv: kv, mirror: mirror, log: logger.With("component", "session"), reg: reg}
}

// Key is the local store key for a user's session.
func Key(userID string) string {
	if userID == "" {
		userID = "anonymous"
	}
	return "carart:session:" + userID
}

func (s *Store) count(r Rung) {
	s.reg.Counter(metrics.WithLabels("carart_session_writes_total", "rung", r.String()),
		"Local session writes by ladder rung.").Inc()
}

// Persist writes ev locally, stepping down the ladder on each failure, then
// hands ev to the mirror when the user is known. It never fails; the rung
// reached is returned for observability.
func (s *Store) Persist(ctx context.Context, userID string, ev domain.EventSession) Rung {
	ctx = context.WithoutCancel(ctx)
	rung := s.writeLocal(ctx, userID, ev)
	s.count(rung)
	if userID != "" && s.mirror != nil {
		s.mirror.Enqueue(ctx, userID, ev.Clone())
	}
	return rung
}

func (s *Store) writeLocal(ctx context.Context, userID string, ev domain.EventSession) Rung {
	key := Key(userID)
	stripped := Strip(ev)

	err := s.put(ctx, key, stripped)
	if err == nil {
		return RungStripped
	}
	s.log.WarnContext(ctx, "session write failed, trimming", "cars", len(ev.Cars), "error", err)

	err = s.put(ctx, key, Trim(stripped, TrimmedCars))
	if err == nil {
		return RungTrimmed
	}
	s.log.WarnContext(ctx, "trimmed session write failed, clearing", "error", err)

	if err := s.kv.Delete(ctx, key); err != nil {
		s.log.ErrorContext(ctx, "session clear failed", "error", err)
		return RungLost
	}
	return RungCleared
}

func (s *Store) put(ctx context.Context, key string, ev domain.EventSession) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	return s.kv.Set(ctx, key, data)
}

// Load reads the user's session for the day of now. Nothing stored, a store
// error, undecodable data and a session from another day all yield a fresh
// empty session; the bool reports whether a stored session was used.
func (s *Store) Load(ctx context.Context, userID string, now time.Time) (domain.EventSession, bool) {
	data, err := s.kv.Get(ctx, Key(userID))
	if err != nil {
		if !errors.Is(err, localstore.ErrNotFound) {
			s.log.WarnContext(ctx, "session read failed", "error", err)
		}
		return domain.NewEventSession(now), false
	}
	var ev domain.EventSession
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.WarnContext(ctx, "discarding unreadable session", "error", err)
		return domain.NewEventSession(now), false
	}
	if !ev.Current(now) {
		s.log.InfoContext(ctx, "starting new event day", "previous", ev.Date)
		return domain.NewEventSession(now), false
	}
	return Normalize(ev), true
}

// Normalize repairs a session read from storage: every car gets exactly one
// state per catalog style in catalog order, and styles left generating by a
// previous process go back to idle.
func Normalize(ev domain.EventSession) domain.EventSession {
	if ev.Cars == nil {
		ev.Cars = []domain.CarSession{}
	}
	for i := range ev.Cars {
		c := &ev.Cars[i]
		states := catalog.IdleStates()
		for j := range states {
			if st, ok := c.Style(states[j].StyleID); ok {
				states[j] = st
			}
			if states[j].Status == domain.StatusGenerating || states[j].Status == "" {
				states[j] = domain.StyleState{StyleID: states[j].StyleID, Status: domain.StatusIdle}
			}
		}
		c.Styles = states
	}
	return ev
}
