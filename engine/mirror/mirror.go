// Package mirror copies event sessions to a remote database so a vendor can
// pick a day back up on another device. Writes are idempotent upserts keyed
// by deterministic ids, run in the background, and never block or fail the
// local flow.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pinstripe-labs/carart/engine/catalog"
	"github.com/pinstripe-labs/carart/engine/domain"
)

var ErrNoUser = errors.New("mirror: user id required")

// Every row carries the version of the session it was written from. A
// backend never replaces a row with one of a lower version, so a late or
// retried job cannot roll newer state back.

// EventRow is one user's event day.
type EventRow struct {
	ID        string
	UserID    string
	Date      string
	Version   int64
	UpdatedAt time.Time
}

// CarRow is one car of an event.
type CarRow struct {
	ID        string
	EventID   string
	CarID     string
	Version   int64
	Position  int
	CreatedAt time.Time
	Thumbnail string
	Vehicle   *domain.VehicleIdentity
}

// StyleRow is one non-idle style state of a car.
type StyleRow struct {
	ID       string
	CarRowID string
	Version  int64
	Position int
	State    domain.StyleState
}

// OrderRow is one order of a car.
type OrderRow struct {
	ID       string
	CarRowID string
	Version  int64
	Order    domain.Order
}

// Backend stores mirror rows. Every Upsert must be idempotent on the row id
// and must keep the stored row when it has a higher Version than the new one.
// LoadEvent returns (nil, nil) when the user has no event for date.
type Backend interface {
	UpsertEvent(ctx context.Context, row EventRow) error
	UpsertCar(ctx context.Context, row CarRow) error
	UpsertStyle(ctx context.Context, row StyleRow) error
	UpsertOrder(ctx context.Context, row OrderRow) error
	LoadEvent(ctx context.Context, userID, date string) (*domain.EventSession, error)
}

var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://pinstripe-labs.dev/carart/mirror"))

func rowID(kind string, parts ...string) string {
	return uuid.NewSHA1(namespace, []byte(kind+":"+strings.Join(parts, ":"))).String()
}

// EventID is the row id of a user's event day.
func EventID(userID, date string) string { return rowID("event", userID, date) }

// CarRowID is the row id of a car within a user's event day.
func CarRowID(userID, date, carID string) string { return rowID("car", userID, date, carID) }

// StyleRowID is the row id of one style of a car.
func StyleRowID(userID, date, carID, styleID string) string {
	return rowID("style", userID, date, carID, styleID)
}

// OrderRowID is the row id of one order of a car.
func OrderRowID(userID, date, carID, orderID string) string {
	return rowID("order", userID, date, carID, orderID)
}

// Sync upserts the event, then each car, its non-idle styles and its orders,
// stopping at the first failure. Running it twice on the same session leaves
// the backend unchanged, and syncing an older version after a newer one
// changes nothing.
func Sync(ctx context.Context, b Backend, userID string, ev domain.EventSession) error {
	if userID == "" {
		return ErrNoUser
	}
	eventID := EventID(userID, ev.Date)
	if err := b.UpsertEvent(ctx, EventRow{ID: eventID, UserID: userID, Date: ev.Date, Version: ev.Version, UpdatedAt: ev.UpdatedAt}); err != nil {
		return fmt.Errorf("mirror: sync event %s: %w", ev.Date, err)
	}
	for i, c := range ev.Cars {
		carRowID := CarRowID(userID, ev.Date, c.ID)
		row := CarRow{
			ID:        carRowID,
			EventID:   eventID,
			CarID:     c.ID,
			Version:   ev.Version,
			Position:  i,
			CreatedAt: c.CreatedAt,
			Thumbnail: c.Thumbnail,
			Vehicle:   c.Vehicle,
		}
		if err := b.UpsertCar(ctx, row); err != nil {
			return fmt.Errorf("mirror: sync car %s: %w", c.ID, err)
		}
		for j, s := range c.Styles {
			if s.Status == domain.StatusIdle {
				continue
			}
			sr := StyleRow{ID: StyleRowID(userID, ev.Date, c.ID, s.StyleID), CarRowID: carRowID, Version: ev.Version, Position: j, State: s}
			if err := b.UpsertStyle(ctx, sr); err != nil {
				return fmt.Errorf("mirror: sync style %s/%s: %w", c.ID, s.StyleID, err)
			}
		}
		for _, o := range c.Orders {
			or := OrderRow{ID: OrderRowID(userID, ev.Date, c.ID, o.ID), CarRowID: carRowID, Version: ev.Version, Order: o}
			if err := b.UpsertOrder(ctx, or); err != nil {
				return fmt.Errorf("mirror: sync order %s/%s: %w", c.ID, o.ID, err)
			}
		}
	}
	return nil
}

// Hydrate loads a user's event day from the backend. Any failure yields nil;
// there is no partial result.
func Hydrate(ctx context.Context, b Backend, userID, date string) *domain.EventSession {
	if userID == "" || b == nil {
		return nil
	}
	ev, err := b.LoadEvent(ctx, userID, date)
	if err != nil || ev == nil {
		return nil
	}
	return ev
}

// Hydrator adapts a Backend to the session tracker.
type Hydrator struct {
	Backend Backend
	Timeout time.Duration
}

func (h Hydrator) Hydrate(ctx context.Context, userID, date string) *domain.EventSession {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	return Hydrate(ctx, h.Backend, userID, date)
}

// assemble rebuilds a session from rows loaded by a backend. Styles missing
// from the rows are idle.
func assemble(ev EventRow, cars []CarRow, styles []StyleRow, orders []OrderRow) *domain.EventSession {
	out := &domain.EventSession{Date: ev.Date, Version: ev.Version, UpdatedAt: ev.UpdatedAt, Cars: make([]domain.CarSession, 0, len(cars))}
	slices.SortStableFunc(cars, func(a, b CarRow) int { return a.Position - b.Position })

	byCar := make(map[string]*domain.CarSession, len(cars))
	for _, c := range cars {
		out.Cars = append(out.Cars, domain.CarSession{
			ID:        c.CarID,
			CreatedAt: c.CreatedAt,
			Thumbnail: c.Thumbnail,
			Vehicle:   c.Vehicle,
			Styles:    catalog.IdleStates(),
		})
	}
	for i := range out.Cars {
		byCar[cars[i].ID] = &out.Cars[i]
	}
	for _, s := range styles {
		car, ok := byCar[s.CarRowID]
		if !ok {
			continue
		}
		for j := range car.Styles {
			if car.Styles[j].StyleID == s.State.StyleID {
				car.Styles[j] = s.State
			}
		}
	}
	slices.SortStableFunc(orders, func(a, b OrderRow) int { return a.Order.CreatedAt.Compare(b.Order.CreatedAt) })
	for _, o := range orders {
		if car, ok := byCar[o.CarRowID]; ok {
			car.Orders = append(car.Orders, o.Order)
		}
	}
	return out
}
