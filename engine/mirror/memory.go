package mirror

import (
	"context"
	"sync"

	"github.com/pinstripe-labs/carart/engine/domain"
)

// Memory is an in-process Backend, used when no database is configured and
// in tests.
type Memory struct {
	mu     sync.Mutex
	events map[string]EventRow
	cars   map[string]CarRow
	styles map[string]StyleRow
	orders map[string]OrderRow
}

// NewMemory creates an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		events: make(map[string]EventRow),
		cars:   make(map[string]CarRow),
		styles: make(map[string]StyleRow),
		orders: make(map[string]OrderRow),
	}
}

var _ Backend = (*Memory)(nil)

func (m *Memory) UpsertEvent(_ context.Context, row EventRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.events[row.ID]; ok && old.Version > row.Version {
		return nil
	}
	m.events[row.ID] = row
	return nil
}

func (m *Memory) UpsertCar(_ context.Context, row CarRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.cars[row.ID]; ok && old.Version > row.Version {
		return nil
	}
	if row.Vehicle != nil {
		v := *row.Vehicle
		row.Vehicle = &v
	}
	m.cars[row.ID] = row
	return nil
}

func (m *Memory) UpsertStyle(_ context.Context, row StyleRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.styles[row.ID]; ok && old.Version > row.Version {
		return nil
	}
	m.styles[row.ID] = row
	return nil
}

func (m *Memory) UpsertOrder(_ context.Context, row OrderRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.orders[row.ID]; ok && old.Version > row.Version {
		return nil
	}
	m.orders[row.ID] = row
	return nil
}

func (m *Memory) LoadEvent(_ context.Context, userID, date string) (*domain.EventSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[EventID(userID, date)]
	if !ok {
		return nil, nil
	}
	var cars []CarRow
	carIDs := map[string]bool{}
	for _, c := range m.cars {
		if c.EventID == ev.ID {
			cars = append(cars, c)
			carIDs[c.ID] = true
		}
	}
	var styles []StyleRow
	for _, s := range m.styles {
		if carIDs[s.CarRowID] {
			styles = append(styles, s)
		}
	}
	var orders []OrderRow
	for _, o := range m.orders {
		if carIDs[o.CarRowID] {
			orders = append(orders, o)
		}
	}
	return assemble(ev, cars, styles, orders), nil
}

// Counts returns the number of stored events, cars, styles and orders.
func (m *Memory) Counts() (events, cars, styles, orders int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events), len(m.cars), len(m.styles), len(m.orders)
}
