package mirror

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/pinstripe-labs/carart/pkg/repo"
)

// fakeGraph is an in-memory graphStore that round-trips through the same
// property codecs as the real store and keeps nodes of a higher version.
type fakeGraph[T any] struct {
	mu    sync.Mutex
	nodes map[string]map[string]any
	links map[string]bool
	to    func(T) map[string]any
	from  func(map[string]any) (T, error)
}

func newFakeGraph[T any](to func(T) map[string]any, from func(map[string]any) (T, error)) *fakeGraph[T] {
	return &fakeGraph[T]{nodes: map[string]map[string]any{}, links: map[string]bool{}, to: to, from: from}
}

func (g *fakeGraph[T]) Upsert(_ context.Context, v T) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.to(v)
	id := p["id"].(string)
	if old, ok := g.nodes[id]; ok && num(old, propVersion) > num(p, propVersion) {
		return nil
	}
	g.nodes[id] = p
	return nil
}

func (g *fakeGraph[T]) Get(_ context.Context, id string) (T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.nodes[id]
	if !ok {
		var zero T
		return zero, repo.ErrNotFound
	}
	return g.from(p)
}

func (g *fakeGraph[T]) ListBy(_ context.Context, prop string, value any) ([]T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []T
	for _, p := range g.nodes {
		if p[prop] == value {
			v, err := g.from(p)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func (g *fakeGraph[T]) Link(_ context.Context, from repo.Ref, rel string, to repo.Ref) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.links[fmt.Sprintf("%s:%s-%s->%s:%s", from.Label, from.ID, rel, to.Label, to.ID)] = true
	return nil
}

func TestNeo4jBackendRoundTrip(t *testing.T) {
	events := newFakeGraph(eventProps, eventFromProps)
	cars := newFakeGraph(carProps, carFromProps)
	styles := newFakeGraph(styleProps, styleFromProps)
	orders := newFakeGraph(orderProps, orderFromProps)
	n := &Neo4j{events: events, cars: cars, styles: styles, orders: orders}

	ctx := context.Background()
	ev := sampleSession()
	require.NoError(t, Sync(ctx, n, "vendor-1", ev))
	require.NoError(t, Sync(ctx, n, "vendor-1", ev))

	assert.Len(t, events.nodes, 1)
	assert.Len(t, cars.nodes, 2)
	assert.Len(t, styles.nodes, 4)
	assert.Len(t, orders.nodes, 1)
	assert.Len(t, cars.links, 2)
	assert.True(t, cars.links[fmt.Sprintf("MirrorEvent:%s-HAS_CAR->MirrorCar:%s",
		EventID("vendor-1", ev.Date), CarRowID("vendor-1", ev.Date, "car-a"))])

	got, err := n.LoadEvent(ctx, "vendor-1", ev.Date)
	require.NoError(t, err)
	require.Len(t, got.Cars, 2)
	assert.Equal(t, "car-a", got.Cars[0].ID)
	assert.Equal(t, ev.Cars[0].Styles, got.Cars[0].Styles)
	assert.Equal(t, ev.Cars[0].Orders, got.Cars[0].Orders)
	assert.Equal(t, ev.Cars[1].Vehicle, got.Cars[1].Vehicle)

	missing, err := n.LoadEvent(ctx, "vendor-1", "2020-01-01")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNeo4jBackendKeepsNewerVersion(t *testing.T) {
	n := &Neo4j{
		events: newFakeGraph(eventProps, eventFromProps),
		cars:   newFakeGraph(carProps, carFromProps),
		styles: newFakeGraph(styleProps, styleFromProps),
		orders: newFakeGraph(orderProps, orderFromProps),
	}
	ctx := context.Background()
	ev := sampleSession()
	require.NoError(t, Sync(ctx, n, "vendor-1", ev))

	stale := sampleSession()
	stale.Version = ev.Version - 1
	stale.Cars[0].Styles[0] = domain.StyleState{StyleID: stale.Cars[0].Styles[0].StyleID, Status: domain.StatusGenerating}
	require.NoError(t, Sync(ctx, n, "vendor-1", stale))

	got, err := n.LoadEvent(ctx, "vendor-1", ev.Date)
	require.NoError(t, err)
	assert.Equal(t, ev.Version, got.Version)
	assert.Equal(t, ev.Cars[0].Styles, got.Cars[0].Styles)
}

func TestPropDecoders(t *testing.T) {
	_, err := eventFromProps(map[string]any{})
	assert.Error(t, err)

	c, err := carFromProps(map[string]any{"id": "x", "position": int64(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Position)
	assert.Nil(t, c.Vehicle)

	_, err = carFromProps(map[string]any{"id": "x", "vehicle": "{bad"})
	assert.Error(t, err)
}
