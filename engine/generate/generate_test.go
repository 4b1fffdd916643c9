package generate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinstripe-labs/carart/engine/catalog"
	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/pinstripe-labs/carart/pkg/metrics"
)

var vehicle = domain.VehicleIdentity{Year: "1964", Make: "Chevrolet", Model: "Impala"}

type event struct {
	kind  string // "start" or "end"
	style string
}

// fakeGen records call order and fails the styles in fail.
type fakeGen struct {
	mu       sync.Mutex
	events   []event
	refs     []string
	running  int
	peak     int
	fail     map[string]bool
	panicOn  string
	hold     time.Duration
	gotCtxOK []bool
}

func (f *fakeGen) GenerateStyle(ctx context.Context, _ domain.VehicleIdentity, s domain.Style, reference string) (domain.ImageRef, error) {
	f.mu.Lock()
	f.events = append(f.events, event{"start", s.ID})
	f.refs = append(f.refs, reference)
	f.gotCtxOK = append(f.gotCtxOK, ctx.Err() == nil)
	f.running++
	f.peak = max(f.peak, f.running)
	f.mu.Unlock()

	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.mu.Lock()
	f.running--
	f.events = append(f.events, event{"end", s.ID})
	f.mu.Unlock()

	if s.ID == f.panicOn {
		panic("model exploded")
	}
	if f.fail[s.ID] {
		return "", errors.New("quota exhausted")
	}
	return domain.ImageRef("https://img/" + s.ID + ".png"), nil
}

type recorder struct {
	mu        sync.Mutex
	completed map[string]domain.ImageRef
	failed    map[string]string
}

func newRecorder() *recorder {
	return &recorder{completed: map[string]domain.ImageRef{}, failed: map[string]string{}}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnComplete: func(id string, ref domain.ImageRef) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completed[id] = ref
		},
		OnError: func(id, msg string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.failed[id] = msg
		},
	}
}

func newTestOrchestrator(gen Generator, reg *metrics.Registry) (*Orchestrator, *[]time.Duration) {
	o := New(gen, Options{Metrics: reg})
	var mu sync.Mutex
	var sleeps []time.Duration
	o.sleep = func(d time.Duration) {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
	}
	return o, &sleeps
}

func TestFourRequestsSecondFails(t *testing.T) {
	styles := catalog.Styles()[:4]
	gen := &fakeGen{fail: map[string]bool{styles[1].ID: true}, hold: 5 * time.Millisecond}
	reg := metrics.New()
	o, sleeps := newTestOrchestrator(gen, reg)
	rec := newRecorder()

	results := o.GenerateBatch(context.Background(), vehicle, styles, "data:image/jpeg;base64,REF", rec.callbacks())

	require.Len(t, results, 4)
	for i, s := range styles {
		if i == 1 {
			assert.True(t, results[s.ID].IsErr(), s.ID)
			continue
		}
		ref, err := results[s.ID].Unwrap()
		require.NoError(t, err, s.ID)
		assert.Equal(t, domain.ImageRef("https://img/"+s.ID+".png"), ref)
	}
	assert.Len(t, rec.completed, 3)
	assert.Equal(t, map[string]string{styles[1].ID: "quota exhausted"}, rec.failed)

	// One stagger per window, for its second request.
	assert.Equal(t, []time.Duration{DefaultStagger, DefaultStagger}, *sleeps)
	assert.LessOrEqual(t, gen.peak, 2)
	for _, ref := range gen.refs {
		assert.Equal(t, "data:image/jpeg;base64,REF", ref)
	}

	out := reg.Render()
	assert.Contains(t, out, `carart_generations_total{outcome="ok"} 3`)
	assert.Contains(t, out, `carart_generations_total{outcome="error"} 1`)
}

func TestWindowsRunSequentially(t *testing.T) {
	styles := catalog.Styles()[:5]
	gen := &fakeGen{hold: 2 * time.Millisecond}
	o, _ := newTestOrchestrator(gen, nil)

	o.GenerateBatch(context.Background(), vehicle, styles, "", Callbacks{})

	pos := map[event]int{}
	for i, e := range gen.events {
		pos[e] = i
	}
	windows := [][]string{
		{styles[0].ID, styles[1].ID},
		{styles[2].ID, styles[3].ID},
		{styles[4].ID},
	}
	for w := 1; w < len(windows); w++ {
		for _, prev := range windows[w-1] {
			for _, next := range windows[w] {
				assert.Less(t, pos[event{"end", prev}], pos[event{"start", next}],
					"%s must settle before %s starts", prev, next)
			}
		}
	}
}

func TestStaggerDelaysSecondCall(t *testing.T) {
	styles := catalog.Styles()[:2]
	gen := &fakeGen{}
	starts := make(map[string]time.Time)
	var mu sync.Mutex
	timed := generatorFunc(func(ctx context.Context, v domain.VehicleIdentity, s domain.Style, ref string) (domain.ImageRef, error) {
		mu.Lock()
		starts[s.ID] = time.Now()
		mu.Unlock()
		return gen.GenerateStyle(ctx, v, s, ref)
	})
	o := New(timed, Options{Stagger: 40 * time.Millisecond})

	o.GenerateBatch(context.Background(), vehicle, styles, "", Callbacks{})

	gap := starts[styles[1].ID].Sub(starts[styles[0].ID])
	assert.GreaterOrEqual(t, gap, 40*time.Millisecond)
}

type generatorFunc func(context.Context, domain.VehicleIdentity, domain.Style, string) (domain.ImageRef, error)

func (f generatorFunc) GenerateStyle(ctx context.Context, v domain.VehicleIdentity, s domain.Style, ref string) (domain.ImageRef, error) {
	return f(ctx, v, s, ref)
}

func TestCancelledContextStillRuns(t *testing.T) {
	gen := &fakeGen{}
	o, _ := newTestOrchestrator(gen, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := o.GenerateBatch(ctx, vehicle, catalog.Styles()[:3], "", Callbacks{})
	assert.Len(t, results, 3)
	for _, ok := range gen.gotCtxOK {
		assert.True(t, ok)
	}
}

func TestPanicBecomesError(t *testing.T) {
	styles := catalog.Styles()[:2]
	gen := &fakeGen{panicOn: styles[0].ID}
	o, _ := newTestOrchestrator(gen, nil)
	rec := newRecorder()

	results := o.GenerateBatch(context.Background(), vehicle, styles, "", rec.callbacks())
	assert.ErrorContains(t, results[styles[0].ID].Error(), "panic")
	assert.True(t, results[styles[1].ID].IsOk())
	assert.Contains(t, rec.failed, styles[0].ID)
}

func TestEmptyImageIsFailure(t *testing.T) {
	empty := generatorFunc(func(context.Context, domain.VehicleIdentity, domain.Style, string) (domain.ImageRef, error) {
		return "", nil
	})
	o, _ := newTestOrchestrator(empty, nil)
	results := o.GenerateBatch(context.Background(), vehicle, catalog.Styles()[:1], "", Callbacks{})
	assert.True(t, results[catalog.Styles()[0].ID].IsErr())
}

func TestConcurrencyOneNeverStaggers(t *testing.T) {
	gen := &fakeGen{}
	o := New(gen, Options{Concurrency: 1})
	var sleeps []time.Duration
	o.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	o.GenerateBatch(context.Background(), vehicle, catalog.Styles()[:3], "", Callbacks{})
	assert.Empty(t, sleeps)
	assert.Equal(t, 1, gen.peak)
}

func TestEmptyBatch(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeGen{}, nil)
	assert.Empty(t, o.GenerateBatch(context.Background(), vehicle, nil, "", Callbacks{}))
}
