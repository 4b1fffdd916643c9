// Package generate drives batches of remote style generations with a small
// concurrency cap and a stagger inside each window.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/pinstripe-labs/carart/pkg/fn"
	"github.com/pinstripe-labs/carart/pkg/metrics"
)

const (
	DefaultConcurrency = 2
	DefaultStagger     = 500 * time.Millisecond
)

// Generator renders one style for one vehicle. reference is an optional
// photo (data URL) of the actual car.
type Generator interface {
	GenerateStyle(ctx context.Context, v domain.VehicleIdentity, s domain.Style, reference string) (domain.ImageRef, error)
}

// Callbacks are invoked from the goroutine of the call that settled, as soon
// as it settles. Either may be nil.
type Callbacks struct {
	OnComplete func(styleID string, image domain.ImageRef)
	OnError    func(styleID string, message string)
}

// Options configures an Orchestrator.
type Options struct {
	Concurrency int
	Stagger     time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Registry
	Tracer      trace.Tracer
}

// Orchestrator runs generation batches.
type Orchestrator struct {
	gen     Generator
	size    int
	stagger time.Duration
	sleep   func(time.Duration)
	log     *slog.Logger
	tracer  trace.Tracer

	ok       *metrics.Counter
	failed   *metrics.Counter
	inflight *metrics.Gauge
	latency  *metrics.Histogram
}

// New creates an Orchestrator. Zero options take the defaults; a negative
// Stagger disables staggering.
func New(gen Generator, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Stagger == 0 {
		opts.Stagger = DefaultStagger
	}
	if opts.Stagger < 0 {
		opts.Stagger = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/pinstripe-labs/carart/engine/generate")
	}
	m := opts.Metrics
	return &Orchestrator{
		gen:      gen,
		size:     opts.Concurrency,
		stagger:  opts.Stagger,
		sleep:    time.Sleep,
		log:      opts.Logger.With("component", "generate"),
		tracer:   opts.Tracer,
		ok:       m.Counter(metrics.WithLabels("carart_generations_total", "outcome", "ok"), "Style generations by outcome."),
		failed:   m.Counter(metrics.WithLabels("carart_generations_total", "outcome", "error"), ""),
		inflight: m.Gauge("carart_generations_inflight", "Style generations currently running."),
		latency:  m.Histogram("carart_generation_seconds", "Latency of one style generation.", nil),
	}
}

// GenerateBatch generates every style in order, in windows of the configured
// concurrency. The first call of a window starts at once, the others after
// the stagger; the next window starts only when the whole window settled.
// A failure never stops the siblings and nothing is retried.
//
// The batch ignores cancellation of ctx; only its values are kept.
func (o *Orchestrator) GenerateBatch(ctx context.Context, v domain.VehicleIdentity, styles []domain.Style, reference string, cb Callbacks) map[string]fn.Result[domain.ImageRef] {
	ctx = context.WithoutCancel(ctx)
	out := make(map[string]fn.Result[domain.ImageRef], len(styles))

	for w, window := range fn.Windows(styles, o.size) {
		calls := make([]func() fn.Result[domain.ImageRef], len(window))
		for i, s := range window {
			delay := time.Duration(0)
			if i > 0 {
				delay = o.stagger
			}
			calls[i] = func() fn.Result[domain.ImageRef] {
				if delay > 0 {
					o.sleep(delay)
				}
				return o.one(ctx, v, s, reference, cb)
			}
		}
		results := fn.FanOut(calls...)
		for i, s := range window {
			out[s.ID] = results[i]
		}
		o.log.DebugContext(ctx, "window settled", "window", w, "size", len(window))
	}
	return out
}

// one performs a single generation and reports it.
func (o *Orchestrator) one(ctx context.Context, v domain.VehicleIdentity, s domain.Style, reference string, cb Callbacks) fn.Result[domain.ImageRef] {
	ctx, span := o.tracer.Start(ctx, "generate.style", trace.WithAttributes(
		attribute.String("style.id", s.ID),
		attribute.String("vehicle", v.String()),
		attribute.Bool("reference", reference != ""),
	))
	defer span.End()

	o.inflight.Inc()
	start := time.Now()
	ref, err := o.call(ctx, v, s, reference)
	o.latency.Since(start)
	o.inflight.Dec()

	if err != nil {
		o.failed.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.log.WarnContext(ctx, "style generation failed", "style", s.ID, "error", err)
		if cb.OnError != nil {
			cb.OnError(s.ID, err.Error())
		}
		return fn.Err[domain.ImageRef](err)
	}

	o.ok.Inc()
	o.log.InfoContext(ctx, "style generated", "style", s.ID, "duration", time.Since(start))
	if cb.OnComplete != nil {
		cb.OnComplete(s.ID, ref)
	}
	return fn.Ok(ref)
}

// call invokes the generator, turning a panic into an error.
func (o *Orchestrator) call(ctx context.Context, v domain.VehicleIdentity, s domain.Style, reference string) (ref domain.ImageRef, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generate: %s: panic: %v", s.ID, r)
		}
	}()
	ref, err = o.gen.GenerateStyle(ctx, v, s, reference)
	if err == nil && ref == "" {
		err = fmt.Errorf("generate: %s: empty image", s.ID)
	}
	return ref, err
}
