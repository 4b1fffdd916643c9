package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/pinstripe-labs/carart/engine/session"
	"github.com/pinstripe-labs/carart/pkg/fn"
	"github.com/pinstripe-labs/carart/pkg/metrics"
)

// Job is one session to mirror.
type Job struct {
	UserID     string              `json:"user_id"`
	Session    domain.EventSession `json:"session"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// NewJob builds a job from the image-free projection of a session, the same
// one written locally: no photos, no inline generated images.
func NewJob(userID string, ev domain.EventSession) Job {
	return Job{UserID: userID, Session: session.Strip(ev), EnqueuedAt: time.Now().UTC()}
}

// Queue accepts sessions for background mirroring. Enqueue never blocks on
// the backend and never reports failure to the caller.
type Queue interface {
	Enqueue(ctx context.Context, userID string, ev domain.EventSession)
}

// queueMetrics counts job outcomes for every queue implementation.
type queueMetrics struct {
	synced  *metrics.Counter
	failed  *metrics.Counter
	dropped *metrics.Counter
	depth   *metrics.Gauge
}

func newQueueMetrics(reg *metrics.Registry) queueMetrics {
	if reg == nil {
		reg = metrics.New()
	}
	name := "carart_mirror_jobs_total"
	return queueMetrics{
		synced:  reg.Counter(metrics.WithLabels(name, "outcome", "synced"), "Mirror jobs by outcome."),
		failed:  reg.Counter(metrics.WithLabels(name, "outcome", "failed"), ""),
		dropped: reg.Counter(metrics.WithLabels(name, "outcome", "dropped"), ""),
		depth:   reg.Gauge("carart_mirror_queue_depth", "Mirror jobs waiting in the local queue."),
	}
}

// LocalQueueOptions configures a LocalQueue.
type LocalQueueOptions struct {
	// Capacity is the buffer size; jobs beyond it are dropped. Default 64.
	Capacity int
	// Retry is the per-job retry policy. Default fn.DefaultRetry.
	Retry fn.RetryOpts
	// Timeout bounds one sync attempt. Default 30s.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Registry
}

// LocalQueue is an in-process Queue: a bounded buffer drained by a single
// worker that syncs each job with retry.
type LocalQueue struct {
	backend Backend
	opts    LocalQueueOptions
	log     *slog.Logger
	m       queueMetrics

	mu     sync.RWMutex
	closed bool
	jobs   chan Job
	done   chan struct{}
}

var _ Queue = (*LocalQueue)(nil)

// NewLocalQueue starts a LocalQueue worker.
func NewLocalQueue(backend Backend, opts LocalQueueOptions) *LocalQueue {
	if opts.Capacity <= 0 {
		opts.Capacity = 64
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = fn.DefaultRetry
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	q := &LocalQueue{
		backend: backend,
		opts:    opts,
		log:     opts.Logger.With("component", "mirror"),
		m:       newQueueMetrics(opts.Metrics),
		jobs:    make(chan Job, opts.Capacity),
		done:    make(chan struct{}),
	}
	go q.work()
	return q
}

// Enqueue buffers the session, dropping it with a warning when the buffer is
// full or the queue is closed.
func (q *LocalQueue) Enqueue(ctx context.Context, userID string, ev domain.EventSession) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.m.dropped.Inc()
		q.log.WarnContext(ctx, "mirror queue closed, dropping job", "user_id", userID)
		return
	}
	q.m.depth.Inc()
	select {
	case q.jobs <- NewJob(userID, ev):
	default:
		q.m.depth.Dec()
		q.m.dropped.Inc()
		q.log.WarnContext(ctx, "mirror queue full, dropping job", "user_id", userID, "capacity", q.opts.Capacity)
	}
}

func (q *LocalQueue) work() {
	defer close(q.done)
	for job := range q.jobs {
		q.m.depth.Dec()
		q.run(job)
	}
}

func (q *LocalQueue) run(job Job) {
	err := fn.RetryErr(context.Background(), q.opts.Retry, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, q.opts.Timeout)
		defer cancel()
		return Sync(ctx, q.backend, job.UserID, job.Session)
	})
	if err != nil {
		q.m.failed.Inc()
		q.log.Error("mirror sync failed", "user_id", job.UserID, "date", job.Session.Date, "error", err)
		return
	}
	q.m.synced.Inc()
	q.log.Debug("mirror synced", "user_id", job.UserID, "date", job.Session.Date, "cars", len(job.Session.Cars))
}

// Close stops accepting jobs and waits for the buffered ones to finish or
// for ctx to end.
func (q *LocalQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
