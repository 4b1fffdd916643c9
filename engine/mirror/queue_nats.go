package mirror

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/pinstripe-labs/carart/pkg/metrics"
	"github.com/pinstripe-labs/carart/pkg/natsutil"
)

const (
	// SyncSubject carries mirror jobs.
	SyncSubject = "carart.mirror.sync"
	// DLQSubject receives jobs that failed MaxDeliveries times.
	DLQSubject = "carart.mirror.sync.dlq"
	// MaxDeliveries is how many sync attempts a job gets.
	MaxDeliveries = 3
)

// DeadJob is published to DLQSubject.
type DeadJob struct {
	Job     Job    `json:"job"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// NATSQueue publishes jobs for a sync consumer that may run in another
// process.
type NATSQueue struct {
	pub natsutil.Publisher
	log *slog.Logger
	m   queueMetrics
}

var _ Queue = (*NATSQueue)(nil)

// NewNATSQueue creates a publisher-side queue.
func NewNATSQueue(pub natsutil.Publisher, logger *slog.Logger, reg *metrics.Registry) *NATSQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSQueue{pub: pub, log: logger.With("component", "mirror"), m: newQueueMetrics(reg)}
}

// Enqueue publishes the job; a publish failure is logged and counted.
func (q *NATSQueue) Enqueue(ctx context.Context, userID string, ev domain.EventSession) {
	if err := natsutil.Publish(ctx, q.pub, SyncSubject, NewJob(userID, ev), 0); err != nil {
		q.m.dropped.Inc()
		q.log.WarnContext(ctx, "mirror publish failed", "user_id", userID, "error", err)
	}
}

// ConsumerDeps wires StartConsumer.
type ConsumerDeps struct {
	Sub     natsutil.Subscriber
	Pub     natsutil.Publisher
	Backend Backend
	Logger  *slog.Logger
	Metrics *metrics.Registry
}

// StartConsumer subscribes to SyncSubject and syncs each job. A failed job is
// republished with an incremented retry header; after MaxDeliveries attempts
// it goes to DLQSubject.
func StartConsumer(deps ConsumerDeps) (*nats.Subscription, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "mirror-consumer")
	m := newQueueMetrics(deps.Metrics)

	handle := func(ctx context.Context, msg natsutil.Message[Job]) {
		job := msg.Value
		err := Sync(ctx, deps.Backend, job.UserID, job.Session)
		if err == nil {
			m.synced.Inc()
			log.DebugContext(ctx, "mirror synced", "user_id", job.UserID, "date", job.Session.Date)
			return
		}

		retries := msg.Retries + 1
		log.WarnContext(ctx, "mirror sync failed", "user_id", job.UserID, "retry", retries, "error", err)
		if retries >= MaxDeliveries {
			m.failed.Inc()
			dead := DeadJob{Job: job, Error: err.Error(), Retries: retries}
			if err := natsutil.Publish(ctx, deps.Pub, DLQSubject, dead, retries); err != nil {
				log.ErrorContext(ctx, "mirror DLQ publish failed", "error", err)
			}
			return
		}
		if err := natsutil.PublishRaw(ctx, deps.Pub, SyncSubject, msg.Data, retries); err != nil {
			m.failed.Inc()
			log.ErrorContext(ctx, "mirror retry publish failed", "error", err)
		}
	}
	onBad := func(err error) {
		m.dropped.Inc()
		log.Error("mirror job unreadable", "error", err)
	}
	return natsutil.Subscribe(deps.Sub, SyncSubject, handle, onBad)
}
