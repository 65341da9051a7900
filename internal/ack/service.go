// Package ack marks jobs as acknowledged.
//
// The service holds no locks and no state of its own. Every call is one
// conditional update against the store, and the store's atomicity is what
// guarantees that at most one caller acknowledges a given job.
package ack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aridsondez/monjobs/internal/metrics"
	"github.com/aridsondez/monjobs/internal/queue"
	"github.com/aridsondez/monjobs/internal/queue/store"
)

type Service struct {
	store   store.Store
	backend string
	log     *zap.Logger
}

type Option func(*Service)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithBackendName sets the "backend" label on metrics.
func WithBackendName(name string) Option {
	return func(s *Service) { s.backend = name }
}

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:   st,
		backend: "unknown",
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acknowledge records a on job id in queue q if, and only if, the job exists
// in that queue and has not been acknowledged yet.
//
// Success is false when the job was already acknowledged, belongs to another
// queue or does not exist; those cases are not told apart. Backend failures
// are returned as errors and never reported as Success=false.
func (s *Service) Acknowledge(ctx context.Context, q queue.QueueID, id queue.JobID, a queue.Acknowledgment) (queue.AckResult, error) {
	if err := validate(q, id); err != nil {
		return queue.AckResult{}, err
	}

	start := time.Now()
	_, ok, err := s.store.FindOneAndUpdate(ctx,
		store.Filter{Queue: q, ID: id, Unacknowledged: true},
		store.Update{Acknowledgment: a},
	)
	metrics.AcknowledgeDuration.WithLabelValues(s.backend).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.Acknowledgments.WithLabelValues(metrics.OutcomeError).Inc()
		metrics.BackendErrors.WithLabelValues(s.backend, errorKind(err)).Inc()
		s.log.Warn("acknowledge failed",
			zap.String("queue", q.String()),
			zap.String("job_id", id.String()),
			zap.Error(err),
		)
		return queue.AckResult{}, fmt.Errorf("acknowledge job %s in queue %s: %w", id, q, err)
	}

	outcome := metrics.OutcomeRejected
	if ok {
		outcome = metrics.OutcomeAcknowledged
		metrics.AcknowledgedJobs.WithLabelValues(q.String()).Inc()
	}
	metrics.Acknowledgments.WithLabelValues(outcome).Inc()
	s.log.Debug("acknowledge",
		zap.String("queue", q.String()),
		zap.String("job_id", id.String()),
		zap.Bool("success", ok),
	)

	return queue.AckResult{Success: ok}, nil
}

// Lookup returns the stored job, acknowledged or not.
func (s *Service) Lookup(ctx context.Context, q queue.QueueID, id queue.JobID) (queue.Job, error) {
	if err := validate(q, id); err != nil {
		return queue.Job{}, err
	}
	job, err := s.store.Get(ctx, q, id)
	if err != nil {
		return queue.Job{}, fmt.Errorf("lookup job %s in queue %s: %w", id, q, err)
	}
	return job, nil
}

func validate(q queue.QueueID, id queue.JobID) error {
	if q.IsEmpty() {
		return fmt.Errorf("queue id: %w", queue.ErrInvalidIdentifier)
	}
	if id == "" {
		return fmt.Errorf("job id: %w", queue.ErrInvalidIdentifier)
	}
	return nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, store.ErrBackendUnavailable):
		return "unavailable"
	case errors.Is(err, store.ErrBackendOperationFailed):
		return "operation_failed"
	default:
		return "other"
	}
}
