package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoHandler is reported for tasks whose queue has no registered handler.
var ErrNoHandler = errors.New("no handler registered for queue")

// HandlerFunc processes a job and returns the acknowledgment payload to record.
// Returning an error leaves the job unacknowledged.
type HandlerFunc func(ctx context.Context, task Task) (map[string]any, error)

// Acknowledger is satisfied by *client.Client.
type Acknowledger interface {
	Acknowledge(ctx context.Context, queue, jobID string, ack map[string]any) (bool, error)
}

// Task names one job to process
type Task struct {
	Queue string
	JobID string
}

// Result of processing a task. Acknowledged is false when another worker
// already acknowledged the job or the handler failed (Err is set then).
type Result struct {
	Task         Task
	Worker       string
	Acknowledged bool
	Err          error
}

// Worker runs handlers for jobs and acknowledges them on success
type Worker struct {
	name           string
	ack            Acknowledger
	handlers       map[string]HandlerFunc
	concurrency    int
	handlerTimeout time.Duration
	onResult       func(Result)
	log            *zap.Logger
}

// Config for creating a new worker
type Config struct {
	Name           string        // recorded as "worker" in the acknowledgment
	Concurrency    int           // Parallel tasks (default: 4)
	HandlerTimeout time.Duration // Per-handler deadline (default: 25s)
	OnResult       func(Result)  // Called after every task; must be safe for concurrent use
	Logger         *zap.Logger
}

// New creates a new Worker with the given configuration
func New(ack Acknowledger, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.HandlerTimeout == 0 {
		cfg.HandlerTimeout = 25 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Worker{
		name:           cfg.Name,
		ack:            ack,
		handlers:       make(map[string]HandlerFunc),
		concurrency:    cfg.Concurrency,
		handlerTimeout: cfg.HandlerTimeout,
		onResult:       cfg.OnResult,
		log:            cfg.Logger.With(zap.String("worker", cfg.Name)),
	}
}

// Handle registers a handler function for a specific queue. Not safe to call
// once Run has started.
func (w *Worker) Handle(queue string, handler HandlerFunc) {
	w.handlers[queue] = handler
	w.log.Debug("registered handler", zap.String("queue", queue))
}

// Run processes tasks until the channel is closed or ctx is cancelled.
func (w *Worker) Run(ctx context.Context, tasks <-chan Task) error {
	if len(w.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case task, ok := <-tasks:
					if !ok {
						return nil
					}
					res := w.Process(ctx, task)
					if w.onResult != nil {
						w.onResult(res)
					}
				}
			}
		})
	}
	return g.Wait()
}

// Process runs the handler for one task and acknowledges the job if the
// handler succeeds.
func (w *Worker) Process(ctx context.Context, task Task) (res Result) {
	res = Result{Task: task, Worker: w.name}
	log := w.log.With(zap.String("queue", task.Queue), zap.String("job_id", task.JobID))

	handler, ok := w.handlers[task.Queue]
	if !ok {
		res.Err = fmt.Errorf("%w: %s", ErrNoHandler, task.Queue)
		return res
	}

	payload, err := w.runHandler(ctx, handler, task)
	if err != nil {
		log.Warn("handler failed, job left unacknowledged", zap.Error(err))
		res.Err = err
		return res
	}

	if payload == nil {
		payload = make(map[string]any)
	}
	if _, set := payload["worker"]; !set && w.name != "" {
		payload["worker"] = w.name
	}

	acked, err := w.ack.Acknowledge(ctx, task.Queue, task.JobID, payload)
	if err != nil {
		log.Error("acknowledge failed", zap.Error(err))
		res.Err = err
		return res
	}
	res.Acknowledged = acked

	if acked {
		log.Info("job acknowledged")
	} else {
		log.Info("job already acknowledged elsewhere")
	}
	return res
}

// runHandler applies the handler timeout and turns a panic into an error.
func (w *Worker) runHandler(ctx context.Context, handler HandlerFunc, task Task) (payload map[string]any, err error) {
	handlerCtx, cancel := context.WithTimeout(ctx, w.handlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler(handlerCtx, task)
}
