package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aridsondez/monjobs/internal/queue"
	"github.com/aridsondez/monjobs/internal/queue/store"
)

// Ensure *MemoryStore implements store.Store at compile time.
var _ store.Store = (*MemoryStore)(nil)

type key struct {
	queue queue.QueueID
	id    queue.JobID
}

// record keeps the acknowledgment encoded, like the durable backends, so
// nothing the caller holds can reach the stored payload.
type record struct {
	job queue.Job // Acknowledgment is always nil here
	ack []byte    // nil while unacknowledged
}

func (r record) acknowledged() bool {
	return r.ack != nil
}

func (r record) decode() (queue.Job, error) {
	job := r.job
	if r.ack != nil {
		if err := json.Unmarshal(r.ack, &job.Acknowledgment); err != nil {
			return queue.Job{}, fmt.Errorf("decode acknowledgment: %w", err)
		}
	}
	return job, nil
}

// MemoryStore keeps jobs in a map. The mutex is held across predicate check
// and mutation, which is what makes FindOneAndUpdate atomic.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[key]record
}

func New() *MemoryStore {
	return &MemoryStore{jobs: make(map[key]record)}
}

func (m *MemoryStore) FindOneAndUpdate(ctx context.Context, f store.Filter, u store.Update) (queue.Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return queue.Job{}, false, store.Unavailable("memory find-and-update", err)
	}
	ack, err := json.Marshal(u.Payload())
	if err != nil {
		return queue.Job{}, false, store.OperationFailed("memory find-and-update", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{queue: f.Queue, id: f.ID}
	rec, found := m.jobs[k]
	if !found {
		return queue.Job{}, false, nil
	}
	state := rec.job
	if rec.acknowledged() {
		state.Acknowledgment = queue.Acknowledgment{}
	}
	if !f.Matches(state) {
		return queue.Job{}, false, nil
	}

	rec.ack = ack
	m.jobs[k] = rec
	job, err := rec.decode()
	if err != nil {
		return queue.Job{}, false, store.OperationFailed("memory find-and-update", err)
	}
	return job, true, nil
}

func (m *MemoryStore) Insert(ctx context.Context, job queue.Job) error {
	if err := ctx.Err(); err != nil {
		return store.Unavailable("memory insert", err)
	}

	rec := record{job: job}
	if job.Acknowledgment != nil {
		ack, err := json.Marshal(job.Acknowledgment)
		if err != nil {
			return store.OperationFailed("memory insert", err)
		}
		rec.ack = ack
		rec.job.Acknowledgment = nil
	}
	if rec.job.CreatedAt.IsZero() {
		rec.job.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{queue: job.Queue, id: job.ID}
	if _, exists := m.jobs[k]; exists {
		return store.ErrJobExists
	}
	m.jobs[k] = rec
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, q queue.QueueID, id queue.JobID) (queue.Job, error) {
	if err := ctx.Err(); err != nil {
		return queue.Job{}, store.Unavailable("memory get", err)
	}

	m.mu.Lock()
	rec, found := m.jobs[key{queue: q, id: id}]
	m.mu.Unlock()

	if !found {
		return queue.Job{}, store.ErrJobNotFound
	}
	job, err := rec.decode()
	if err != nil {
		return queue.Job{}, store.OperationFailed("memory get", err)
	}
	return job, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
