package store

import (
	"context"
	"errors"

	"github.com/aridsondez/monjobs/internal/queue"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

// Filter is a conjunction of exact-match predicates on a job record.
type Filter struct {
	Queue queue.QueueID
	ID    queue.JobID
	// Unacknowledged requires the acknowledgment field to be absent.
	Unacknowledged bool
}

// Update sets the acknowledgment field.
type Update struct {
	Acknowledgment queue.Acknowledgment
}

// Payload is the value to store. A nil acknowledgment is stored as an empty
// one so the field always ends up present.
func (u Update) Payload() queue.Acknowledgment {
	if u.Acknowledgment == nil {
		return queue.Acknowledgment{}
	}
	return u.Acknowledgment
}

// Matches reports whether j satisfies f. Backends that evaluate the predicate
// in process use it inside their atomic section.
func (f Filter) Matches(j queue.Job) bool {
	if j.Queue != f.Queue || j.ID != f.ID {
		return false
	}
	return !f.Unacknowledged || !j.Acknowledged()
}

// Store is the DB-agnostic interface the rest of the app uses.
type Store interface {
	// FindOneAndUpdate atomically applies u to the record matching f and
	// returns the updated record. ok is false when nothing matched.
	FindOneAndUpdate(ctx context.Context, f Filter, u Update) (job queue.Job, ok bool, err error)

	// Insert stores a new unacknowledged or acknowledged record.
	Insert(ctx context.Context, job queue.Job) error

	// Get loads one record; ErrJobNotFound when absent.
	Get(ctx context.Context, q queue.QueueID, id queue.JobID) (queue.Job, error)

	Close() error
}
