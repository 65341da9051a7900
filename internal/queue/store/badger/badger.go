package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/aridsondez/monjobs/internal/queue"
	"github.com/aridsondez/monjobs/internal/queue/store"
)

// Ensure *BadgerStore implements store.Store at compile time.
var _ store.Store = (*BadgerStore)(nil)

// maxCommitAttempts bounds how often a transaction that lost a commit
// conflict is re-run. Each run re-reads the record, so a loser observes the
// winner's acknowledgment and reports no match.
const maxCommitAttempts = 32

// BadgerStore keeps each job as a JSON value in an embedded Badger database.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (or creates) a database at path.
func Open(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemory opens a database that lives only in memory.
func OpenInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Key format: job:{len(queue)}:{queue}:{id}
func jobKey(q queue.QueueID, id queue.JobID) []byte {
	return []byte(fmt.Sprintf("job:%d:%s:%s", len(q.String()), q.String(), id))
}

func (b *BadgerStore) FindOneAndUpdate(ctx context.Context, f store.Filter, u store.Update) (queue.Job, bool, error) {
	key := jobKey(f.Queue, f.ID)

	var (
		out     queue.Job
		matched bool
	)
	err := b.update(ctx, "badger find-and-update", func(txn *badger.Txn) error {
		matched = false

		job, err := readJob(txn, key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !f.Matches(job) {
			return nil
		}

		job.Acknowledgment = u.Payload().Clone()
		if err := writeJob(txn, key, job); err != nil {
			return err
		}
		out, matched = job, true
		return nil
	})
	if err != nil {
		return queue.Job{}, false, err
	}
	return out, matched, nil
}

func (b *BadgerStore) Insert(ctx context.Context, job queue.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	key := jobKey(job.Queue, job.ID)
	return b.update(ctx, "badger insert", func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return store.ErrJobExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return writeJob(txn, key, job)
	})
}

func (b *BadgerStore) Get(ctx context.Context, q queue.QueueID, id queue.JobID) (queue.Job, error) {
	if err := ctx.Err(); err != nil {
		return queue.Job{}, store.Unavailable("badger get", err)
	}

	var job queue.Job
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		job, err = readJob(txn, jobKey(q, id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return queue.Job{}, store.ErrJobNotFound
	}
	if err != nil {
		return queue.Job{}, store.Classify("badger get", err)
	}
	return job, nil
}

// Close closes the database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

// update runs fn in a read-write transaction, re-running it when the commit
// loses a conflict against a concurrent transaction.
func (b *BadgerStore) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return store.Unavailable(op, err)
		}

		err := b.db.Update(fn)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, badger.ErrConflict):
			continue
		case errors.Is(err, store.ErrJobExists):
			return err
		default:
			return store.Classify(op, err)
		}
	}
	return store.OperationFailed(op, fmt.Errorf("gave up after %d attempts: %w", maxCommitAttempts, badger.ErrConflict))
}

func readJob(txn *badger.Txn, key []byte) (queue.Job, error) {
	item, err := txn.Get(key)
	if err != nil {
		return queue.Job{}, err
	}
	var job queue.Job
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	})
	return job, err
}

func writeJob(txn *badger.Txn, key []byte, job queue.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return txn.Set(key, data)
}
