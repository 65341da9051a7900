package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aridsondez/monjobs/internal/queue"
	"github.com/aridsondez/monjobs/internal/queue/store"
)

// Ensure *PostgresStore implements store.Store at compile time.
var _ store.Store = (*PostgresStore)(nil)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// SQL templates
const (
	sqlSchema = `
CREATE TABLE IF NOT EXISTS jobs (
  queue          TEXT        NOT NULL CHECK (queue <> ''),
  id             TEXT        NOT NULL CHECK (id <> ''),
  acknowledgment JSONB,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (queue, id)
);
CREATE INDEX IF NOT EXISTS jobs_unacknowledged_idx
  ON jobs (queue, created_at) WHERE acknowledgment IS NULL;`

	sqlInsert = `
INSERT INTO jobs (queue, id, acknowledgment, created_at)
VALUES ($1, $2, $3::jsonb, $4)
ON CONFLICT (queue, id) DO NOTHING;`

	// One statement: the row lock taken by UPDATE makes a racing caller
	// re-check "acknowledgment IS NULL" against the committed row.
	sqlFindOneAndAck = `
UPDATE jobs
SET acknowledgment = $3::jsonb
WHERE queue = $1
  AND id = $2
  AND ($4 = false OR acknowledgment IS NULL)
RETURNING queue, id, acknowledgment, created_at;`

	sqlGet = `
SELECT queue, id, acknowledgment, created_at
FROM jobs
WHERE queue = $1 AND id = $2;`
)

// EnsureSchema creates the jobs table when missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, sqlSchema); err != nil {
		return classify("postgres ensure schema", err)
	}
	return nil
}

// FindOneAndUpdate runs the conditional UPDATE ... RETURNING.
func (p *PostgresStore) FindOneAndUpdate(ctx context.Context, f store.Filter, u store.Update) (queue.Job, bool, error) {
	ack, err := encodeAck(u.Payload())
	if err != nil {
		return queue.Job{}, false, store.OperationFailed("postgres find-and-update", err)
	}

	row := p.pool.QueryRow(ctx, sqlFindOneAndAck,
		f.Queue.String(), // $1
		f.ID.String(),    // $2
		ack,              // $3
		f.Unacknowledged, // $4
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Job{}, false, nil
	}
	if err != nil {
		return queue.Job{}, false, classify("postgres find-and-update", err)
	}
	return job, true, nil
}

// Insert adds a job; duplicates are reported as store.ErrJobExists.
func (p *PostgresStore) Insert(ctx context.Context, job queue.Job) error {
	ack, err := encodeAck(job.Acknowledgment)
	if err != nil {
		return store.OperationFailed("postgres insert", err)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	ct, err := p.pool.Exec(ctx, sqlInsert,
		job.Queue.String(),
		job.ID.String(),
		ack,
		job.CreatedAt,
	)
	if err != nil {
		return classify("postgres insert", err)
	}
	if ct.RowsAffected() == 0 {
		return store.ErrJobExists
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, q queue.QueueID, id queue.JobID) (queue.Job, error) {
	job, err := scanJob(p.pool.QueryRow(ctx, sqlGet, q.String(), id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.Job{}, store.ErrJobNotFound
	}
	if err != nil {
		return queue.Job{}, classify("postgres get", err)
	}
	return job, nil
}

// Close is a no-op: the pool belongs to the caller.
func (p *PostgresStore) Close() error {
	return nil
}

func scanJob(row pgx.Row) (queue.Job, error) {
	var (
		qname, id string
		ack       []byte
		job       queue.Job
	)
	// NOTE: column order must match the RETURNING / SELECT lists.
	if err := row.Scan(&qname, &id, &ack, &job.CreatedAt); err != nil {
		return queue.Job{}, err
	}

	q, err := queue.Parse(qname)
	if err != nil {
		return queue.Job{}, store.OperationFailed("postgres scan", err)
	}
	job.Queue = q
	job.ID = queue.JobID(id)

	if ack != nil {
		if err := json.Unmarshal(ack, &job.Acknowledgment); err != nil {
			return queue.Job{}, store.OperationFailed("postgres scan", fmt.Errorf("decode acknowledgment: %w", err))
		}
	}
	return job, nil
}

// encodeAck returns nil for an absent acknowledgment so it is stored as SQL
// NULL, never as the JSON literal null.
func encodeAck(a queue.Acknowledgment) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func classify(op string, err error) error {
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return store.Unavailable(op, err)
	}
	return store.Classify(op, err)
}
