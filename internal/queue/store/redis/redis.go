package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aridsondez/monjobs/internal/queue"
	"github.com/aridsondez/monjobs/internal/queue/store"
)

// Ensure *RedisStore implements store.Store at compile time.
var _ store.Store = (*RedisStore)(nil)

// Each job is a hash with the fields below. An absent "ack" field means the
// job is unacknowledged.
const (
	fieldQueue   = "queue"
	fieldID      = "id"
	fieldAck     = "ack"
	fieldCreated = "created_at"
)

// findOneAndAck runs on the server as a single script, so the predicate check
// and the HSET cannot interleave with another caller.
//
// KEYS[1] job key; ARGV[1] queue; ARGV[2] id; ARGV[3] ack json;
// ARGV[4] "1" when the job must be unacknowledged.
var findOneAndAck = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local cur = redis.call('HMGET', KEYS[1], 'queue', 'id', 'ack')
if cur[1] ~= ARGV[1] or cur[2] ~= ARGV[2] then
  return false
end
if ARGV[4] == '1' and cur[3] then
  return false
end
redis.call('HSET', KEYS[1], 'ack', ARGV[3])
return redis.call('HMGET', KEYS[1], 'queue', 'id', 'ack', 'created_at')
`)

// insertJob refuses to overwrite an existing key.
var insertJob = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'queue', ARGV[1], 'id', ARGV[2], 'created_at', ARGV[3])
if ARGV[4] ~= '' then
  redis.call('HSET', KEYS[1], 'ack', ARGV[4])
end
return 1
`)

// RedisStore keeps jobs as hashes under a key prefix.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func New(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "monjobs"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// key length-prefixes the queue so ("a:b", "c") and ("a", "b:c") never collide.
func (r *RedisStore) key(q queue.QueueID, id queue.JobID) string {
	return fmt.Sprintf("%s:job:%d:%s:%s", r.prefix, len(q.String()), q.String(), id)
}

func (r *RedisStore) FindOneAndUpdate(ctx context.Context, f store.Filter, u store.Update) (queue.Job, bool, error) {
	ack, err := json.Marshal(u.Payload())
	if err != nil {
		return queue.Job{}, false, store.OperationFailed("redis find-and-update", err)
	}
	unacked := "0"
	if f.Unacknowledged {
		unacked = "1"
	}

	res, err := findOneAndAck.Run(ctx, r.client,
		[]string{r.key(f.Queue, f.ID)},
		f.Queue.String(), f.ID.String(), string(ack), unacked,
	).Slice()
	if errors.Is(err, redis.Nil) {
		return queue.Job{}, false, nil
	}
	if err != nil {
		return queue.Job{}, false, store.Classify("redis find-and-update", err)
	}

	job, err := decodeFields(res)
	if err != nil {
		return queue.Job{}, false, store.OperationFailed("redis find-and-update", err)
	}
	return job, true, nil
}

func (r *RedisStore) Insert(ctx context.Context, job queue.Job) error {
	var ack []byte
	if job.Acknowledgment != nil {
		var err error
		if ack, err = json.Marshal(job.Acknowledgment); err != nil {
			return store.OperationFailed("redis insert", err)
		}
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	created, err := insertJob.Run(ctx, r.client,
		[]string{r.key(job.Queue, job.ID)},
		job.Queue.String(), job.ID.String(), job.CreatedAt.Format(time.RFC3339Nano), string(ack),
	).Int()
	if err != nil {
		return store.Classify("redis insert", err)
	}
	if created == 0 {
		return store.ErrJobExists
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, q queue.QueueID, id queue.JobID) (queue.Job, error) {
	res, err := r.client.HMGet(ctx, r.key(q, id), fieldQueue, fieldID, fieldAck, fieldCreated).Result()
	if err != nil {
		return queue.Job{}, store.Classify("redis get", err)
	}
	if res[0] == nil {
		return queue.Job{}, store.ErrJobNotFound
	}
	job, err := decodeFields(res)
	if err != nil {
		return queue.Job{}, store.OperationFailed("redis get", err)
	}
	return job, nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// decodeFields turns an HMGET reply (queue, id, ack, created_at) into a Job.
func decodeFields(vals []interface{}) (queue.Job, error) {
	if len(vals) != 4 {
		return queue.Job{}, fmt.Errorf("unexpected reply length %d", len(vals))
	}
	str := func(i int) string {
		s, _ := vals[i].(string)
		return s
	}

	q, err := queue.Parse(str(0))
	if err != nil {
		return queue.Job{}, err
	}
	job := queue.Job{Queue: q, ID: queue.JobID(str(1))}

	if vals[2] != nil {
		if err := json.Unmarshal([]byte(str(2)), &job.Acknowledgment); err != nil {
			return queue.Job{}, fmt.Errorf("decode acknowledgment: %w", err)
		}
	}
	if created := str(3); created != "" {
		if job.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return queue.Job{}, fmt.Errorf("decode created_at %q: %w", created, err)
		}
	}
	return job, nil
}
