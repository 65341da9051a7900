package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobID names a job within a queue. It is treated as an opaque token.
type JobID string

// NewJobID returns a random job id.
func NewJobID() JobID {
	return JobID(uuid.NewString())
}

func ParseJobID(s string) (JobID, error) {
	if s == "" {
		return "", fmt.Errorf("job id: %w", ErrInvalidIdentifier)
	}
	return JobID(s), nil
}

func (id JobID) String() string {
	return string(id)
}

// Acknowledgment is the caller supplied record describing how a job was
// completed. It is stored verbatim. A nil Acknowledgment means "absent".
type Acknowledgment map[string]any

// Clone returns a deep copy. Nested maps and slices of the shapes produced by
// encoding/json are copied; other values are shared.
func (a Acknowledgment) Clone() Acknowledgment {
	if a == nil {
		return nil
	}
	return Acknowledgment(cloneMap(a))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		if v == nil {
			return v
		}
		return cloneMap(v)
	case Acknowledgment:
		return v.Clone()
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Job is the stored record an acknowledgment applies to.
type Job struct {
	Queue          QueueID        `json:"queue"`
	ID             JobID          `json:"id"`
	Acknowledgment Acknowledgment `json:"acknowledgment"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (j Job) Acknowledged() bool {
	return j.Acknowledgment != nil
}

// AckResult reports whether a call performed the transition from
// unacknowledged to acknowledged.
type AckResult struct {
	Success bool `json:"success"`
}
