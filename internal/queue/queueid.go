package queue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrInvalidIdentifier is returned when a queue or job identifier is empty.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// QueueID segments one queue from another. Jobs in different queues are
// invisible to each other's acknowledgments.
//
// The zero value is the Empty sentinel and is never a valid working queue.
type QueueID struct {
	token string
}

// Parse builds a QueueID from its string form. The token is kept verbatim.
func Parse(token string) (QueueID, error) {
	q, ok := TryParse(token)
	if !ok {
		return Empty(), fmt.Errorf("queue id %q: %w", token, ErrInvalidIdentifier)
	}
	return q, nil
}

// TryParse is the comma-ok form of Parse.
func TryParse(token string) (QueueID, bool) {
	if token == "" {
		return Empty(), false
	}
	return QueueID{token: token}, true
}

// MustParse is like Parse but panics on invalid input.
func MustParse(token string) QueueID {
	q, err := Parse(token)
	if err != nil {
		panic(err)
	}
	return q
}

// Empty returns the sentinel identifier.
func Empty() QueueID {
	return QueueID{}
}

func (q QueueID) IsEmpty() bool {
	return q.token == ""
}

func (q QueueID) String() string {
	return q.token
}

func (q QueueID) Equal(other QueueID) bool {
	return q.token == other.token
}

// Compare orders identifiers by ordinal comparison of their tokens.
func (q QueueID) Compare(other QueueID) int {
	return strings.Compare(q.token, other.token)
}

func (q QueueID) Less(other QueueID) bool {
	return q.token < other.token
}

// Compare is the package-level form of QueueID.Compare, for slices.SortFunc.
func Compare(a, b QueueID) int {
	return a.Compare(b)
}

func (q QueueID) MarshalText() ([]byte, error) {
	return []byte(q.token), nil
}

func (q *QueueID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// SourceStringComparer compares and hashes QueueIDs by their underlying token,
// for containers that take an explicit comparer instead of relying on ==.
var SourceStringComparer = sourceStringComparer{}

type sourceStringComparer struct{}

func (sourceStringComparer) Equal(a, b QueueID) bool {
	return a.token == b.token
}

func (sourceStringComparer) Hash(q QueueID) uint64 {
	return xxhash.Sum64String(q.token)
}

func (sourceStringComparer) Compare(a, b QueueID) int {
	return strings.Compare(a.token, b.token)
}
