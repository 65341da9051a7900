// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/aridsondez/monjobs/internal/queue"
	"github.com/aridsondez/monjobs/internal/queue/store"
)

// Factory returns a ready store. Implementations register their own cleanup
// on t.
type Factory func(t *testing.T) store.Store

// Racers is how many goroutines race to acknowledge one job.
const Racers = 16

func ackFilter(q queue.QueueID, id queue.JobID) store.Filter {
	return store.Filter{Queue: q, ID: id, Unacknowledged: true}
}

func seed(t *testing.T, s store.Store, q queue.QueueID) queue.JobID {
	t.Helper()
	id := queue.NewJobID()
	require.NoError(t, s.Insert(context.Background(), queue.Job{Queue: q, ID: id}))
	return id
}

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	orders := queue.MustParse("orders")

	t.Run("AcknowledgesUnacknowledgedJob", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := seed(t, s, orders)

		job, ok, err := s.FindOneAndUpdate(ctx, ackFilter(orders, id), store.Update{
			Acknowledgment: queue.Acknowledgment{"worker": "w1"},
		})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, orders, job.Queue)
		assert.Equal(t, id, job.ID)
		assert.Equal(t, queue.Acknowledgment{"worker": "w1"}, job.Acknowledgment)

		stored, err := s.Get(ctx, orders, id)
		require.NoError(t, err)
		assert.Equal(t, queue.Acknowledgment{"worker": "w1"}, stored.Acknowledgment)
	})

	t.Run("SecondAcknowledgeDoesNotOverwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := seed(t, s, orders)

		_, ok, err := s.FindOneAndUpdate(ctx, ackFilter(orders, id), store.Update{
			Acknowledgment: queue.Acknowledgment{"worker": "w1"},
		})
		require.NoError(t, err)
		require.True(t, ok)

		for i := 0; i < 3; i++ {
			_, ok, err = s.FindOneAndUpdate(ctx, ackFilter(orders, id), store.Update{
				Acknowledgment: queue.Acknowledgment{"worker": "w2"},
			})
			require.NoError(t, err)
			assert.False(t, ok)
		}

		stored, err := s.Get(ctx, orders, id)
		require.NoError(t, err)
		assert.Equal(t, queue.Acknowledgment{"worker": "w1"}, stored.Acknowledgment)
	})

	t.Run("QueueIsolation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := seed(t, s, orders)
		billing := queue.MustParse("billing")

		_, ok, err := s.FindOneAndUpdate(ctx, ackFilter(billing, id), store.Update{
			Acknowledgment: queue.Acknowledgment{"worker": "w1"},
		})
		require.NoError(t, err)
		assert.False(t, ok)

		stored, err := s.Get(ctx, orders, id)
		require.NoError(t, err)
		assert.False(t, stored.Acknowledged())

		_, err = s.Get(ctx, billing, id)
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})

	t.Run("QueueNamesAreCaseSensitive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := seed(t, s, orders)

		_, ok, err := s.FindOneAndUpdate(ctx, ackFilter(queue.MustParse("Orders"), id), store.Update{
			Acknowledgment: queue.Acknowledgment{"worker": "w1"},
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SeparatorsInNamesDoNotCollide", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		suffix := queue.NewJobID()
		require.NoError(t, s.Insert(ctx, queue.Job{Queue: queue.MustParse("a:b"), ID: "c" + suffix}))

		_, ok, err := s.FindOneAndUpdate(ctx, ackFilter(queue.MustParse("a"), "b:c"+suffix), store.Update{
			Acknowledgment: queue.Acknowledgment{"worker": "w1"},
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("NonexistentJob", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := queue.NewJobID()

		_, ok, err := s.FindOneAndUpdate(ctx, ackFilter(orders, id), store.Update{
			Acknowledgment: queue.Acknowledgment{"worker": "w1"},
		})
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Get(ctx, orders, id)
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})

	t.Run("NilAcknowledgmentIsStoredAsPresent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := seed(t, s, orders)

		job, ok, err := s.FindOneAndUpdate(ctx, ackFilter(orders, id), store.Update{})
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, job.Acknowledged())

		_, ok, err = s.FindOneAndUpdate(ctx, ackFilter(orders, id), store.Update{
			Acknowledgment: queue.Acknowledgment{"worker": "w2"},
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("UnconditionalUpdateOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := seed(t, s, orders)

		for _, w := range []string{"w1", "w2"} {
			_, ok, err := s.FindOneAndUpdate(ctx, store.Filter{Queue: orders, ID: id}, store.Update{
				Acknowledgment: queue.Acknowledgment{"worker": w},
			})
			require.NoError(t, err)
			require.True(t, ok)
		}

		stored, err := s.Get(ctx, orders, id)
		require.NoError(t, err)
		assert.Equal(t, queue.Acknowledgment{"worker": "w2"}, stored.Acknowledgment)
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := seed(t, s, orders)

		err := s.Insert(ctx, queue.Job{Queue: orders, ID: id})
		assert.ErrorIs(t, err, store.ErrJobExists)

		// same id in another queue is a different job
		assert.NoError(t, s.Insert(ctx, queue.Job{Queue: queue.MustParse("billing"), ID: id}))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		s := newStore(t)
		id := seed(t, s, orders)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, ok, err := s.FindOneAndUpdate(ctx, ackFilter(orders, id), store.Update{
			Acknowledgment: queue.Acknowledgment{"worker": "w1"},
		})
		require.Error(t, err)
		assert.False(t, ok)
		assert.ErrorIs(t, err, store.ErrBackendUnavailable)

		stored, err := s.Get(context.Background(), orders, id)
		require.NoError(t, err)
		assert.False(t, stored.Acknowledged())
	})

	t.Run("ConcurrentAcknowledgeHasOneWinner", func(t *testing.T) {
		s := newStore(t)
		id := seed(t, s, orders)

		var (
			wins   atomic.Int32
			mu     sync.Mutex
			winner queue.Acknowledgment
		)
		g, ctx := errgroup.WithContext(context.Background())
		for i := 0; i < Racers; i++ {
			payload := queue.Acknowledgment{"worker": fmt.Sprintf("w%d", i)}
			g.Go(func() error {
				_, ok, err := s.FindOneAndUpdate(ctx, ackFilter(orders, id), store.Update{Acknowledgment: payload})
				if err != nil {
					return err
				}
				if ok {
					wins.Add(1)
					mu.Lock()
					winner = payload
					mu.Unlock()
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		require.Equal(t, int32(1), wins.Load())

		stored, err := s.Get(context.Background(), orders, id)
		require.NoError(t, err)
		assert.Equal(t, winner, stored.Acknowledgment)
	})
}
