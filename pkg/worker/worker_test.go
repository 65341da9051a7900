package worker

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aridsondez/monjobs/internal/ack"
	"github.com/aridsondez/monjobs/internal/api"
	"github.com/aridsondez/monjobs/internal/queue"
	"github.com/aridsondez/monjobs/internal/queue/store/memory"
	"github.com/aridsondez/monjobs/pkg/client"
)

// recordingAcker remembers every acknowledge call and answers with accept.
type recordingAcker struct {
	mu     sync.Mutex
	calls  []map[string]any
	accept bool
}

func (r *recordingAcker) Acknowledge(_ context.Context, _, _ string, ack map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ack)
	return r.accept, nil
}

func newServerClient(t *testing.T, queueName string, ids ...string) (*client.Client, *memory.MemoryStore) {
	t.Helper()
	st := memory.New()
	for _, id := range ids {
		require.NoError(t, st.Insert(context.Background(), queue.Job{Queue: queue.MustParse(queueName), ID: queue.JobID(id)}))
	}
	srv := httptest.NewServer(api.NewHandler(ack.NewService(st), time.Second))
	t.Cleanup(srv.Close)
	return client.NewClient(srv.URL), st
}

func TestProcessAcknowledgesWithWorkerName(t *testing.T) {
	acker := &recordingAcker{accept: true}
	w := New(acker, Config{Name: "w1", Logger: zaptest.NewLogger(t)})
	w.Handle("orders", func(ctx context.Context, task Task) (map[string]any, error) {
		return map[string]any{"status": "done"}, nil
	})

	res := w.Process(context.Background(), Task{Queue: "orders", JobID: "J1"})
	require.NoError(t, res.Err)
	assert.True(t, res.Acknowledged)
	require.Len(t, acker.calls, 1)
	assert.Equal(t, map[string]any{"status": "done", "worker": "w1"}, acker.calls[0])
}

func TestProcessHandlerFailureSkipsAck(t *testing.T) {
	acker := &recordingAcker{accept: true}
	w := New(acker, Config{Name: "w1", Logger: zaptest.NewLogger(t)})

	boom := errors.New("boom")
	w.Handle("orders", func(ctx context.Context, task Task) (map[string]any, error) {
		return nil, boom
	})
	w.Handle("panics", func(ctx context.Context, task Task) (map[string]any, error) {
		panic("bad input")
	})

	res := w.Process(context.Background(), Task{Queue: "orders", JobID: "J1"})
	assert.ErrorIs(t, res.Err, boom)
	assert.False(t, res.Acknowledged)

	res = w.Process(context.Background(), Task{Queue: "panics", JobID: "J1"})
	assert.ErrorContains(t, res.Err, "bad input")

	res = w.Process(context.Background(), Task{Queue: "unknown", JobID: "J1"})
	assert.ErrorIs(t, res.Err, ErrNoHandler)

	assert.Empty(t, acker.calls)
}

func TestRunRequiresHandlers(t *testing.T) {
	w := New(&recordingAcker{}, Config{})
	assert.Error(t, w.Run(context.Background(), make(chan Task)))
}

func TestCompetingWorkersAcknowledgeEachJobOnce(t *testing.T) {
	ids := []string{"J1", "J2", "J3", "J4", "J5", "J6", "J7", "J8"}
	c, st := newServerClient(t, "orders", ids...)

	var mu sync.Mutex
	wins := make(map[string][]string)
	record := func(res Result) {
		assert.NoError(t, res.Err)
		if res.Acknowledged {
			mu.Lock()
			wins[res.Task.JobID] = append(wins[res.Task.JobID], res.Worker)
			mu.Unlock()
		}
	}

	handler := func(ctx context.Context, task Task) (map[string]any, error) {
		return nil, nil
	}

	var wg sync.WaitGroup
	for _, name := range []string{"w1", "w2", "w3"} {
		tasks := make(chan Task, len(ids))
		for _, id := range ids {
			tasks <- Task{Queue: "orders", JobID: id}
		}
		close(tasks)

		w := New(c, Config{Name: name, Concurrency: 2, OnResult: record})
		w.Handle("orders", handler)

		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Run(context.Background(), tasks))
		}()
	}
	wg.Wait()

	require.Len(t, wins, len(ids))
	for _, id := range ids {
		require.Len(t, wins[id], 1, id)

		job, err := st.Get(context.Background(), queue.MustParse("orders"), queue.JobID(id))
		require.NoError(t, err)
		assert.Equal(t, wins[id][0], job.Acknowledgment["worker"])
	}
}
