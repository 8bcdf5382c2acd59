package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	seismic "github.com/qri-io/seismic-go"
	"github.com/qri-io/seismic-go/internal/worker"
)

// fakeWorker answers every task from queue with respond
func fakeWorker(ctx context.Context, queue <-chan []byte, respond func(worker.Task)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-queue:
			task := worker.Task{}
			if err := json.Unmarshal(msg, &task); err != nil {
				panic(err)
			}
			respond(task)
		}
	}
}

func runSessions(t *testing.T, respond func(worker.Task, chan<- worker.Partial, chan<- worker.Failure)) *Sessions {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	queue := make(chan []byte)
	sink := make(chan worker.Partial)
	fail := make(chan worker.Failure)
	s := NewSessions(queue, nil)

	done := make(chan struct{}, 2)
	go func() {
		s.Run(ctx, sink, fail)
		done <- struct{}{}
	}()
	go func() {
		fakeWorker(ctx, queue, func(task worker.Task) { respond(task, sink, fail) })
		done <- struct{}{}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})
	return s
}

func TestScheduleOrdersPartials(t *testing.T) {
	s := runSessions(t, func(task worker.Task, sink chan<- worker.Partial, _ chan<- worker.Failure) {
		// out of order, with a partial for a pid nobody waits for
		sink <- worker.Partial{PID: "stray", M: 0, N: 1}
		for _, m := range []int{2, 0, 1} {
			sink <- worker.Partial{PID: task.PID, M: m, N: 3, Index: m}
		}
	})

	partials, err := s.Schedule(context.Background(), worker.Task{PID: "p1", GUID: "g"})
	require.NoError(t, err)
	require.Len(t, partials, 3)
	for m, p := range partials {
		assert.Equal(t, m, p.M)
		assert.Equal(t, m, p.Index)
	}
}

func TestScheduleIgnoresDuplicatePartials(t *testing.T) {
	s := runSessions(t, func(task worker.Task, sink chan<- worker.Partial, _ chan<- worker.Failure) {
		sink <- worker.Partial{PID: task.PID, M: 0, N: 2}
		sink <- worker.Partial{PID: task.PID, M: 0, N: 2}
		sink <- worker.Partial{PID: task.PID, M: 5, N: 2}
		sink <- worker.Partial{PID: task.PID, M: 1, N: 2}
	})

	partials, err := s.Schedule(context.Background(), worker.Task{PID: "p1"})
	require.NoError(t, err)
	assert.Len(t, partials, 2)
}

func TestScheduleFailure(t *testing.T) {
	s := runSessions(t, func(task worker.Task, sink chan<- worker.Partial, fail chan<- worker.Failure) {
		sink <- worker.Partial{PID: task.PID, M: 0, N: 2}
		fail <- worker.Failure{PID: task.PID, Err: seismic.ErrLineNotFound}
	})

	_, err := s.Schedule(context.Background(), worker.Task{PID: "p1"})
	assert.ErrorIs(t, err, seismic.ErrLineNotFound)
}

func TestScheduleDeadline(t *testing.T) {
	s := runSessions(t, func(task worker.Task, sink chan<- worker.Partial, _ chan<- worker.Failure) {
		// only one of two partials ever arrives
		sink <- worker.Partial{PID: task.PID, M: 0, N: 2}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Schedule(ctx, worker.Task{PID: "p1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, s.lookup("p1"))
}

func TestScheduleDuplicatePID(t *testing.T) {
	s := NewSessions(make(chan []byte), nil)
	_, err := s.register("p1")
	require.NoError(t, err)
	_, err = s.Schedule(context.Background(), worker.Task{PID: "p1"})
	assert.Error(t, err)
}
