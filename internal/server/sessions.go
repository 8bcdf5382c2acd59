package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/qri-io/seismic-go/internal/worker"
)

// Sessions schedules tasks on the worker queue and routes partial results
// and failures back to the request that scheduled them, keyed by pid
type Sessions struct {
	queue chan<- []byte
	log   *zap.Logger

	lk    sync.Mutex
	procs map[string]*proc
}

type proc struct {
	out  chan worker.Partial
	fail chan error
	// closed when the requester stops listening
	done chan struct{}
}

func NewSessions(queue chan<- []byte, log *zap.Logger) *Sessions {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sessions{
		queue: queue,
		log:   log,
		procs: map[string]*proc{},
	}
}

// Run routes results from the worker until ctx is done. Results for
// unknown or abandoned pids are dropped.
func (s *Sessions) Run(ctx context.Context, sink <-chan worker.Partial, fail <-chan worker.Failure) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-sink:
			pr := s.lookup(p.PID)
			if pr == nil {
				s.log.Debug("dropping partial for unknown process", zap.String("pid", p.PID))
				continue
			}
			select {
			case pr.out <- p:
			case <-pr.done:
			case <-ctx.Done():
				return
			}
		case f := <-fail:
			pr := s.lookup(f.PID)
			if pr == nil {
				s.log.Warn("failure for unknown process", zap.String("pid", f.PID), zap.Error(f.Err))
				continue
			}
			select {
			case pr.fail <- f.Err:
			case <-pr.done:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Sessions) lookup(pid string) *proc {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.procs[pid]
}

func (s *Sessions) register(pid string) (*proc, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.procs[pid]; ok {
		return nil, fmt.Errorf("process %s already scheduled", pid)
	}
	pr := &proc{
		out:  make(chan worker.Partial),
		fail: make(chan error),
		done: make(chan struct{}),
	}
	s.procs[pid] = pr
	return pr, nil
}

func (s *Sessions) unregister(pid string) {
	s.lk.Lock()
	defer s.lk.Unlock()
	if pr, ok := s.procs[pid]; ok {
		close(pr.done)
		delete(s.procs, pid)
	}
}

// Schedule queues task and collects its partial results. It returns once
// all N partials have arrived, the task fails or ctx is done. Partials are
// returned ordered by M.
func (s *Sessions) Schedule(ctx context.Context, task worker.Task) ([]worker.Partial, error) {
	msg, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	pr, err := s.register(task.PID)
	if err != nil {
		return nil, err
	}
	defer s.unregister(task.PID)

	log := s.log.With(zap.String("pid", task.PID))
	select {
	case s.queue <- msg:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	log.Debug("scheduled")

	var (
		partials []worker.Partial
		seen     = map[int]bool{}
	)
	for {
		select {
		case p := <-pr.out:
			if seen[p.M] || p.M < 0 || p.M >= p.N {
				log.Warn("unexpected partial", zap.Int("m", p.M), zap.Int("n", p.N))
				continue
			}
			seen[p.M] = true
			partials = append(partials, p)
			log.Debug("partial", zap.Int("m", p.M), zap.Int("n", p.N))
			if len(partials) == p.N {
				ordered := make([]worker.Partial, p.N)
				for _, p := range partials {
					ordered[p.M] = p
				}
				return ordered, nil
			}
		case err := <-pr.fail:
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
