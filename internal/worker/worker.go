// Package worker runs slice tasks. A Worker blocks on a queue of serialized
// tasks and a control channel, processes one task at a time and reports
// every task as a series of partial results or a single failure.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	seismic "github.com/qri-io/seismic-go"
)

// DefaultTaskSize is the max number of fragments in one partial result
const DefaultTaskSize = 10

// Task asks for the slice at line number Lineno along Dim of cube GUID
type Task struct {
	PID    string `json:"pid"`
	GUID   string `json:"guid"`
	Dim    int    `json:"dim"`
	Lineno int    `json:"lineno"`
}

// Partial is result M of N of a task. Together the tiles of all N partials
// make up the whole slice.
type Partial struct {
	PID   string         `json:"pid"`
	M     int            `json:"m"`
	N     int            `json:"n"`
	Dim   int            `json:"dim"`
	Index int            `json:"index"`
	Shape []int          `json:"shape"`
	Tiles []seismic.Tile `json:"tiles"`
}

// Failure reports a task that could not be completed. PID is empty when the
// task could not be decoded.
type Failure struct {
	PID string
	Err error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.PID, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

type Options struct {
	// Concurrent fragment fetches per task
	Transfers int
	// Max fragments per partial result
	TaskSize int
	Logger   *zap.Logger
}

type Worker struct {
	store     seismic.Store
	sink      chan<- Partial
	fail      chan<- Failure
	transfers int
	taskSize  int
	log       *zap.Logger
}

// New creates a worker reading cubes from store, pushing partial results to
// sink and failures to fail
func New(store seismic.Store, sink chan<- Partial, fail chan<- Failure, opts Options) *Worker {
	w := &Worker{
		store:     store,
		sink:      sink,
		fail:      fail,
		transfers: opts.Transfers,
		taskSize:  opts.TaskSize,
		log:       opts.Logger,
	}
	if w.transfers < 1 {
		w.transfers = seismic.DefaultTransfers
	}
	if w.taskSize < 1 {
		w.taskSize = DefaultTaskSize
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	return w
}

// Run processes tasks from source until a message arrives on control,
// source is closed or ctx is cancelled. A task is fully processed before
// the next one is received.
func (w *Worker) Run(ctx context.Context, source <-chan []byte, control <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-control:
			w.log.Info("worker stopped by control signal")
			return nil
		case msg, ok := <-source:
			if !ok {
				return nil
			}
			w.Process(ctx, msg)
		}
	}
}

// Process runs a single serialized task
func (w *Worker) Process(ctx context.Context, msg []byte) {
	task := Task{}
	if err := json.Unmarshal(msg, &task); err != nil {
		w.failed(ctx, Failure{Err: fmt.Errorf("decoding task: %w", err)})
		return
	}

	log := w.log.With(zap.String("pid", task.PID), zap.String("guid", task.GUID))
	log.Debug("task received", zap.Int("dim", task.Dim), zap.Int("lineno", task.Lineno))
	if err := w.run(ctx, task, log); err != nil {
		log.Warn("task failed", zap.Error(err))
		w.failed(ctx, Failure{PID: task.PID, Err: err})
		return
	}
	log.Debug("task done")
}

func (w *Worker) run(ctx context.Context, task Task, log *zap.Logger) error {
	cube, err := seismic.Open(ctx, w.store, task.GUID, seismic.WithTransfers(w.transfers), seismic.WithLogger(log))
	if err != nil {
		return err
	}
	dim := seismic.Dimension(task.Dim)
	index, err := cube.Manifest().Index(dim, task.Lineno)
	if err != nil {
		return err
	}
	ids, err := cube.Geometry().Slice(dim, index)
	if err != nil {
		return err
	}

	batches := Plan(ids, w.taskSize)
	shape := cube.Geometry().SliceShape(dim)
	for m, batch := range batches {
		tiles, err := cube.Tiles(ctx, dim, index, batch)
		if err != nil {
			return err
		}
		p := Partial{
			PID:   task.PID,
			M:     m,
			N:     len(batches),
			Dim:   task.Dim,
			Index: index,
			Shape: shape,
			Tiles: tiles,
		}
		select {
		case w.sink <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
		log.Debug("partial sent", zap.Int("m", m), zap.Int("n", len(batches)))
	}
	return nil
}

func (w *Worker) failed(ctx context.Context, f Failure) {
	select {
	case w.fail <- f:
	case <-ctx.Done():
	}
}

// Plan splits fragment ids into batches of at most size ids, keeping their
// order
func Plan(ids []seismic.FragmentID, size int) [][]seismic.FragmentID {
	if size < 1 {
		size = 1
	}
	batches := make([][]seismic.FragmentID, 0, (len(ids)+size-1)/size)
	for len(ids) > 0 {
		n := min(size, len(ids))
		batches = append(batches, ids[:n:n])
		ids = ids[n:]
	}
	return batches
}
