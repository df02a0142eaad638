package scheduler

import (
	"context"
	"sync"

	"github.com/conneroisu/kiln/internal/asset"
)

// job is the pending work of one class. Jobs merge: paths and forgets are
// unioned and full/force are sticky.
type job struct {
	paths  map[string]bool
	forget map[string]bool
	full   bool
	force  bool
}

func (j *job) merge(other *job) *job {
	if j == nil {
		return other
	}
	for p := range other.paths {
		j.paths[p] = true
		delete(j.forget, p)
	}
	for p := range other.forget {
		j.forget[p] = true
		delete(j.paths, p)
	}
	j.full = j.full || other.full
	j.force = j.force || other.force
	return j
}

// worker runs the jobs of one class one at a time. Work submitted while a
// run is in progress is coalesced into a single follow-up run.
type worker struct {
	class asset.Class
	s     *Scheduler

	mu      sync.Mutex
	pending *job
	running bool
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func newWorker(class asset.Class, s *Scheduler) *worker {
	return &worker{
		class: class,
		s:     s,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (w *worker) submit(j *job) {
	w.mu.Lock()
	w.pending = w.pending.merge(j)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// close lets the worker finish pending work and exit.
func (w *worker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.done)
	}
}

func (w *worker) state() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return StateRunning
	}
	return StateIdle
}

func (w *worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
			w.drain(ctx)
		case <-w.done:
			w.drain(ctx)
			return
		}
	}
}

func (w *worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		w.mu.Lock()
		j := w.pending
		w.pending = nil
		w.running = j != nil
		w.mu.Unlock()

		if j == nil {
			return
		}
		w.s.execute(ctx, w.class, j)

		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}
}
