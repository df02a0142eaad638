// Package scheduler runs the asset classes as a task graph: a one-shot build
// in declared order, and a watch loop that routes file changes to per-class
// workers which coalesce events arriving while a run is in progress.
package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/conneroisu/kiln/internal/asset"
	"github.com/conneroisu/kiln/internal/build"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/scanner"
	"github.com/conneroisu/kiln/internal/watcher"
)

// Runner is the part of the pipeline the scheduler drives.
type Runner interface {
	Classes() []asset.Class
	Spec(class asset.Class) (asset.Spec, bool)
	Memory() *build.Memory
	Run(ctx context.Context, req build.Request) (*build.Report, error)
	Forget(ctx context.Context, class asset.Class, source string) (*build.Report, error)
}

// State is the lifecycle state of a class worker.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Scheduler coordinates pipeline runs.
type Scheduler struct {
	runner Runner
	logger logging.Logger

	mu      sync.Mutex
	workers map[asset.Class]*worker
	// building marks classes run by Build or BuildClass.
	building map[asset.Class]bool
}

// New creates a scheduler.
func New(runner Runner, logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Scheduler{
		runner:   runner,
		logger:   logger.WithComponent("scheduler"),
		workers:  make(map[asset.Class]*worker),
		building: make(map[asset.Class]bool),
	}
}

// Build runs every class exactly once in declared order. The error is
// non-nil only for fatal conditions; per-file failures are in the reports.
func (s *Scheduler) Build(ctx context.Context) ([]*build.Report, error) {
	classes := s.runner.Classes()
	reports := make([]*build.Report, 0, len(classes))
	for _, class := range classes {
		report, err := s.BuildClass(ctx, class)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// BuildClass runs a single class over its whole source set.
func (s *Scheduler) BuildClass(ctx context.Context, class asset.Class) (*build.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := s.runner.Spec(class); !ok {
		return nil, kerrors.ErrUnknownClass(string(class))
	}

	s.setBuilding(class, true)
	defer s.setBuilding(class, false)

	return s.runner.Run(ctx, build.Request{Class: class})
}

func (s *Scheduler) setBuilding(class asset.Class, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.building[class] = true
		return
	}
	delete(s.building, class)
}

// State returns the state of class.
func (s *Scheduler) State(class asset.Class) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.building[class] {
		return StateRunning
	}
	if w, ok := s.workers[class]; ok {
		return w.state()
	}
	return StateIdle
}

// Watch routes batches of change events to per-class workers until ctx is
// done or events is closed. After events is closed, queued work is finished
// before Watch returns.
func (s *Scheduler) Watch(ctx context.Context, events <-chan []watcher.ChangeEvent) error {
	var wg sync.WaitGroup
	s.mu.Lock()
	for _, class := range s.runner.Classes() {
		w := newWorker(class, s)
		s.workers[class] = w
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	workers := s.workers
	s.mu.Unlock()

	defer func() {
		for _, w := range workers {
			w.close()
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			for class, j := range s.route(batch) {
				workers[class].submit(j)
			}
		}
	}
}

// route maps a batch onto the classes whose watch glob matches.
func (s *Scheduler) route(batch []watcher.ChangeEvent) map[asset.Class]*job {
	jobs := make(map[asset.Class]*job)
	for _, class := range s.runner.Classes() {
		spec, _ := s.runner.Spec(class)
		glob := spec.WatchGlob()

		for _, event := range batch {
			p := scanner.Normalize(event.Path)
			if !scanner.Match(glob, p) && !scanner.Match(spec.Source, p) {
				continue
			}
			j := jobs[class]
			if j == nil {
				j = &job{paths: make(map[string]bool), forget: make(map[string]bool)}
				jobs[class] = j
			}
			s.affect(j, spec, event.Type, p)
		}
	}
	return jobs
}

func (s *Scheduler) affect(j *job, spec asset.Spec, typ watcher.EventType, p string) {
	source := scanner.Match(spec.Source, p)
	dependents := s.runner.Memory().Dependents(spec.Class, p)

	if typ.Removal() && source {
		j.forget[p] = true
		delete(j.paths, p)
	} else if source {
		j.paths[p] = true
		delete(j.forget, p)
	}

	if len(dependents) > 0 {
		j.force = true
		for _, d := range dependents {
			j.paths[d] = true
		}
	}
	if !source && len(dependents) == 0 {
		j.full = true
		j.force = true
	}
}

// Status describes one class for status surfaces.
type Status struct {
	Class      asset.Class   `json:"class"`
	State      State         `json:"state"`
	Remembered int           `json:"remembered"`
	Last       *build.Report `json:"last,omitempty"`
}

// Reporter exposes the last report of a class.
type Reporter interface {
	Last(class asset.Class) (*build.Report, bool)
}

// Status returns the status of every class in declared order.
func (s *Scheduler) Status() []Status {
	classes := s.runner.Classes()
	out := make([]Status, 0, len(classes))
	reporter, _ := s.runner.(Reporter)
	for _, class := range classes {
		st := Status{Class: class, State: s.State(class), Remembered: s.runner.Memory().Len(class)}
		if reporter != nil {
			if r, ok := reporter.Last(class); ok {
				st.Last = r
			}
		}
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) execute(ctx context.Context, class asset.Class, j *job) {
	forget := keys(j.forget)
	for _, p := range forget {
		if _, err := s.runner.Forget(ctx, class, p); err != nil {
			s.logger.Error(ctx, err, "Forget failed", "class", string(class), "file", p)
		}
	}

	var req build.Request
	switch {
	case j.full:
		req = build.Request{Class: class, Force: j.force}
	case len(j.paths) > 0:
		req = build.Request{Class: class, Paths: keys(j.paths), Force: j.force}
	default:
		return
	}

	if _, err := s.runner.Run(ctx, req); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error(ctx, err, "Run failed", "class", string(class))
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
