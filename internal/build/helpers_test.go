package build

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/kiln/internal/asset"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/transform"
)

// upperTransformer upper-cases content and counts calls per path.
type upperTransformer struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newUpperTransformer() *upperTransformer {
	return &upperTransformer{calls: make(map[string]int), fail: make(map[string]error)}
}

func (u *upperTransformer) Transform(_ context.Context, in asset.Asset) (*transform.Result, error) {
	u.mu.Lock()
	u.calls[in.Path]++
	err := u.fail[in.Path]
	u.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &transform.Result{Asset: asset.Asset{Path: in.Path, Content: bytes.ToUpper(in.Content)}}, nil
}

func (u *upperTransformer) setFail(path string, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err == nil {
		delete(u.fail, path)
		return
	}
	u.fail[path] = err
}

func (u *upperTransformer) count(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[path]
}

func (u *upperTransformer) total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, c := range u.calls {
		n += c
	}
	return n
}

type reloadEvent struct {
	class asset.Class
	paths []string
	runID string
}

type recordingReloader struct {
	mu     sync.Mutex
	events []reloadEvent
}

func (r *recordingReloader) Reload(_ context.Context, class asset.Class, paths []string, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, reloadEvent{class: class, paths: paths, runID: runID})
}

func (r *recordingReloader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type recordingNotifier struct {
	mu       sync.Mutex
	titles   []string
	messages []string
}

func (n *recordingNotifier) Notify(title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	n.messages = append(n.messages, message)
	return nil
}

// project is a throwaway project directory.
type project struct {
	t    *testing.T
	root string
	fs   afero.Fs
	tick int
}

func newProject(t *testing.T) *project {
	t.Helper()
	root := t.TempDir()
	return &project{t: t, root: root, fs: afero.NewBasePathFs(afero.NewOsFs(), root)}
}

func (p *project) write(path, content string) {
	p.t.Helper()
	require.NoError(p.t, p.fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(p.t, afero.WriteFile(p.fs, path, []byte(content), 0o644))
	// push the mtime forward so the signature memo never sees a stale entry
	p.tick++
	future := time.Now().Add(time.Duration(p.tick) * time.Minute)
	require.NoError(p.t, os.Chtimes(filepath.Join(p.root, path), future, future))
}

// rewriteKeepingMetadata replaces the content of path and restores its
// modification time, as coarse timestamps would.
func (p *project) rewriteKeepingMetadata(path, content string) {
	p.t.Helper()
	info, err := p.fs.Stat(path)
	require.NoError(p.t, err)
	require.Equal(p.t, info.Size(), int64(len(content)))
	require.NoError(p.t, afero.WriteFile(p.fs, path, []byte(content), 0o644))
	require.NoError(p.t, os.Chtimes(filepath.Join(p.root, path), info.ModTime(), info.ModTime()))
}

func (p *project) read(path string) string {
	p.t.Helper()
	data, err := afero.ReadFile(p.fs, path)
	require.NoError(p.t, err)
	return string(data)
}

func (p *project) exists(path string) bool {
	ok, err := afero.Exists(p.fs, path)
	return err == nil && ok
}

func (p *project) remove(path string) {
	p.t.Helper()
	require.NoError(p.t, p.fs.Remove(path))
}

type fixture struct {
	*project
	pipeline    *Pipeline
	transformer *upperTransformer
	reloader    *recordingReloader
	notifier    *recordingNotifier
}

func scriptsSpec(bundle string) asset.Spec {
	return asset.Spec{
		Class:  asset.Scripts,
		Source: "src/js/**/*.js",
		Output: "build/js",
		Watch:  "src/js/**/*.js",
		Bundle: bundle,
	}
}

func newFixture(t *testing.T, spec asset.Spec, mutate ...func(*Options)) *fixture {
	t.Helper()
	p := newProject(t)
	f := &fixture{
		project:     p,
		transformer: newUpperTransformer(),
		reloader:    &recordingReloader{},
		notifier:    &recordingNotifier{},
	}

	logger := logging.Nop()
	opts := Options{
		Fs:           p.fs,
		Specs:        []asset.Spec{spec},
		Mode:         asset.Development,
		Transformers: map[asset.Class]transform.Transformer{spec.Class: f.transformer},
		Workers:      3,
		Metrics:      NewMetrics(),
		Reloader:     f.reloader,
		Errors:       kerrors.NewErrorHandler(logger, f.notifier),
		Logger:       logger,
	}
	for _, m := range mutate {
		m(&opts)
	}

	pipeline, err := New(opts)
	require.NoError(t, err)
	f.pipeline = pipeline
	return f
}

func (f *fixture) run(req Request) *Report {
	f.t.Helper()
	report, err := f.pipeline.Run(context.Background(), req)
	require.NoError(f.t, err)
	return report
}

var errSyntax = errors.New("unexpected token")
