package scheduler

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/kiln/internal/asset"
	"github.com/conneroisu/kiln/internal/build"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/notify"
	"github.com/conneroisu/kiln/internal/testutils"
	"github.com/conneroisu/kiln/internal/transform"
	"github.com/conneroisu/kiln/internal/watcher"
)

// upper upper-cases content and fails for files containing "ERROR".
type upper struct {
	mu    sync.Mutex
	calls int
}

func (u *upper) Transform(_ context.Context, in asset.Asset) (*transform.Result, error) {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()
	if bytes.Contains(in.Content, []byte("ERROR")) {
		return nil, kerrors.ErrTransformFailed("", in.Path, errors.New("unexpected token"))
	}
	return &transform.Result{Asset: asset.Asset{Path: in.Path, Content: bytes.ToUpper(in.Content)}}, nil
}

func (u *upper) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

type setup struct {
	project  *testutils.Project
	pipeline *build.Pipeline
	sched    *Scheduler
	upper    *upper
	notes    *notify.Recorder
}

func newSetup(t *testing.T) *setup {
	project := testutils.CreateTempProject(t)
	cfg := project.Config()
	u := &upper{}
	notes := &notify.Recorder{}

	transformers := make(map[asset.Class]transform.Transformer)
	for _, class := range asset.Classes() {
		transformers[class] = u
	}

	p, err := build.New(build.Options{
		Fs:           project.Fs,
		Specs:        cfg.Specs(),
		Mode:         cfg.AssetMode(),
		Transformers: transformers,
		Workers:      2,
		Errors:       kerrors.NewErrorHandler(logging.Nop(), notes),
	})
	require.NoError(t, err)

	project.Write("src/index.gohtml", "<p>index</p>")
	project.Write("src/scss/core/style.scss", "body { color: red }")
	project.Write("src/js/a.js", "let a")
	project.Write("src/js/b.js", "let b")
	project.Write("src/img/logo.svg", "<svg/>")
	project.Write("src/fonts/a.woff", "font")

	return &setup{project: project, pipeline: p, sched: New(p, nil), upper: u, notes: notes}
}

func TestStylesFailureDoesNotStopOtherClasses(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()

	_, err := s.sched.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BODY { COLOR: RED }", s.project.Read("build/css/style.scss"))

	s.project.Write("src/scss/core/style.scss", "body { ERROR")
	s.project.Write("src/js/a.js", "let aa")

	reports, err := s.sched.Build(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 5)

	byClass := make(map[asset.Class]*build.Report)
	for _, r := range reports {
		byClass[r.Class] = r
	}
	assert.Len(t, byClass[asset.Styles].Failures, 1)
	assert.Equal(t, []string{"src/js/a.js"}, byClass[asset.Scripts].Transformed)
	for _, class := range []asset.Class{asset.Markup, asset.Images, asset.Fonts} {
		assert.Empty(t, byClass[class].Failures, class)
		assert.Empty(t, byClass[class].Transformed, class)
	}

	notes := s.notes.Received()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Message, "src/scss/core/style.scss")
	assert.Equal(t, "BODY { COLOR: RED }", s.project.Read("build/css/style.scss"))
	assert.Equal(t, "LET AA", s.project.Read("build/js/a.js"))
}

func TestSecondBuildTransformsNothing(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()

	_, err := s.sched.Build(ctx)
	require.NoError(t, err)
	first := s.upper.count()
	assert.Equal(t, 6, first)
	before := s.project.Read("build/index.gohtml")

	reports, err := s.sched.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, s.upper.count())
	for _, r := range reports {
		assert.Empty(t, r.Transformed)
		assert.False(t, r.Changed())
	}
	assert.Equal(t, before, s.project.Read("build/index.gohtml"))
}

func TestWatchDeleteThenRebuild(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()

	_, err := s.sched.Build(ctx)
	require.NoError(t, err)
	require.True(t, s.project.Exists("build/js/b.js"))

	s.project.Remove("src/js/b.js")
	watchBatches(t, s.sched, []watcher.ChangeEvent{deleted("src/js/b.js")})

	assert.False(t, s.project.Exists("build/js/b.js"))
	assert.Equal(t, []string{"src/js/a.js"}, s.pipeline.Memory().Paths(asset.Scripts))

	calls := s.upper.count()
	_, err = s.sched.BuildClass(ctx, asset.Scripts)
	require.NoError(t, err)
	assert.Equal(t, calls, s.upper.count())
	assert.False(t, s.project.Exists("build/js/b.js"))
}

func TestWatchModifyRetransformsOnlyChangedFile(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()

	_, err := s.sched.Build(ctx)
	require.NoError(t, err)
	calls := s.upper.count()

	s.project.Write("src/js/b.js", "let bb")
	watchBatches(t, s.sched, []watcher.ChangeEvent{modified("src/js/b.js")})

	assert.Equal(t, calls+1, s.upper.count())
	assert.Equal(t, "LET BB", s.project.Read("build/js/b.js"))

	last, ok := s.pipeline.Last(asset.Scripts)
	require.True(t, ok)
	assert.Equal(t, []string{"src/js/b.js"}, last.Transformed)
	assert.Equal(t, StateIdle, s.sched.Status()[2].State)
	assert.Same(t, last, s.sched.Status()[2].Last)
}
