package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
		removal   bool
	}{
		{EventTypeCreated, "created", false},
		{EventTypeModified, "modified", false},
		{EventTypeDeleted, "deleted", true},
		{EventTypeRenamed, "renamed", true},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
			assert.Equal(t, tc.removal, tc.eventType.Removal())
		})
	}
}

func TestDebouncerDeduplicatesAndSorts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Add(ChangeEvent{Path: "src/js/b.js", Type: EventTypeModified})
	d.Add(ChangeEvent{Path: "src/js/a.js", Type: EventTypeCreated})
	d.Add(ChangeEvent{Path: "src/js/a.js", Type: EventTypeModified})
	d.Add(ChangeEvent{Path: "src/js/b.js", Type: EventTypeDeleted})

	select {
	case batch := <-d.Output():
		require.Len(t, batch, 2)
		assert.Equal(t, ChangeEvent{Path: "src/js/a.js", Type: EventTypeCreated}, batch[0])
		assert.Equal(t, ChangeEvent{Path: "src/js/b.js", Type: EventTypeDeleted}, batch[1])
	case <-time.After(2 * time.Second):
		t.Fatal("no batch flushed")
	}
}

func TestDebouncerSeparatesQuietPeriods(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Add(ChangeEvent{Path: "one"})
	first := <-d.Output()
	d.Add(ChangeEvent{Path: "two"})
	second := <-d.Output()

	assert.Equal(t, "one", first[0].Path)
	assert.Equal(t, "two", second[0].Path)
}

func TestFilters(t *testing.T) {
	ignore := IgnoreDirs("build", "./.kiln/", "")

	testCases := []struct {
		path   string
		accept bool
	}{
		{"src/js/app.js", true},
		{"build", false},
		{"build/js/app.js", false},
		{"builder/app.js", true},
		{".kiln/cache.db", false},
		{".git/HEAD", false},
		{"src/.git/config", false},
		{"src/js/.app.js.swp", false},
		{"src/js/app.js~", false},
		{"src/.#index.gohtml", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			got := ignore(tc.path) && NoGitFilter(tc.path) && NoEditorFilter(tc.path)
			assert.Equal(t, tc.accept, got)
		})
	}
}

func TestAddRecursiveRejectsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	fw, err := NewFileWatcher(root, 10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.AddRecursive("../"))
	assert.Error(t, fw.AddRecursive(filepath.Dir(root)))
}

func waitFor(t *testing.T, fw *FileWatcher, match func(ChangeEvent) bool) ChangeEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch := <-fw.Events():
			for _, e := range batch {
				if match(e) {
					return e
				}
			}
		case <-deadline:
			t.Fatal("expected event not received")
			return ChangeEvent{}
		}
	}
}

func TestFileWatcherReportsRelativePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "js"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "build"), 0o755))

	fw, err := NewFileWatcher(root, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()
	fw.AddFilter(IgnoreDirs("build"))
	require.NoError(t, fw.AddRecursive("."))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "build", "ignored.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "js", "app.js"), []byte("let a = 1;"), 0o644))

	event := waitFor(t, fw, func(e ChangeEvent) bool { return e.Path != "" })
	assert.Equal(t, "src/js/app.js", event.Path)
	assert.False(t, event.Type.Removal())

	require.NoError(t, os.Remove(filepath.Join(root, "src", "js", "app.js")))
	event = waitFor(t, fw, func(e ChangeEvent) bool { return e.Path == "src/js/app.js" })
	assert.Equal(t, EventTypeDeleted, event.Type)
}

func TestFileWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()

	fw, err := NewFileWatcher(root, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()
	require.NoError(t, fw.AddRecursive("."))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	dir := filepath.Join(root, "src", "img")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.svg"), []byte("<svg/>"), 0o644))

	event := waitFor(t, fw, func(e ChangeEvent) bool { return e.Path == "src/img/logo.svg" })
	assert.Equal(t, EventTypeCreated, event.Type)
}
