// Package watcher turns fsnotify events below the project root into
// debounced batches of project-relative change events.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/kiln/internal/logging"
)

// FileWatcher watches for file changes with debouncing
type FileWatcher struct {
	root      string
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	logger    logging.Logger
	mutex     sync.RWMutex
}

// ChangeEvent represents a file change event. Path is relative to the
// project root and uses forward slashes.
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Removal reports whether the path no longer exists under its old name.
func (e EventType) Removal() bool {
	return e == EventTypeDeleted || e == EventTypeRenamed
}

// FileFilter decides whether a project-relative path is reported.
type FileFilter func(path string) bool

// NewFileWatcher creates a watcher for the project rooted at root.
func NewFileWatcher(root string, debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FileWatcher{
		root:      abs,
		watcher:   watcher,
		debouncer: NewDebouncer(debounceDelay),
		logger:    logger.WithComponent("watcher"),
	}, nil
}

// AddFilter adds a file filter. Every filter must accept a path for its
// events to be reported.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddRecursive watches dir, relative to the root, and all its subdirectories.
func (fw *FileWatcher) AddRecursive(dir string) error {
	abs, err := fw.abs(dir)
	if err != nil {
		return err
	}
	return fw.addTree(abs, nil)
}

// addTree registers every directory below abs. When created is non-nil the
// files found are appended as created events.
func (fw *FileWatcher) addTree(abs string, created *[]ChangeEvent) error {
	return filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := fw.rel(p)
		if relErr != nil {
			return relErr
		}
		if !fw.accept(rel) && rel != "." {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return fw.watcher.Add(p)
		}
		if created != nil {
			if info, err := d.Info(); err == nil {
				*created = append(*created, ChangeEvent{Type: EventTypeCreated, Path: rel, ModTime: info.ModTime(), Size: info.Size()})
			}
		}
		return nil
	})
}

// abs resolves a root-relative path and rejects anything outside the root.
func (fw *FileWatcher) abs(p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(fw.root, p)
	}
	p = filepath.Clean(p)
	if _, err := fw.rel(p); err != nil {
		return "", err
	}
	return p, nil
}

func (fw *FileWatcher) rel(abs string) (string, error) {
	rel, err := filepath.Rel(fw.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s is outside %s", abs, fw.root)
	}
	return rel, nil
}

func (fw *FileWatcher) accept(rel string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	for _, filter := range fw.filters {
		if !filter(rel) {
			return false
		}
	}
	return true
}

// Events returns the channel of debounced batches.
func (fw *FileWatcher) Events() <-chan []ChangeEvent {
	return fw.debouncer.Output()
}

// Start starts the file watcher. It returns immediately; the watcher stops
// when ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.Run(ctx)
	go fw.watchLoop(ctx)
	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	fw.debouncer.Stop()
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	rel, err := fw.rel(event.Name)
	if err != nil || !fw.accept(rel) {
		return
	}

	var eventType EventType
	switch {
	case event.Op.Has(fsnotify.Create):
		eventType = EventTypeCreated
	case event.Op.Has(fsnotify.Write):
		eventType = EventTypeModified
	case event.Op.Has(fsnotify.Remove):
		eventType = EventTypeDeleted
	case event.Op.Has(fsnotify.Rename):
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	info, statErr := os.Stat(event.Name)
	if statErr == nil && info.IsDir() {
		if eventType == EventTypeCreated {
			var created []ChangeEvent
			if err := fw.addTree(event.Name, &created); err != nil {
				fw.logger.Warn(ctx, err, "Cannot watch new directory", "path", rel)
			}
			for _, c := range created {
				fw.debouncer.Add(c)
			}
		}
		return
	}

	changeEvent := ChangeEvent{Type: eventType, Path: rel}
	if statErr == nil {
		changeEvent.ModTime = info.ModTime()
		changeEvent.Size = info.Size()
	}
	fw.debouncer.Add(changeEvent)
}

// NoGitFilter drops paths inside .git.
func NoGitFilter(p string) bool {
	return p != ".git" && !strings.HasPrefix(p, ".git/") && !strings.Contains(p, "/.git/")
}

// NoEditorFilter drops editor swap and backup files.
func NoEditorFilter(p string) bool {
	base := path.Base(p)
	return !strings.HasSuffix(base, "~") &&
		!strings.HasSuffix(base, ".swp") &&
		!strings.HasSuffix(base, ".swx") &&
		!strings.HasPrefix(base, ".#")
}

// IgnoreDirs drops paths inside any of dirs, typically the output root, so
// that writing outputs never feeds back into the watcher.
func IgnoreDirs(dirs ...string) FileFilter {
	clean := make([]string, 0, len(dirs))
	for _, d := range dirs {
		d = path.Clean(filepath.ToSlash(d))
		if d != "." && d != "" {
			clean = append(clean, d)
		}
	}
	return func(p string) bool {
		for _, d := range clean {
			if p == d || strings.HasPrefix(p, d+"/") {
				return false
			}
		}
		return true
	}
}
