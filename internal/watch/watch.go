// Package watch delivers filesystem change events for a project root.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/mattjoyce/tilegw/internal/log"
)

// Op is the kind of change observed.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpRename Op = "rename"
	OpChmod  Op = "chmod"
)

// Change is one observed change. Name is relative to the watched root.
type Change struct {
	Op   Op
	Name string
}

// Source starts watching root and calls fn for each change until ctx ends.
// fn is called from a single goroutine and must not block.
type Source interface {
	Start(ctx context.Context, root string, fn func(Change)) error
}

// FS is a Source backed by fsnotify. The root and every visible
// subdirectory are watched, including directories created later.
type FS struct {
	logger *slog.Logger
	ignore []string
}

// FSOption configures an FS.
type FSOption func(*FS)

// WithIgnore drops changes to each path, to anything below it, and to
// siblings that extend its name with a '-' suffix (SQLite keeps its -wal,
// -shm and -journal files next to the database).
func WithIgnore(paths ...string) FSOption {
	return func(f *FS) {
		for _, p := range paths {
			if p == "" {
				continue
			}
			if abs, err := filepath.Abs(p); err == nil {
				p = abs
			}
			f.ignore = append(f.ignore, filepath.Clean(p))
		}
	}
}

// NewFS returns an fsnotify backed Source.
func NewFS(opts ...FSOption) *FS {
	f := &FS{logger: log.WithComponent("watch")}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ignored reports whether path matches a WithIgnore entry.
func (f *FS) ignored(path string) bool {
	if len(f.ignore) == 0 {
		return false
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	for _, ig := range f.ignore {
		if path == ig ||
			strings.HasPrefix(path, ig+string(filepath.Separator)) ||
			strings.HasPrefix(path, ig+"-") {
			return true
		}
	}
	return false
}

// Start registers the watcher. It returns once the watcher is active; events
// are delivered in the background.
func (f *FS) Start(ctx context.Context, root string, fn func(Change)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := f.addTree(watcher, root, root); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %q: %w", root, err)
	}
	go f.run(ctx, root, watcher, fn)
	return nil
}

func (f *FS) run(ctx context.Context, root string, watcher *fsnotify.Watcher, fn func(Change)) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if f.ignored(ev.Name) {
				continue
			}
			c, ok := toChange(root, ev)
			if !ok {
				continue
			}
			if c.Op == OpCreate {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := f.addTree(watcher, root, ev.Name); err != nil {
						f.logger.Warn("watch new directory", "root", root, "dir", c.Name, "error", err)
					}
				}
			}
			fn(c)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("watcher error", "root", root, "error", err)
		}
	}
}

// addTree adds dir and its visible, non-ignored subdirectories to watcher.
func (f *FS) addTree(watcher *fsnotify.Watcher, root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			if rel, _ := filepath.Rel(root, path); IsHidden(rel) || f.ignored(path) {
				return filepath.SkipDir
			}
		}
		return watcher.Add(path)
	})
}

func toChange(root string, ev fsnotify.Event) (Change, bool) {
	name, err := filepath.Rel(root, ev.Name)
	if err != nil {
		name = filepath.Base(ev.Name)
	}
	// "." is the root itself being removed or renamed.
	if name == "." || IsHidden(name) {
		return Change{}, false
	}
	var op Op
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpWrite
	case ev.Has(fsnotify.Remove):
		op = OpRemove
	case ev.Has(fsnotify.Rename):
		op = OpRename
	case ev.Has(fsnotify.Chmod):
		op = OpChmod
	default:
		return Change{}, false
	}
	return Change{Op: op, Name: name}, true
}

// IsHidden reports whether any element of a slash or OS separated path
// starts with a dot.
func IsHidden(name string) bool {
	for _, part := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	}) {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
