// Package watch re-runs a build whenever files under the project root
// change. Events are filtered by glob, bursts are debounced, and runs never
// overlap: a change during a run schedules exactly one follow-up run.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
)

// DefaultDebounce is the quiet period used when Options.Debounce is unset.
const DefaultDebounce = 200 * time.Millisecond

// skipDirs are never watched.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
}

// Options configures what is watched.
type Options struct {
	// Root is the directory watched recursively. Patterns are relative to it.
	Root string
	// Paths are doublestar patterns; a change must match at least one.
	Paths []string
	// Ignore are doublestar patterns; a matching change is dropped.
	Ignore   []string
	Debounce time.Duration
}

// RunFunc performs one build. A returned error is logged and watching
// continues.
type RunFunc func(ctx context.Context) error

// Watcher watches a directory tree with fsnotify.
type Watcher struct {
	opts Options
	fsw  *fsnotify.Watcher
}

// New validates the options and registers every directory under the root.
func New(ctx context.Context, opts Options) (*Watcher, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}
	w := &Watcher{opts: opts, fsw: fsw}
	if err := w.addTree(ctx, opts.Root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run dispatches file events to run until ctx is cancelled. It closes the
// underlying watcher before returning.
func (w *Watcher) Run(ctx context.Context, run RunFunc) error {
	logger := ctxlog.FromContext(ctx)
	defer w.fsw.Close()

	paths := make(chan string)
	go func() {
		defer close(paths)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						if err := w.addTree(ctx, ev.Name); err != nil {
							logger.Warn("Could not watch new directory.", "path", ev.Name, "error", err)
						}
					}
				}
				if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
					continue
				}
				select {
				case paths <- ev.Name:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				logger.Warn("File watcher error.", "error", err)
			}
		}
	}()

	return Loop(ctx, w.opts, paths, run)
}

// addTree registers dir and all of its subdirectories.
func (w *Watcher) addTree(ctx context.Context, dir string) error {
	logger := ctxlog.FromContext(ctx)
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.opts.Root && (skipDirs[d.Name()] || matchAny(w.opts.Ignore, w.opts.rel(path))) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("could not watch '%s': %w", path, err)
		}
		logger.Debug("Watching directory.", "path", path)
		return nil
	})
}

// Loop runs the debounce and scheduling logic over a stream of changed
// paths. It returns nil when ctx is cancelled or the stream ends, after any
// in-flight run has finished.
func Loop(ctx context.Context, opts Options, changes <-chan string, run RunFunc) error {
	logger := ctxlog.FromContext(ctx)
	if err := opts.validate(); err != nil {
		return err
	}

	interval := opts.Debounce
	if interval <= 0 {
		interval = DefaultDebounce
	}
	debounced := debounce.New(interval)

	trigger := make(chan struct{}, 1)
	fire := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	done := make(chan error, 1)
	running, pending := false, false
	start := func() {
		running = true
		go func() { done <- run(ctx) }()
	}
	finish := func(err error) {
		running = false
		switch {
		case err == nil:
			logger.Info("👀 Waiting for changes...")
		case ctx.Err() != nil:
		default:
			logger.Error("Watch run failed, waiting for changes.", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if running {
				finish(<-done)
			}
			return nil

		case path, ok := <-changes:
			if !ok {
				if running {
					finish(<-done)
				}
				return nil
			}
			if !opts.Match(path) {
				continue
			}
			logger.Debug("Change detected.", "path", opts.rel(path))
			debounced(fire)

		case <-trigger:
			if running {
				pending = true
				continue
			}
			start()

		case err := <-done:
			finish(err)
			if pending && ctx.Err() == nil {
				pending = false
				start()
			}
		}
	}
}

// Match reports whether a changed path passes the Paths and Ignore filters.
// Absolute paths are made relative to Root first.
func (o Options) Match(path string) bool {
	rel := o.rel(path)
	if rel == "" {
		return false
	}
	return matchAny(o.Paths, rel) && !matchAny(o.Ignore, rel)
}

func (o Options) rel(path string) string {
	if filepath.IsAbs(path) && o.Root != "" {
		root, err := filepath.Abs(o.Root)
		if err == nil {
			if r, err := filepath.Rel(root, path); err == nil {
				path = r
			}
		}
	} else if o.Root != "" {
		if r, err := filepath.Rel(o.Root, path); err == nil {
			path = r
		}
	}
	path = filepath.ToSlash(path)
	if path == "." {
		return ""
	}
	return path
}

func (o Options) validate() error {
	if len(o.Paths) == 0 {
		return fmt.Errorf("watch needs at least one path pattern")
	}
	for _, p := range append(append([]string(nil), o.Paths...), o.Ignore...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid watch pattern '%s'", p)
		}
	}
	return nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
