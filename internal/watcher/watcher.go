// Package watcher reports debounced batches of changed files below a set
// of directories.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period before a batch is delivered.
const DefaultDebounce = 500 * time.Millisecond

// ErrStarted is returned by a second Start.
var ErrStarted = errors.New("watcher already started")

// skipDirs are never descended into.
var skipDirs = map[string]bool{".git": true, "node_modules": true}

// Filter reports whether a changed path is of interest.
type Filter func(path string) bool

// Options configure a Watcher.
type Options struct {
	// Filter selects the reported paths. Nil reports every file.
	Filter Filter

	// Debounce overrides DefaultDebounce when positive.
	Debounce time.Duration

	Logger zerolog.Logger
}

// Watcher watches directory trees. Directories created later are added as
// they appear. Changes are collected until no event arrives for the
// debounce period and then delivered as one sorted batch.
//
// Batches are delivered on the watcher's goroutine, one at a time.
type Watcher struct {
	fsw      *fsnotify.Watcher
	filter   Filter
	debounce time.Duration
	logger   zerolog.Logger

	started  atomic.Bool
	paused   atomic.Bool
	resumed  chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New watches every directory below dirs. A root that cannot be read is an
// error; unreadable subdirectories are logged and skipped.
func New(dirs []string, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:      fsw,
		filter:   opts.Filter,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		resumed:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	for _, dir := range dirs {
		if err := w.addTree(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Start delivers batches to onChange until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context, onChange func(files []string)) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx, onChange)
	return nil
}

// Stop ends watching and waits for a batch in progress. It is safe to call
// more than once and before Start.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.done
		}
		err = w.fsw.Close()
	})
	return err
}

// Pause holds batches back. Changes keep being collected.
func (w *Watcher) Pause() { w.paused.Store(true) }

// Resume delivers what was collected while paused right away.
func (w *Watcher) Resume() {
	if w.paused.Swap(false) {
		select {
		case w.resumed <- struct{}{}:
		default:
		}
	}
}

func (w *Watcher) loop(ctx context.Context, onChange func([]string)) {
	defer close(w.done)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	flush := func() {
		if w.paused.Load() || len(pending) == 0 {
			return
		}
		files := make([]string, 0, len(pending))
		for f := range pending {
			files = append(files, f)
		}
		sort.Strings(files)
		clear(pending)
		onChange(files)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.accept(ev) {
				pending[ev.Name] = struct{}{}
				timer.Reset(w.debounce)
			}

		case <-timer.C:
			flush()

		case <-w.resumed:
			flush()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("file watcher error")
		}
	}
}

// accept reports whether ev names a file change worth delivering. New
// directories are added to the watch instead.
func (w *Watcher) accept(ev fsnotify.Event) bool {
	// A rename shows up as Rename on the old path and Create on the new one.
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn().Err(err).Str("dir", ev.Name).Msg("failed to watch new directory")
			}
			return false
		}
	}
	return w.filter == nil || w.filter(ev.Name)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("dir", path).Msg("failed to watch directory")
		}
		return nil
	})
}
