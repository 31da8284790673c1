package input

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Files tracks the input files of one job. States are keyed by inode and
// persisted to the registry file, so a renamed file is not converted twice.
type Files struct {
	dirty   atomic.Bool
	mu      sync.Mutex
	path    string
	pattern string
	States  map[uint64]*FileState `json:"states"`
	ch      chan *FileState
	log     *slog.Logger
	settle  time.Duration
}

// DefaultSettle is how long a watched file must stay unmodified before it is
// queued.
const DefaultSettle = 500 * time.Millisecond

type Option func(*Files)

// WithSettle sets the quiet period after the last create or write event of a
// file before it is queued.
func WithSettle(d time.Duration) Option {
	return func(r *Files) {
		if d > 0 {
			r.settle = d
		}
	}
}

// NewFiles loads the registry at registryPath, scans the directory of
// pattern for matching files and starts watching it for new ones. Files that
// are not yet done are delivered on List until ctx is cancelled. A watched
// file is delivered once it has not been written for the settle period, and
// again whenever it changes afterwards.
func NewFiles(ctx context.Context, registryPath, pattern string, log *slog.Logger, opts ...Option) (*Files, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, errors.Wrapf(err, "invalid input pattern %q", pattern)
	}
	r := &Files{
		States:  make(map[uint64]*FileState),
		path:    registryPath,
		pattern: pattern,
		ch:      make(chan *FileState, 1),
		log:     log,
		settle:  DefaultSettle,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if data, err := os.ReadFile(r.path); err == nil {
		if err := json.Unmarshal(data, r); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal registry")
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to read registry file")
	}
	if r.States == nil {
		r.States = make(map[uint64]*FileState)
	}

	dir := filepath.Dir(pattern)
	if err := r.scanFiles(); err != nil {
		return nil, errors.Wrap(err, "failed to scan input files")
	}
	if err := r.Save(); err != nil {
		return nil, errors.Wrap(err, "failed to save registry")
	}
	if err := r.watchDirectory(ctx, dir); err != nil {
		return nil, errors.Wrap(err, "failed to start watching directory")
	}
	return r, nil
}

// List delivers files waiting for conversion. It is closed when the watch
// context is cancelled.
func (r *Files) List() <-chan *FileState {
	return r.ch
}

func (r *Files) SetDirty() {
	r.dirty.Store(true)
}

// Save writes the registry if it changed. The file is replaced atomically.
func (r *Files) Save() error {
	if !r.dirty.Load() {
		return nil
	}
	r.mu.Lock()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "failed to marshal registry")
	}
	tempFile := r.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write registry file")
	}
	if err := os.Rename(tempFile, r.path); err != nil {
		return errors.Wrap(err, "failed to rename registry file")
	}
	r.dirty.Store(false)
	return nil
}

// Complete records the outcome of converting state. A file is marked done
// only when the conversion succeeded.
func (r *Files) Complete(state *FileState, offset int64, output string, ok bool) {
	r.mu.Lock()
	state.Offset = offset
	state.Output = output
	state.Done = ok
	r.mu.Unlock()
	r.SetDirty()
}

// Pending returns the tracked files that are not done yet.
func (r *Files) Pending() []*FileState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*FileState
	for _, state := range r.States {
		if !state.Done {
			pending = append(pending, state)
		}
	}
	return pending
}

func (r *Files) match(path string) bool {
	ok, _ := filepath.Match(filepath.Base(r.pattern), filepath.Base(path))
	return ok
}

// scanFiles replaces the states with the files currently matching the
// pattern, keeping the progress recorded for files seen before.
func (r *Files) scanFiles() error {
	paths, err := filepath.Glob(r.pattern)
	if err != nil {
		return err
	}
	states := make(map[uint64]*FileState)
	for _, path := range paths {
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		state, err := NewFileState(path)
		if err != nil {
			continue
		}
		states[state.Inode] = state
	}

	r.mu.Lock()
	for inode, state := range states {
		if old := r.States[inode]; old != nil && old.Size == state.Size {
			state.Offset = old.Offset
			state.Done = old.Done
			state.Output = old.Output
		}
	}
	r.States = states
	r.mu.Unlock()
	r.SetDirty()
	return nil
}

// addFile registers a file and reports whether it needs converting: it is new,
// or its content changed since it was last seen.
func (r *Files) addFile(state *FileState) (*FileState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.States[state.Inode]
	if old == nil {
		r.States[state.Inode] = state
		r.SetDirty()
		return state, true
	}
	changed := old.Size != state.Size || !old.Modified.Equal(state.Modified)
	old.Path = state.Path
	old.Size = state.Size
	old.Modified = state.Modified
	if !changed {
		return old, false
	}
	old.Done = false
	old.Offset = 0
	old.Output = ""
	r.SetDirty()
	return old, true
}

func (r *Files) send(ctx context.Context, state *FileState) bool {
	select {
	case r.ch <- state:
		return true
	case <-ctx.Done():
		return false
	}
}

// queue delivers path if it is new or changed. It returns false once ctx is
// done.
func (r *Files) queue(ctx context.Context, path string) bool {
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		if err != nil && !os.IsNotExist(err) {
			r.log.Warn("failed to stat input file", "path", path, "error", err)
		}
		return true
	}
	state, err := NewFileState(path)
	if err != nil {
		r.log.Warn("failed to stat input file", "path", path, "error", err)
		return true
	}
	state, ok := r.addFile(state)
	if !ok {
		return true
	}
	return r.send(ctx, state)
}

func (r *Files) watchDirectory(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return errors.Wrap(err, "failed to watch directory")
	}
	pending := r.Pending()
	go func() {
		defer close(r.ch)
		defer watcher.Close()
		for _, state := range pending {
			if !r.send(ctx, state) {
				return
			}
		}
		ticker := time.NewTicker(r.settle / 2)
		defer ticker.Stop()
		// last write seen per path, waiting for the file to settle
		writing := make(map[string]time.Time)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !(event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) || !r.match(event.Name) {
					continue
				}
				writing[event.Name] = time.Now()
			case <-ticker.C:
				for path, last := range writing {
					if time.Since(last) < r.settle {
						continue
					}
					delete(writing, path)
					if !r.queue(ctx, path) {
						return
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.log.Warn("watcher error", "error", err)
			}
		}
	}()
	return nil
}
