// Package watch implements the optional live reindex/ingest path:
// fsnotify on a skill-manifest or knowledge document directory, debounced
// into coalesced batches the orchestrator turns into Reindex/Ingest
// calls. Single fsnotify backend only; a polling fallback for platforms
// without inotify/kqueue/ReadDirectoryChangesW isn't worth the added
// complexity for routecore's server deployment targets.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow is the default coalescing window.
const DefaultDebounceWindow = 200 * time.Millisecond

// Watcher recursively watches a root directory and emits debounced change
// batches.
type Watcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	errs      chan error
	root      string
}

// New builds a Watcher over root, registering fsnotify watches on every
// subdirectory found at construction time. window<=0 uses
// DefaultDebounceWindow.
func New(root string, window time.Duration) (*Watcher, error) {
	if window <= 0 {
		window = DefaultDebounceWindow
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	w := &Watcher{
		fsw:       fsw,
		debouncer: NewDebouncer(window),
		errs:      make(chan error, 10),
		root:      root,
	}

	if err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	}); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to register watches under %s: %w", root, err)
	}

	return w, nil
}

// Run drains fsnotify events into the debouncer until ctx is cancelled or
// Stop is called. Intended to run in its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.debouncer.Add(ev.Name, operationFor(ev.Op))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

// Events returns the channel of coalesced change batches.
func (w *Watcher) Events() <-chan []Event {
	return w.debouncer.Output()
}

// Errors returns the channel of non-fatal watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Stop releases the underlying fsnotify watcher and the debouncer.
func (w *Watcher) Stop() error {
	w.debouncer.Stop()
	return w.fsw.Close()
}

func operationFor(op fsnotify.Op) Operation {
	switch {
	case op&fsnotify.Remove != 0 || op&fsnotify.Rename != 0:
		return OpDelete
	case op&fsnotify.Create != 0:
		return OpCreate
	default:
		return OpModify
	}
}
