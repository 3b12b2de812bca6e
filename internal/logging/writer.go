package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// RotatingWriter is an io.Writer over a single log file that rotates to
// path.1, path.2, ... once it crosses maxSize, keeping at most maxFiles
// rotated generations. `routecore logs -f` tails path directly, so writes
// sync to disk immediately unless SetImmediateSync(false) is called.
type RotatingWriter struct {
	path     string
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	written int64
	syncNow bool
}

// NewRotatingWriter opens (or creates) path for append, sized at maxSizeMB
// megabytes per generation, keeping maxFiles rotated generations beyond it.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	w := &RotatingWriter{
		path:     path,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxFiles: maxFiles,
		syncNow:  true,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := w.openCurrent(); err != nil {
		return nil, err
	}
	return w, nil
}

// SetImmediateSync toggles a disk Sync after every Write. Off trades
// `logs -f` real-time visibility for throughput under heavy logging.
func (w *RotatingWriter) SetImmediateSync(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.syncNow = enabled
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err = w.file.Write(p)
	w.written += int64(n)
	if w.syncNow && err == nil {
		_ = w.file.Sync()
	}
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *RotatingWriter) openCurrent() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.written = info.Size()
	return nil
}

// rotate closes the current file, shifts path.N -> path.N+1 for every
// existing generation (dropping anything that would fall off the end of
// maxFiles), then reopens a fresh path.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		w.file = nil
	}

	generations, err := listRotatedGenerations(w.path)
	if err != nil {
		return fmt.Errorf("failed to find rotated files: %w", err)
	}
	shiftRotatedGenerations(generations, w.maxFiles)

	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.path+".1"); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	w.written = 0
	return w.openCurrent()
}

// rotatedGeneration is one path.N rotated log file.
type rotatedGeneration struct {
	path string
	n    int
}

// listRotatedGenerations finds every path.N alongside path, sorted with the
// highest (oldest) generation first so callers can shift from the back.
func listRotatedGenerations(path string) ([]rotatedGeneration, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	matches, err := filepath.Glob(filepath.Join(dir, base+".*"))
	if err != nil {
		return nil, err
	}

	generations := make([]rotatedGeneration, 0, len(matches))
	for _, m := range matches {
		suffix := strings.TrimPrefix(filepath.Base(m), base+".")
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue // not one of ours
		}
		generations = append(generations, rotatedGeneration{path: m, n: n})
	}
	sort.Slice(generations, func(i, j int) bool { return generations[i].n > generations[j].n })
	return generations, nil
}

// shiftRotatedGenerations deletes any generation at or past maxFiles, then
// renames the rest up by one (path.N -> path.N+1), processed oldest-first
// so no rename overwrites a generation still pending its own shift.
func shiftRotatedGenerations(generations []rotatedGeneration, maxFiles int) {
	for _, g := range generations {
		if g.n >= maxFiles {
			_ = os.Remove(g.path)
		}
	}
	for _, g := range generations {
		if g.n < maxFiles {
			dir := filepath.Dir(g.path)
			base := strings.TrimSuffix(filepath.Base(g.path), fmt.Sprintf(".%d", g.n))
			newPath := filepath.Join(dir, fmt.Sprintf("%s.%d", base, g.n+1))
			_ = os.Rename(g.path, newPath)
		}
	}
}
