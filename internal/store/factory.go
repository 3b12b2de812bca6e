package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxCachedTables bounds the number of open Table handles kept warm
// per VectorStore (config key vector.max_cached_tables).
const DefaultMaxCachedTables = 16

// DefaultIndexCacheSizeBytes is the default for the config key
// vector.index_cache_size_bytes. The store keeps this value but does not
// enforce it: no table or index is evicted by byte size.
const DefaultIndexCacheSizeBytes = 512 * 1024 * 1024

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*fileVectorStore)
)

// Get returns the process-wide VectorStore singleton for path, constructing
// it on first call and returning the already-open handle on every
// subsequent call. This is the only construction path; any other way of
// opening the same storage path is a bug. Two processes opening the same
// path race on a cross-process advisory file lock; the loser fails fast
// with a conflict error instead of corrupting shared state.
func Get(path string, maxCachedTables int, indexCacheSizeBytes int64) (VectorStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path: %w", err)
	}

	registryMu.RLock()
	if vs, ok := registry[abs]; ok {
		registryMu.RUnlock()
		return vs, nil
	}
	registryMu.RUnlock()

	registryMu.Lock()
	defer registryMu.Unlock()

	if vs, ok := registry[abs]; ok {
		return vs, nil
	}

	vs, err := newFileVectorStore(abs, maxCachedTables, indexCacheSizeBytes)
	if err != nil {
		return nil, err
	}
	registry[abs] = vs
	return vs, nil
}

// releaseForTest removes path's singleton from the registry so tests can
// open a fresh handle against the same directory. Not exported: production
// callers must never bypass the single-factory discipline.
func releaseForTest(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, abs)
}

// processLock is the cross-process advisory lock guarding a storage path
// (gofrs/flock, Lock/TryLock/Unlock).
type processLock struct {
	path   string
	fl     *flock.Flock
	locked bool
}

func newProcessLock(dir string) *processLock {
	lockPath := filepath.Join(dir, ".routecore.lock")
	return &processLock{path: lockPath, fl: flock.New(lockPath)}
}

func (p *processLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := p.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire storage lock: %w", err)
	}
	if ok {
		p.locked = true
	}
	return ok, nil
}

func (p *processLock) Unlock() error {
	if !p.locked {
		return nil
	}
	if err := p.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release storage lock: %w", err)
	}
	p.locked = false
	return nil
}

// fileVectorStore is the concrete VectorStore: a scalar row store shared by
// all tables, a bounded LRU of open Table handles, and a second LRU, bounded
// by entry count (max_cached_tables), that records each table's approximate
// ANN index footprint when the table is opened. indexByteBudget holds
// index_cache_size_bytes but nothing reads it, so there is no eviction by
// byte size.
type fileVectorStore struct {
	mu   sync.Mutex
	path string
	lock *processLock

	scalar *ScalarStore

	tables         *lru.Cache[string, *fileTable]
	indexBytes     *lru.Cache[string, int64]
	indexByteBudget int64
	closed         bool
}

func newFileVectorStore(path string, maxCachedTables int, indexCacheSizeBytes int64) (*fileVectorStore, error) {
	if maxCachedTables <= 0 {
		maxCachedTables = DefaultMaxCachedTables
	}
	if indexCacheSizeBytes <= 0 {
		indexCacheSizeBytes = DefaultIndexCacheSizeBytes
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage path %s: %w", path, err)
	}

	lock := newProcessLock(path)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("storage path %s is locked by another process", path)
	}

	scalarPath := filepath.Join(path, "scalar.db")
	scalar, err := NewScalarStore(scalarPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	vs := &fileVectorStore{
		path:            path,
		lock:            lock,
		scalar:          scalar,
		indexByteBudget: indexCacheSizeBytes,
	}

	tables, err := lru.NewWithEvict[string, *fileTable](maxCachedTables, vs.onTableEvicted)
	if err != nil {
		_ = scalar.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to create table cache: %w", err)
	}
	vs.tables = tables

	indexBytes, err := lru.New[string, int64](maxCachedTables)
	if err != nil {
		_ = scalar.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to create index byte tracker: %w", err)
	}
	vs.indexBytes = indexBytes

	return vs, nil
}

// onTableEvicted flushes an evicted table's ANN graph to disk so the
// bounded open-table cache never silently loses writes.
func (vs *fileVectorStore) onTableEvicted(name string, t *fileTable) {
	if t == nil {
		return
	}
	_ = t.ann.Save(t.annPath())
}

func (vs *fileVectorStore) OpenOrCreate(ctx context.Context, table string, schema Schema, dimension int, initial *Batch) (Table, OpenResult, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.closed {
		return nil, OpenResult{}, fmt.Errorf("vector store is closed")
	}

	if t, ok := vs.tables.Get(table); ok {
		if t.Dimension() != dimension {
			return nil, OpenResult{}, ErrDimensionMismatch{Expected: t.Dimension(), Got: dimension}
		}
		if initial != nil && len(initial.Rows) > 0 {
			if err := t.Upsert(ctx, initial); err != nil {
				return nil, OpenResult{}, err
			}
		}
		return t, OpenResult{Created: false}, nil
	}

	created, err := vs.scalar.EnsureTable(ctx, table, schema)
	if err != nil {
		return nil, OpenResult{}, err
	}

	t, err := openFileTable(vs, table, schema, dimension)
	if err != nil {
		return nil, OpenResult{}, err
	}

	vs.tables.Add(table, t)
	vs.indexBytes.Add(table, int64(t.ann.Count())*int64(dimension)*4)

	if initial != nil && len(initial.Rows) > 0 {
		if err := t.Upsert(ctx, initial); err != nil {
			return nil, OpenResult{}, err
		}
	}

	return t, OpenResult{Created: created}, nil
}

func (vs *fileVectorStore) Table(name string) (Table, bool) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	t, ok := vs.tables.Get(name)
	if !ok {
		return nil, false
	}
	return t, true
}

func (vs *fileVectorStore) Close() error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.closed {
		return nil
	}
	vs.closed = true

	for _, name := range vs.tables.Keys() {
		if t, ok := vs.tables.Peek(name); ok {
			_ = t.ann.Save(t.annPath())
			_ = t.Close()
		}
	}

	var firstErr error
	if err := vs.scalar.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := vs.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}

	releaseForTest(vs.path)
	return firstErr
}
