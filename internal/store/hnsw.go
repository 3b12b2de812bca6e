package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW tuning constants. coder/hnsw exposes M (max connections per layer),
// EfSearch (query-time search width), and Ml (level generation factor,
// conventionally 1/ln(M)); it has no separate build-time search width to
// wire a construction-time knob into.
const (
	hnswDefaultM        = 32
	hnswDefaultEfSearch = 64
	hnswLevelFactor     = 0.25
)

// graphIndex is one table's ANN half: an in-memory HNSW graph
// (github.com/coder/hnsw) with a string<->uint64 id layer on top, since
// coder/hnsw keys nodes by uint64 and routecore's row ids are strings.
// fileTable owns exactly one graphIndex per table; dimension and metric are
// fixed at construction from the table's own schema, never rediscovered
// from whatever happens to be on disk.
type graphIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	metric string

	dimension int

	idMap   map[string]uint64 // row id -> hnsw key
	keyMap  map[uint64]string // hnsw key -> row id
	nextKey uint64

	closed bool
}

// graphIndexMeta is the gob-encoded id-mapping file saved alongside the
// exported graph (path+".meta"). Dimension/metric ride along purely so Load
// can detect a corrupt or foreign file; they never override the dimension
// the owning fileTable was opened with.
type graphIndexMeta struct {
	IDMap     map[string]uint64
	NextKey   uint64
	Dimension int
	Metric    string
}

// newGraphIndex builds the ANN half for a table fixed at dimension, using
// metric ("cos" or "l2"; anything else falls back to cosine).
func newGraphIndex(dimension int, metric string) *graphIndex {
	if metric == "" {
		metric = "cos"
	}

	graph := hnsw.NewGraph[uint64]()
	switch metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		metric = "cos"
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = hnswDefaultM
	graph.EfSearch = hnswDefaultEfSearch
	graph.Ml = hnswLevelFactor

	return &graphIndex{
		graph:     graph,
		metric:    metric,
		dimension: dimension,
		idMap:     make(map[string]uint64),
		keyMap:    make(map[uint64]string),
	}
}

// Add inserts or replaces vectors by id. A repeat id orphans its old key
// rather than calling graph.Delete: coder/hnsw corrupts its graph when the
// last remaining node is deleted, so replaced ids are lazily dropped from
// the id maps and left as unreachable nodes until the next full rebuild.
func (g *graphIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return fmt.Errorf("ann index is closed")
	}

	for _, v := range vectors {
		if len(v) != g.dimension {
			return ErrDimensionMismatch{Expected: g.dimension, Got: len(v)}
		}
	}

	for i, id := range ids {
		if oldKey, exists := g.idMap[id]; exists {
			delete(g.keyMap, oldKey)
			delete(g.idMap, id)
		}

		key := g.nextKey
		g.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if g.metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		g.graph.Add(hnsw.MakeNode(key, vec))
		g.idMap[id] = key
		g.keyMap[key] = id
	}

	return nil
}

// Search returns the k nearest neighbors of query.
func (g *graphIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return nil, fmt.Errorf("ann index is closed")
	}
	if len(query) != g.dimension {
		return nil, ErrDimensionMismatch{Expected: g.dimension, Got: len(query)}
	}
	if g.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	if g.metric == "cos" {
		normalizeVectorInPlace(normalized)
	}

	nodes := g.graph.Search(normalized, k)
	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := g.keyMap[node.Key]
		if !ok {
			// An orphaned (lazily-deleted) key; skip rather than surface it.
			continue
		}
		distance := g.graph.Distance(normalized, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, g.metric),
		})
	}
	return results, nil
}

// Delete removes ids from the index by orphaning their key mappings, for
// the same lazy-deletion reason Add replaces rather than deletes in place.
func (g *graphIndex) Delete(ctx context.Context, ids []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return fmt.Errorf("ann index is closed")
	}

	for _, id := range ids {
		if key, exists := g.idMap[id]; exists {
			delete(g.keyMap, key)
			delete(g.idMap, id)
		}
	}
	return nil
}

// AllIDs returns every live row id in the index.
func (g *graphIndex) AllIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return nil
	}
	ids := make([]string, 0, len(g.idMap))
	for id := range g.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether id is a live (non-orphaned) row.
func (g *graphIndex) Contains(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return false
	}
	_, ok := g.idMap[id]
	return ok
}

// Count returns the number of live rows.
func (g *graphIndex) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return 0
	}
	return len(g.idMap)
}

// graphIndexStats reports live vs. orphaned node counts, for a future
// compaction pass to decide when a full graph rebuild is worth its cost.
type graphIndexStats struct {
	LiveRows   int
	GraphNodes int
	Orphans    int
}

func (g *graphIndex) Stats() graphIndexStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return graphIndexStats{}
	}
	live := len(g.idMap)
	nodes := g.graph.Len()
	return graphIndexStats{LiveRows: live, GraphNodes: nodes, Orphans: nodes - live}
}

// Save atomically persists the graph (path) and its id-mapping companion
// (path+".meta") via temp-file-then-rename.
func (g *graphIndex) Save(path string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return fmt.Errorf("ann index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := g.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	if err := g.saveMeta(path + ".meta"); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func (g *graphIndex) saveMeta(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := graphIndexMeta{
		IDMap:     g.idMap,
		NextKey:   g.nextKey,
		Dimension: g.dimension,
		Metric:    g.metric,
	}

	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp metadata file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and id mapping from path/path+".meta". A
// dimension mismatch between the persisted metadata and the dimension this
// graphIndex was constructed with means the on-disk file belongs to a
// different table (or the table's schema changed); that is surfaced as an
// error rather than silently adopted, since adopting it would desync the
// index from the scalar store's own column width.
func (g *graphIndex) Load(path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return fmt.Errorf("ann index is closed")
	}

	meta, err := g.loadMeta(path + ".meta")
	if err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}
	if meta.Dimension != g.dimension {
		return ErrDimensionMismatch{Expected: g.dimension, Got: meta.Dimension}
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	// bufio.Reader because coder/hnsw's Import wants an io.ByteReader.
	if err := g.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	g.idMap = meta.IDMap
	g.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range g.idMap {
		g.keyMap[key] = id
	}
	g.nextKey = meta.NextKey

	return nil
}

func (g *graphIndex) loadMeta(path string) (graphIndexMeta, error) {
	file, err := os.Open(path)
	if err != nil {
		return graphIndexMeta{}, fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta graphIndexMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return graphIndexMeta{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// Close releases the graph. coder/hnsw's Graph needs no explicit teardown;
// this just fences off further use.
func (g *graphIndex) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	g.graph = nil
	return nil
}

var _ AnnIndex = (*graphIndex)(nil)

// normalizeVectorInPlace normalizes v to unit length.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a raw distance into a 0-1 similarity score:
// cosine distance ranges 0 (identical) to 2 (opposite); L2 is unbounded
// above, so it's mapped through 1/(1+d) instead.
func distanceToScore(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}
