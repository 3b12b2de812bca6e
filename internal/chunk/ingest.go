package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/toolmesh/routecore/internal/embed"
	"github.com/toolmesh/routecore/internal/store"
)

// KnowledgeSchema describes the knowledge table's columns.
func KnowledgeSchema() store.Schema {
	return store.Schema{
		Table:   store.TableKnowledge,
		Columns: []string{"id", "source", "chunk_index", "content", "embedding", "metadata", "created_at"},
	}
}

// Pipeline ingests one document's plaintext into the knowledge table
// with idempotent source-keyed replace. A per-source mutex serializes
// the delete_where-then-insert pair of a single ingest so a concurrent
// reader never observes a half-replaced source.
type Pipeline struct {
	table    store.Table
	embedder embed.Embedder
	splitter Splitter
	cfg      Config

	mu          sync.Mutex
	sourceLocks map[string]*sync.Mutex
}

// NewPipeline builds an IngestPipeline over an already-open knowledge table.
// Page-image extraction, if used, is wired separately through ImageManifest.
func NewPipeline(table store.Table, embedder embed.Embedder, splitter Splitter, cfg Config) *Pipeline {
	return &Pipeline{
		table:       table,
		embedder:    embedder,
		splitter:    splitter,
		cfg:         cfg,
		sourceLocks: make(map[string]*sync.Mutex),
	}
}

func (p *Pipeline) lockFor(source string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.sourceLocks[source]
	if !ok {
		l = &sync.Mutex{}
		p.sourceLocks[source] = l
	}
	return l
}

// Ingest runs the full pipeline for one already-extracted plaintext
// document: split into token-bounded chunks, embed each, then
// delete_where(source==src) and bulk-insert the new rows as one logical
// transaction.
func (p *Pipeline) Ingest(ctx context.Context, source, plaintext string) (int, error) {
	lock := p.lockFor(source)
	lock.Lock()
	defer lock.Unlock()

	chunks, err := p.splitter.Split(ctx, plaintext, p.cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to split document %q: %w", source, err)
	}

	rows := make([]map[string]any, 0, len(chunks))
	now := time.Now().UTC()
	for _, c := range chunks {
		vec, err := p.embedder.Embed(ctx, c.Text)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunk %d of %q: %w", c.ChunkIndex, source, err)
		}
		rows = append(rows, map[string]any{
			"id":          chunkID(source, c.ChunkIndex),
			"source":      source,
			"chunk_index": fmt.Sprintf("%d", c.ChunkIndex),
			"content":     c.Text,
			"embedding":   vec,
			"metadata":    "{}",
			"created_at":  now.Format(time.RFC3339Nano),
		})
	}

	if err := p.table.DeleteWhere(ctx, store.Predicate{Column: "source", Value: source}); err != nil {
		return 0, fmt.Errorf("failed to clear prior chunks for %q: %w", source, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := p.table.Upsert(ctx, &store.Batch{Rows: rows}); err != nil {
		return 0, fmt.Errorf("failed to insert chunks for %q: %w", source, err)
	}

	return len(rows), nil
}

// chunkID derives a deterministic id so re-ingesting the same source and
// chunk index overwrites rather than duplicates.
func chunkID(source string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, chunkIndex)))
	return hex.EncodeToString(sum[:])[:16]
}

// ImageManifest records, per source document, the extracted page-image
// paths under <cache>/images/<stem>/. Images never enter the vector
// store; they are surfaced on full-document recall only.
type ImageManifest struct {
	path string
	mu   sync.Mutex
}

// NewImageManifest binds an ImageManifest to its on-disk JSON file.
func NewImageManifest(path string) *ImageManifest {
	return &ImageManifest{path: path}
}

// RecordImages appends imagePaths for source to the manifest, replacing any
// prior entry for the same source.
func (m *ImageManifest) RecordImages(source string, imagePaths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.load()
	if err != nil {
		return err
	}
	entries[source] = imagePaths

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create image manifest directory: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal image manifest: %w", err)
	}
	return os.WriteFile(m.path, data, 0644)
}

// ImagesFor returns the recorded image paths for source, if any.
func (m *ImageManifest) ImagesFor(source string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, err := m.load()
	if err != nil {
		return nil, err
	}
	return entries[source], nil
}

func (m *ImageManifest) load() (map[string][]string, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image manifest: %w", err)
	}
	var entries map[string][]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse image manifest: %w", err)
	}
	return entries, nil
}

// ImageDir returns the <cache>/images/<stem>/ directory a caller should
// extract source's page images into before calling RecordImages.
func ImageDir(cacheDir, source string) string {
	stem := filepath.Base(source)
	if ext := filepath.Ext(stem); ext != "" {
		stem = stem[:len(stem)-len(ext)]
	}
	return filepath.Join(cacheDir, "images", stem)
}
