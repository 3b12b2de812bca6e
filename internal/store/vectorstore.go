package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileTable composes the ANN half (graphIndex, behind AnnIndex) and the
// scalar half (ScalarStore, shared across all of a store's tables) into
// the single Table contract. Writers to one table serialize on writeMu;
// readers never block on each other or on writes to other tables.
type fileTable struct {
	writeMu sync.Mutex

	name      string
	dimension int
	dir       string

	ann    AnnIndex
	scalar *ScalarStore

	annIndexedCol string // column last built with CreateANNIndex, empty if none yet
}

func openFileTable(vs *fileVectorStore, name string, schema Schema, dimension int) (*fileTable, error) {
	ann := newGraphIndex(dimension, "cos")

	t := &fileTable{
		name:      name,
		dimension: dimension,
		dir:       vs.path,
		ann:       ann,
		scalar:    vs.scalar,
	}

	if err := ann.Load(t.annPath()); err != nil {
		// No prior graph on disk is expected for a freshly-created table;
		// any other error is a corrupt-store signal the caller should see.
		if !isMissingHNSWFile(err) {
			return nil, fmt.Errorf("failed to load ann index for table %s: %w", name, err)
		}
	}

	return t, nil
}

func isMissingHNSWFile(err error) bool {
	// graphIndex.Load wraps os.Open's error; a fresh table has no file yet.
	return err != nil && errors.Is(err, os.ErrNotExist)
}

func (t *fileTable) annPath() string {
	return filepath.Join(t.dir, t.name+".hnsw")
}

func (t *fileTable) Name() string   { return t.name }
func (t *fileTable) Dimension() int { return t.dimension }

// Upsert writes a batch by id: scalar columns go to the shared SQLite row
// store, any "embedding" column goes to the ANN index. A repeat id
// overwrites rather than duplicates.
func (t *fileTable) Upsert(ctx context.Context, batch *Batch) error {
	if batch == nil || len(batch.Rows) == 0 {
		return nil
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	ids := make([]string, 0, len(batch.Rows))
	vecs := make([][]float32, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		id, _ := row["id"].(string)
		if id == "" {
			return fmt.Errorf("upsert row missing id")
		}
		vec, ok := row["embedding"].([]float32)
		if !ok || vec == nil {
			continue
		}
		if len(vec) != t.dimension {
			return ErrDimensionMismatch{Expected: t.dimension, Got: len(vec)}
		}
		ids = append(ids, id)
		vecs = append(vecs, vec)
	}

	if len(ids) > 0 {
		if err := t.ann.Add(ctx, ids, vecs); err != nil {
			return fmt.Errorf("failed to add vectors: %w", err)
		}
	}

	if err := t.scalar.Upsert(ctx, t.name, batch.Rows); err != nil {
		return err
	}

	return t.ann.Save(t.annPath())
}

func (t *fileTable) DeleteWhere(ctx context.Context, pred Predicate) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if pred.Column == "id" {
		if err := t.ann.Delete(ctx, []string{pred.Value}); err != nil {
			return fmt.Errorf("failed to delete from ann index: %w", err)
		}
	} else {
		rows, err := t.scalar.ProjectScan(ctx, t.name, []string{"id"}, &pred)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(rows))
		for _, r := range rows {
			if id, ok := r["id"].(string); ok {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			if err := t.ann.Delete(ctx, ids); err != nil {
				return fmt.Errorf("failed to delete from ann index: %w", err)
			}
		}
	}

	if err := t.scalar.DeleteWhere(ctx, t.name, pred); err != nil {
		return err
	}

	return t.ann.Save(t.annPath())
}

func (t *fileTable) Count(ctx context.Context) (int, error) {
	return t.scalar.Count(ctx, t.name)
}

func (t *fileTable) ProjectScan(ctx context.Context, columns []string, pred *Predicate) ([]map[string]any, error) {
	return t.scalar.ProjectScan(ctx, t.name, columns, pred)
}

// AnnSearch runs a k-NN search over the ANN index, then (if filter is set)
// narrows the candidate set post-search by an equality predicate scanned
// against the scalar store.
func (t *fileTable) AnnSearch(ctx context.Context, query []float32, k int, filter *Predicate) ([]AnnHit, error) {
	if len(query) != t.dimension {
		return nil, ErrDimensionMismatch{Expected: t.dimension, Got: len(query)}
	}

	searchK := k
	var allowed map[string]bool
	if filter != nil {
		rows, err := t.scalar.ProjectScan(ctx, t.name, []string{"id"}, filter)
		if err != nil {
			return nil, err
		}
		allowed = make(map[string]bool, len(rows))
		for _, r := range rows {
			if id, ok := r["id"].(string); ok {
				allowed[id] = true
			}
		}
		if len(allowed) == 0 {
			return nil, nil
		}
		// Over-fetch so a post-search filter still has enough candidates.
		searchK = k * 8
		if searchK < k {
			searchK = k
		}
	}

	results, err := t.ann.Search(ctx, query, searchK)
	if err != nil {
		return nil, fmt.Errorf("ann search failed: %w", err)
	}

	hits := make([]AnnHit, 0, len(results))
	for _, r := range results {
		if allowed != nil && !allowed[r.ID] {
			continue
		}
		hits = append(hits, AnnHit{ID: r.ID, Score: r.Score})
		if len(hits) >= k {
			break
		}
	}
	return hits, nil
}

func (t *fileTable) CreateScalarIndex(ctx context.Context, column string) error {
	return t.scalar.CreateScalarIndex(ctx, t.name, column)
}

// CreateANNIndex is a no-op placeholder for columns other than "embedding":
// graphIndex already maintains its graph incrementally on every Upsert, so
// there is nothing additional to build for the embedding column itself.
// Any other column name is rejected; the ANN half only ever indexes one
// vector column per table.
func (t *fileTable) CreateANNIndex(ctx context.Context, column, metric string) error {
	if column != "embedding" {
		return fmt.Errorf("ann index only supported on the embedding column, got %q", column)
	}
	t.annIndexedCol = column
	return nil
}

func (t *fileTable) Close() error {
	return t.ann.Close()
}
