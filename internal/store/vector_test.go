package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphIndex_AddAndSearch(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	ids := []string{"a", "b", "c"}
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.9, 0.1, 0, 0},
	}

	require.NoError(t, idx.Add(context.Background(), ids, vectors))

	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestGraphIndex_Delete(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a", "b"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}))

	require.NoError(t, idx.Delete(context.Background(), []string{"a"}))

	assert.False(t, idx.Contains("a"))
	assert.Equal(t, 1, idx.Count())
	assert.True(t, idx.Contains("b"))
}

func TestGraphIndex_UpdateReplacesInPlace(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{0, 1, 0, 0}}))

	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestGraphIndex_PersistenceRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "vectors.hnsw")

	idx1 := newGraphIndex(4, "cos")
	require.NoError(t, idx1.Add(context.Background(), []string{"a", "b"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}))
	require.NoError(t, idx1.Save(indexPath))
	require.NoError(t, idx1.Close())

	idx2 := newGraphIndex(4, "cos")
	defer func() { _ = idx2.Close() }()
	require.NoError(t, idx2.Load(indexPath))

	assert.Equal(t, 2, idx2.Count())
	assert.True(t, idx2.Contains("a"))

	results, err := idx2.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
}

func TestGraphIndex_LoadRejectsDimensionMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "vectors.hnsw")

	idx1 := newGraphIndex(4, "cos")
	require.NoError(t, idx1.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, idx1.Save(indexPath))
	require.NoError(t, idx1.Close())

	idx2 := newGraphIndex(8, "cos")
	defer func() { _ = idx2.Close() }()

	err := idx2.Load(indexPath)
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 8, dimErr.Expected)
	assert.Equal(t, 4, dimErr.Got)
}

func TestGraphIndex_BatchSearch(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a", "b", "c"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}))

	results1, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	results2, err := idx.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)

	assert.Equal(t, "a", results1[0].ID)
	assert.Equal(t, "b", results2[0].ID)
}

func TestGraphIndex_EmptySearch(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGraphIndex_AddDimensionMismatch(t *testing.T) {
	idx := newGraphIndex(768, "cos")
	defer func() { _ = idx.Close() }()

	err := idx.Add(context.Background(), []string{"test"}, [][]float32{make([]float32, 256)})
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 768, dimErr.Expected)
	assert.Equal(t, 256, dimErr.Got)
}

func TestGraphIndex_AddEmptyIsNoop(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{}, [][]float32{}))
	assert.Equal(t, 0, idx.Count())
}

func TestGraphIndex_DeleteNonExistentIsNoop(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Delete(context.Background(), []string{"nonexistent"}))
}

func TestGraphIndex_CloseIdempotent(t *testing.T) {
	idx := newGraphIndex(4, "cos")

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())
}

func TestGraphIndex_SearchAfterClose(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	require.NoError(t, idx.Close())

	_, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 10)
	require.Error(t, err)
}

func TestGraphIndex_AddAfterClose(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	require.NoError(t, idx.Close())

	err := idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}})
	require.Error(t, err)
}

func TestGraphIndex_SearchDimensionMismatch(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))

	_, err := idx.Search(context.Background(), []float32{1, 0}, 10)
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestGraphIndex_ContainsAfterDelete(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	assert.True(t, idx.Contains("a"))

	require.NoError(t, idx.Delete(context.Background(), []string{"a"}))
	assert.False(t, idx.Contains("a"))
}

func TestGraphIndex_MismatchedIDsAndVectors(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	err := idx.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0, 0, 0}})
	require.Error(t, err)
}

func TestGraphIndex_StatsEmpty(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	stats := idx.Stats()
	assert.Equal(t, 0, stats.LiveRows)
	assert.Equal(t, 0, stats.GraphNodes)
	assert.Equal(t, 0, stats.Orphans)
}

func TestGraphIndex_StatsAfterAdd(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a", "b", "c"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}))

	stats := idx.Stats()
	assert.Equal(t, 3, stats.LiveRows)
	assert.Equal(t, 3, stats.GraphNodes)
	assert.Equal(t, 0, stats.Orphans)
}

func TestGraphIndex_StatsAfterDelete(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a", "b", "c"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}))
	require.NoError(t, idx.Delete(context.Background(), []string{"a"}))

	stats := idx.Stats()
	assert.Equal(t, 2, stats.LiveRows)
	assert.Equal(t, 3, stats.GraphNodes)
	assert.Equal(t, 1, stats.Orphans)
}

func TestGraphIndex_StatsAfterUpdate(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{0, 1, 0, 0}}))

	stats := idx.Stats()
	assert.Equal(t, 1, stats.LiveRows)
	assert.Equal(t, 2, stats.GraphNodes)
	assert.Equal(t, 1, stats.Orphans)
}

func TestGraphIndex_StatsAfterClose(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	require.NoError(t, idx.Close())

	stats := idx.Stats()
	assert.Equal(t, 0, stats.LiveRows)
	assert.Equal(t, 0, stats.GraphNodes)
	assert.Equal(t, 0, stats.Orphans)
}

func normalizeVector(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	magnitude := float32(math.Sqrt(sumSquares))
	for i := range v {
		v[i] /= magnitude
	}
}

func BenchmarkGraphIndex_Add1K(b *testing.B) {
	vectors := generateBenchVectors(1000, 768)
	ids := generateBenchIDs(1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx := newGraphIndex(768, "cos")
		_ = idx.Add(context.Background(), ids, vectors)
		_ = idx.Close()
	}
}

func BenchmarkGraphIndex_Search10K(b *testing.B) {
	idx := newGraphIndex(768, "cos")
	vectors := generateBenchVectors(10000, 768)
	ids := generateBenchIDs(10000)
	_ = idx.Add(context.Background(), ids, vectors)

	query := vectors[0]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(context.Background(), query, 10)
	}
	_ = idx.Close()
}

func generateBenchVectors(count, dim int) [][]float32 {
	vectors := make([][]float32, count)
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		for j := 0; j < dim; j++ {
			v[j] = float32(i+j) / float32(dim)
		}
		normalizeVector(v)
		vectors[i] = v
	}
	return vectors
}

func generateBenchIDs(count int) []string {
	ids := make([]string, count)
	for i := 0; i < count; i++ {
		ids[i] = fmt.Sprintf("id_%d", i)
	}
	return ids
}

func TestGraphIndex_ConcurrentAddAndSearch(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a", "b"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}))

	const goroutines = 10
	const opsPerGoroutine = 50
	done := make(chan bool, goroutines*2)

	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < opsPerGoroutine; j++ {
				_, _ = idx.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
			}
			done <- true
		}()
	}

	for i := 0; i < goroutines; i++ {
		i := i
		go func() {
			for j := 0; j < opsPerGoroutine; j++ {
				id := fmt.Sprintf("concurrent_%d_%d", i, j)
				vec := []float32{float32(i), float32(j), 0, 0}
				normalizeVector(vec)
				_ = idx.Add(context.Background(), []string{id}, [][]float32{vec})
			}
			done <- true
		}()
	}

	for i := 0; i < goroutines*2; i++ {
		<-done
	}

	assert.True(t, idx.Count() > 2, "should have more than initial 2 vectors")
}

func TestGraphIndex_ConcurrentDeleteAndSearch(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	ids := make([]string, 100)
	vectors := make([][]float32, 100)
	for i := 0; i < 100; i++ {
		ids[i] = fmt.Sprintf("vec_%d", i)
		vectors[i] = []float32{float32(i), float32(i + 1), float32(i + 2), float32(i + 3)}
		normalizeVector(vectors[i])
	}
	require.NoError(t, idx.Add(context.Background(), ids, vectors))

	const goroutines = 5
	done := make(chan bool, goroutines*2)

	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < 50; j++ {
				_, _ = idx.Search(context.Background(), []float32{1, 2, 3, 4}, 10)
			}
			done <- true
		}()
	}

	for i := 0; i < goroutines; i++ {
		i := i
		go func() {
			start := i * 10
			end := start + 10
			for j := start; j < end; j++ {
				id := fmt.Sprintf("vec_%d", j)
				_ = idx.Delete(context.Background(), []string{id})
			}
			done <- true
		}()
	}

	for i := 0; i < goroutines*2; i++ {
		<-done
	}

	assert.True(t, idx.Count() < 100, "some vectors should be deleted")
}

func TestGraphIndex_LazyDeletionOrphanCount(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))

	for i := 0; i < 5; i++ {
		vec := []float32{0.9, 0.1 * float32(i+1), 0, 0}
		require.NoError(t, idx.Add(context.Background(), []string{"a"}, [][]float32{vec}))
	}

	assert.Equal(t, 1, idx.Count(), "logical count should be 1")

	stats := idx.Stats()
	assert.True(t, stats.Orphans >= 5, "should have orphans from lazy deletion: got %d", stats.Orphans)

	results, err := idx.Search(context.Background(), []float32{0.9, 0.5, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestGraphIndex_PersistenceWithOrphans(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "vectors_orphans.hnsw")

	idx1 := newGraphIndex(4, "cos")
	require.NoError(t, idx1.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, idx1.Add(context.Background(), []string{"a"}, [][]float32{{0, 1, 0, 0}})) // update creates orphan
	require.NoError(t, idx1.Add(context.Background(), []string{"b"}, [][]float32{{0, 0, 1, 0}}))

	require.NoError(t, idx1.Save(indexPath))
	require.NoError(t, idx1.Close())

	idx2 := newGraphIndex(4, "cos")
	defer func() { _ = idx2.Close() }()
	require.NoError(t, idx2.Load(indexPath))

	assert.Equal(t, 2, idx2.Count(), "should have 2 logical vectors")

	results, err := idx2.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID) // "a" was updated to [0,1,0,0]
}

func TestNormalizeVectorInPlace_NormalVector(t *testing.T) {
	v := []float32{3, 4, 0, 0}
	normalizeVectorInPlace(v)

	length := float32(0)
	for _, val := range v {
		length += val * val
	}
	length = float32(math.Sqrt(float64(length)))
	assert.InDelta(t, 1.0, float64(length), 0.0001, "normalized vector should have length 1.0")
	assert.InDelta(t, 0.6, float64(v[0]), 0.0001) // 3/5
	assert.InDelta(t, 0.8, float64(v[1]), 0.0001) // 4/5
}

func TestNormalizeVectorInPlace_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0, 0}
	normalizeVectorInPlace(v)

	for _, val := range v {
		assert.False(t, math.IsNaN(float64(val)), "zero vector should not produce NaN")
		assert.Equal(t, float32(0), val, "zero vector elements should remain 0")
	}
}

func TestNormalizeVectorInPlace_AlreadyNormalized(t *testing.T) {
	v := []float32{1, 0, 0, 0}
	normalizeVectorInPlace(v)

	assert.InDelta(t, 1.0, float64(v[0]), 0.0001)
	assert.InDelta(t, 0.0, float64(v[1]), 0.0001)
}

func TestNormalizeVectorInPlace_VerySmallVector(t *testing.T) {
	v := []float32{1e-10, 1e-10, 1e-10, 1e-10}
	normalizeVectorInPlace(v)

	for _, val := range v {
		assert.False(t, math.IsNaN(float64(val)), "small vector should not produce NaN")
		assert.False(t, math.IsInf(float64(val), 0), "small vector should not produce Inf")
	}
}

func TestGraphIndex_AllIDsEmpty(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	assert.Empty(t, idx.AllIDs())
}

func TestGraphIndex_AllIDsWithVectors(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"v1", "v2", "v3"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}))

	allIDs := idx.AllIDs()
	assert.Len(t, allIDs, 3)

	idSet := make(map[string]bool)
	for _, id := range allIDs {
		idSet[id] = true
	}
	assert.True(t, idSet["v1"])
	assert.True(t, idSet["v2"])
	assert.True(t, idSet["v3"])
}

func TestGraphIndex_AllIDsAfterDelete(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []string{"v1", "v2"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}))
	require.NoError(t, idx.Delete(context.Background(), []string{"v1"}))

	allIDs := idx.AllIDs()
	assert.Len(t, allIDs, 1)
	assert.Equal(t, "v2", allIDs[0])
}

func TestGraphIndex_AllIDsClosed(t *testing.T) {
	idx := newGraphIndex(4, "cos")
	require.NoError(t, idx.Close())

	assert.Nil(t, idx.AllIDs())
}

func TestDistanceToScore_Cosine(t *testing.T) {
	tests := []struct {
		distance float32
		expected float32
	}{
		{0.0, 1.0}, // Identical vectors
		{1.0, 0.5}, // Orthogonal
		{2.0, 0.0}, // Opposite vectors
	}

	for _, tc := range tests {
		result := distanceToScore(tc.distance, "cos")
		assert.InDelta(t, tc.expected, result, 0.001, "cosine distance %f", tc.distance)
	}
}

func TestDistanceToScore_L2(t *testing.T) {
	tests := []struct {
		distance float32
		expected float32
	}{
		{0.0, 1.0},  // Identical
		{1.0, 0.5},  // distance 1
		{3.0, 0.25}, // distance 3
	}

	for _, tc := range tests {
		result := distanceToScore(tc.distance, "l2")
		assert.InDelta(t, tc.expected, result, 0.001, "L2 distance %f", tc.distance)
	}
}

func TestDistanceToScore_DefaultMetric(t *testing.T) {
	result := distanceToScore(0.5, "unknown")
	expected := float32(1.0 - 0.5/2.0) // = 0.75
	assert.InDelta(t, expected, result, 0.001)
}

func TestGraphIndex_SaveClosedIndex(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "closed.hnsw")

	idx := newGraphIndex(64, "cos")
	require.NoError(t, idx.Add(context.Background(), []string{"v1"}, [][]float32{make([]float32, 64)}))
	require.NoError(t, idx.Close())

	err := idx.Save(indexPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestGraphIndex_SaveCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "nested", "deep", "index.hnsw")

	idx := newGraphIndex(64, "cos")
	defer idx.Close()
	require.NoError(t, idx.Add(context.Background(), []string{"v1"}, [][]float32{make([]float32, 64)}))

	require.NoError(t, idx.Save(indexPath))

	_, err := os.Stat(indexPath)
	assert.NoError(t, err)
	_, err = os.Stat(indexPath + ".meta")
	assert.NoError(t, err)
}

func TestGraphIndex_LoadClosedIndex(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "test.hnsw")

	idx1 := newGraphIndex(64, "cos")
	require.NoError(t, idx1.Add(context.Background(), []string{"v1"}, [][]float32{make([]float32, 64)}))
	require.NoError(t, idx1.Save(indexPath))
	require.NoError(t, idx1.Close())

	idx2 := newGraphIndex(64, "cos")
	require.NoError(t, idx2.Close())

	err := idx2.Load(indexPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestGraphIndex_LoadNonexistentFile(t *testing.T) {
	idx := newGraphIndex(64, "cos")
	defer idx.Close()

	err := idx.Load("/nonexistent/path/index.hnsw")
	assert.Error(t, err)
}

func TestGraphIndex_LoadCorruptedMeta(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "test.hnsw")

	idx1 := newGraphIndex(64, "cos")
	require.NoError(t, idx1.Add(context.Background(), []string{"v1"}, [][]float32{make([]float32, 64)}))
	require.NoError(t, idx1.Save(indexPath))
	require.NoError(t, idx1.Close())

	require.NoError(t, os.WriteFile(indexPath+".meta", []byte("invalid gob data"), 0644))

	idx2 := newGraphIndex(64, "cos")
	defer idx2.Close()

	err := idx2.Load(indexPath)
	assert.Error(t, err)
}

func TestGraphIndex_ContainsClosed(t *testing.T) {
	idx := newGraphIndex(64, "cos")
	require.NoError(t, idx.Add(context.Background(), []string{"v1"}, [][]float32{make([]float32, 64)}))
	require.NoError(t, idx.Close())

	assert.False(t, idx.Contains("v1"))
}

func TestGraphIndex_CountClosed(t *testing.T) {
	idx := newGraphIndex(64, "cos")
	require.NoError(t, idx.Add(context.Background(), []string{"v1"}, [][]float32{make([]float32, 64)}))
	require.NoError(t, idx.Close())

	assert.Equal(t, 0, idx.Count())
}
