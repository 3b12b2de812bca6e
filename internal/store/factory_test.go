package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ReturnsSameSingletonForSamePath(t *testing.T) {
	dir := t.TempDir()

	vs1, err := Get(dir, 0, 0)
	require.NoError(t, err)
	defer vs1.Close()

	vs2, err := Get(dir, 0, 0)
	require.NoError(t, err)

	assert.Same(t, vs1, vs2)
}

func TestGet_DifferentPathsGetDifferentStores(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	vs1, err := Get(dir1, 0, 0)
	require.NoError(t, err)
	defer vs1.Close()

	vs2, err := Get(dir2, 0, 0)
	require.NoError(t, err)
	defer vs2.Close()

	assert.NotSame(t, vs1, vs2)
}

func TestGet_AfterClose_ReopenSucceeds(t *testing.T) {
	dir := t.TempDir()

	vs1, err := Get(dir, 0, 0)
	require.NoError(t, err)
	require.NoError(t, vs1.Close())

	vs2, err := Get(dir, 0, 0)
	require.NoError(t, err)
	defer vs2.Close()

	assert.NotSame(t, vs1, vs2)
}

func TestFileVectorStore_OpenOrCreate_CreatesTableOnce(t *testing.T) {
	dir := t.TempDir()
	vs, err := Get(dir, 0, 0)
	require.NoError(t, err)
	defer vs.Close()

	schema := Schema{Table: TableTools, Columns: []string{"id", "tool_name", "embedding"}}

	tbl, result, err := vs.OpenOrCreate(context.Background(), TableTools, schema, 4, nil)
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, TableTools, tbl.Name())

	tbl2, result2, err := vs.OpenOrCreate(context.Background(), TableTools, schema, 4, nil)
	require.NoError(t, err)
	assert.False(t, result2.Created)
	assert.Same(t, tbl, tbl2)
}

func TestFileVectorStore_OpenOrCreate_DimensionMismatchOnReopen(t *testing.T) {
	dir := t.TempDir()
	vs, err := Get(dir, 0, 0)
	require.NoError(t, err)
	defer vs.Close()

	schema := Schema{Table: TableTools, Columns: []string{"id", "embedding"}}
	_, _, err = vs.OpenOrCreate(context.Background(), TableTools, schema, 4, nil)
	require.NoError(t, err)

	_, _, err = vs.OpenOrCreate(context.Background(), TableTools, schema, 8, nil)
	require.Error(t, err)
	var mismatch ErrDimensionMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestFileVectorStore_Table_ReturnsFalseForUnopenedTable(t *testing.T) {
	dir := t.TempDir()
	vs, err := Get(dir, 0, 0)
	require.NoError(t, err)
	defer vs.Close()

	_, ok := vs.Table("ghost")
	assert.False(t, ok)
}

func TestFileVectorStore_OpenOrCreate_WithInitialBatch(t *testing.T) {
	dir := t.TempDir()
	vs, err := Get(dir, 0, 0)
	require.NoError(t, err)
	defer vs.Close()

	schema := Schema{Table: TableTools, Columns: []string{"id", "embedding"}}
	initial := &Batch{Rows: []map[string]any{
		{"id": "t1", "embedding": []float32{1, 0, 0, 0}},
	}}

	tbl, _, err := vs.OpenOrCreate(context.Background(), TableTools, schema, 4, initial)
	require.NoError(t, err)

	count, err := tbl.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
