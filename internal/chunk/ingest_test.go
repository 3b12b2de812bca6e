package chunk

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolmesh/routecore/internal/embed"
	"github.com/toolmesh/routecore/internal/store"
)

func newTestPipeline(t *testing.T) (*Pipeline, store.Table) {
	t.Helper()
	dir := t.TempDir()

	vs, err := store.Get(filepath.Join(dir, "vector"), 0, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	tbl, _, err := vs.OpenOrCreate(context.Background(), store.TableKnowledge, KnowledgeSchema(), embed.StaticDimensions, nil)
	require.NoError(t, err)

	chunker := NewTokenChunker()
	t.Cleanup(chunker.Close)

	return NewPipeline(tbl, embed.NewStaticEmbedder(), chunker, Config{ChunkSizeTokens: 20, OverlapTokens: 0}), tbl
}

func TestPipeline_Ingest_WritesChunksForSource(t *testing.T) {
	p, tbl := newTestPipeline(t)
	ctx := context.Background()

	n, err := p.Ingest(ctx, "docs/readme.md", strings.Repeat("some words here ", 30))
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	count, err := tbl.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestPipeline_Ingest_ReingestReplacesPriorChunks(t *testing.T) {
	p, tbl := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.Ingest(ctx, "docs/readme.md", strings.Repeat("alpha beta gamma ", 30))
	require.NoError(t, err)

	n2, err := p.Ingest(ctx, "docs/readme.md", "just one short line")
	require.NoError(t, err)
	require.Equal(t, 1, n2)

	count, err := tbl.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPipeline_Ingest_DifferentSourcesDoNotInterfere(t *testing.T) {
	p, tbl := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.Ingest(ctx, "docs/a.md", "content a")
	require.NoError(t, err)
	_, err = p.Ingest(ctx, "docs/b.md", "content b")
	require.NoError(t, err)

	count, err := tbl.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPipeline_Ingest_EmptyDocumentClearsSourceWithoutError(t *testing.T) {
	p, tbl := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.Ingest(ctx, "docs/readme.md", "some content")
	require.NoError(t, err)

	n, err := p.Ingest(ctx, "docs/readme.md", "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := tbl.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestChunkID_IsDeterministicPerSourceAndIndex(t *testing.T) {
	a := chunkID("docs/a.md", 0)
	b := chunkID("docs/a.md", 0)
	c := chunkID("docs/a.md", 1)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestImageManifest_RecordAndRetrieve(t *testing.T) {
	dir := t.TempDir()
	m := NewImageManifest(filepath.Join(dir, "image_manifests.json"))

	require.NoError(t, m.RecordImages("docs/a.pdf", []string{"images/a/page-1.png", "images/a/page-2.png"}))

	paths, err := m.ImagesFor("docs/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"images/a/page-1.png", "images/a/page-2.png"}, paths)
}

func TestImageManifest_UnknownSourceReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	m := NewImageManifest(filepath.Join(dir, "image_manifests.json"))
	paths, err := m.ImagesFor("does/not/exist.pdf")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestImageDir_DerivesStemFromSourcePath(t *testing.T) {
	dir := ImageDir("/cache", "docs/report.pdf")
	assert.Equal(t, filepath.Join("/cache", "images", "report"), dir)
}
