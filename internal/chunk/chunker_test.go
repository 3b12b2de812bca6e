package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenChunker_Split_EmptyTextReturnsNoChunks(t *testing.T) {
	c := NewTokenChunker()
	defer c.Close()
	chunks, err := c.Split(context.Background(), "", DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestTokenChunker_Split_ShortTextIsOneChunk(t *testing.T) {
	c := NewTokenChunker()
	defer c.Close()
	chunks, err := c.Split(context.Background(), "just a short line of text", DefaultConfig())
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
}

func TestTokenChunker_Split_ChunkIndexStartsAtZeroAndIsContiguous(t *testing.T) {
	c := NewTokenChunker()
	defer c.Close()

	var lines []string
	for i := 0; i < 400; i++ {
		lines = append(lines, "word word word word word word word word")
	}
	text := strings.Join(lines, "\n")

	chunks, err := c.Split(context.Background(), text, Config{ChunkSizeTokens: 100, OverlapTokens: 10})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
	}
}

func TestTokenChunker_Split_RespectsOverlap(t *testing.T) {
	c := NewTokenChunker()
	defer c.Close()

	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, "alpha beta gamma delta")
	}
	text := strings.Join(lines, "\n")

	chunks, err := c.Split(context.Background(), text, Config{ChunkSizeTokens: 40, OverlapTokens: 8})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// every chunk after the first should start at or before the previous
	// chunk's end line (i.e. genuine overlap, not a gap).
	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i].StartLine, chunks[i-1].EndLine)
	}
}

func TestTokenChunker_Split_NeverSplitsInsideFencedCodeBlock(t *testing.T) {
	c := NewTokenChunker()
	defer c.Close()

	var body []string
	for i := 0; i < 30; i++ {
		body = append(body, "line of filler prose to pad out the token budget here")
	}
	code := "```go\nfunc doSomething() {\n\tfmt.Println(\"hello\")\n\tfmt.Println(\"world\")\n}\n```"
	text := strings.Join(body, "\n") + "\n" + code + "\n" + strings.Join(body, "\n")

	chunks, err := c.Split(context.Background(), text, Config{ChunkSizeTokens: 60, OverlapTokens: 0})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, ch := range chunks {
		if strings.Contains(ch.Text, "func doSomething() {") {
			assert.True(t, strings.Contains(ch.Text, "```go\nfunc doSomething() {\n\tfmt.Println(\"hello\")\n\tfmt.Println(\"world\")\n}\n```"),
				"a chunk containing the function's opening must contain its full body and closing fence: %q", ch.Text)
		}
	}
}

func TestFindFencedCodeBlocks_DetectsOneBlock(t *testing.T) {
	lines := strings.Split("prose\n```go\nfunc f() {}\n```\nmore prose", "\n")
	blocks := findFencedCodeBlocks(lines)
	require.Len(t, blocks, 1)
	assert.Equal(t, "go", blocks[0].language)
	assert.Equal(t, 1, blocks[0].startLine)
	assert.Equal(t, 3, blocks[0].endLine)
}

func TestFindCut_StopsAtBudget(t *testing.T) {
	cumulative := []int{0, 5, 10, 15, 20}
	cut := findCut(cumulative, 0, 12, 3)
	assert.Equal(t, 2, cut)
}

func TestFindCut_FallsBackToMaxLineWhenBudgetNeverMet(t *testing.T) {
	cumulative := []int{0, 1, 2, 3}
	cut := findCut(cumulative, 0, 1000, 2)
	assert.Equal(t, 2, cut)
}
