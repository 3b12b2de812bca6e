// Package chunk splits ingested plaintext into the token-aware, ordered
// chunk sequence IngestPipeline writes to the knowledge table. Prose is
// split by a sliding token window; fenced code blocks embedded in that
// prose are never split mid-function, using tree-sitter boundary
// detection over the embedded source.
package chunk

import "context"

// Token-budget defaults: chunk_size_tokens, overlap_tokens.
const (
	DefaultChunkSizeTokens = 512
	DefaultOverlapTokens   = 64
	MinChunkSizeTokens     = 50
)

// Config parameterizes the token-aware splitter.
type Config struct {
	ChunkSizeTokens int
	OverlapTokens   int
}

// DefaultConfig returns the canonical chunk-size/overlap defaults.
func DefaultConfig() Config {
	return Config{ChunkSizeTokens: DefaultChunkSizeTokens, OverlapTokens: DefaultOverlapTokens}
}

// TokenChunk is one (text, chunk_index) pair produced by Split.
// chunk_index starts at 0 and is contiguous.
type TokenChunk struct {
	Text       string
	ChunkIndex int
	StartLine  int // 0-indexed, inclusive
	EndLine    int // 0-indexed, inclusive
}

// Splitter is the token-aware chunker contract.
type Splitter interface {
	Split(ctx context.Context, text string, cfg Config) ([]TokenChunk, error)
}
