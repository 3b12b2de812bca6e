// Package store provides the columnar-shaped persistence layer: a per-table
// HNSW vector index, a SQLite scalar row store, and a Bleve keyword index,
// composed behind a single VectorStore handle per storage path.
package store

import (
	"context"
	"fmt"
	"time"
)

// Well-known table names.
const (
	TableTools      = "tools"
	TableKnowledge  = "knowledge"
	TableKGEntities = "kg_entities"
	TableKGRelation = "kg_relations"
)

// CurrentSchemaVersion is the current on-disk schema version.
const CurrentSchemaVersion = 1

// ToolRow is a row in the tools table.
type ToolRow struct {
	ID               string            `json:"id"`
	SkillName        string            `json:"skill_name"`
	CommandName      string            `json:"command_name"`
	ToolName         string            `json:"tool_name"`
	Category         string            `json:"category"`
	Description      string            `json:"description"`
	RoutingKeywords  string            `json:"routing_keywords"` // space-joined
	Intents          string            `json:"intents"`          // " | "-joined
	FilePath         string            `json:"file_path"`
	InputSchema      string            `json:"input_schema"`
	SkillToolsRefers string            `json:"skill_tools_refers"` // space-joined ids
	Embedding        []float32         `json:"embedding"`
	Metadata         map[string]string `json:"metadata"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// RoutingKeywordList splits the space-joined routing_keywords column.
func (t *ToolRow) RoutingKeywordList() []string { return splitNonEmpty(t.RoutingKeywords, " ") }

// IntentList splits the " | "-joined intents column.
func (t *ToolRow) IntentList() []string { return splitNonEmpty(t.Intents, " | ") }

// ReferList splits the space-joined skill_tools_refers column.
func (t *ToolRow) ReferList() []string { return splitNonEmpty(t.SkillToolsRefers, " ") }

// EmbeddingInput returns the canonical, deterministic string used to
// produce this row's embedding: re-embedding the same input always
// yields the same vector.
func (t *ToolRow) EmbeddingInput() string {
	return t.CommandName + "\n" + t.Description + "\n" + t.Intents
}

// KnowledgeChunk is a row in the knowledge table.
type KnowledgeChunk struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	ChunkIndex int               `json:"chunk_index"`
	Content    string            `json:"content"`
	Embedding  []float32         `json:"embedding"`
	Metadata   map[string]string `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Schema describes the column set of a table, used to detect a
// SchemaMismatch on upsert.
type Schema struct {
	Table   string
	Columns []string
}

// Predicate is a narrow equality predicate over a single string column,
// consumed by delete_where and as a category filter on ann_search /
// project_scan.
type Predicate struct {
	Column string
	Value  string
}

// Batch is a generic row batch keyed by column name; table implementations
// project these into their native row types.
type Batch struct {
	Rows []map[string]any
}

// OpenResult is returned by OpenOrCreate.
type OpenResult struct {
	Created bool
}

// AnnHit is one result of ann_search: higher Score is more similar.
type AnnHit struct {
	ID    string
	Score float32
}

// Table is the per-table handle returned by VectorStore.Table, composing
// the ANN half (AnnIndex) and the scalar half (behind
// ProjectScan/DeleteWhere) under one set of columnar operations.
type Table interface {
	Name() string
	Dimension() int

	Upsert(ctx context.Context, batch *Batch) error
	DeleteWhere(ctx context.Context, pred Predicate) error
	Count(ctx context.Context) (int, error)
	ProjectScan(ctx context.Context, columns []string, pred *Predicate) ([]map[string]any, error)
	AnnSearch(ctx context.Context, query []float32, k int, filter *Predicate) ([]AnnHit, error)
	CreateScalarIndex(ctx context.Context, column string) error
	CreateANNIndex(ctx context.Context, column, metric string) error

	Close() error
}

// VectorStore owns all persistent columnar data for one storage path. It is
// a process-wide singleton constructed exclusively by the package-level
// factory (see factory.go); any other construction path breaks the
// single-factory discipline the rest of the package relies on.
type VectorStore interface {
	OpenOrCreate(ctx context.Context, table string, schema Schema, dimension int, initial *Batch) (Table, OpenResult, error)
	Table(name string) (Table, bool)
	Close() error
}

// ErrDimensionMismatch indicates a vector write does not match the
// table's fixed embedding dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// ErrSchemaMismatch indicates an upsert batch's columns don't match the
// table's schema exactly.
type ErrSchemaMismatch struct {
	Table    string
	Expected []string
	Got      []string
}

func (e ErrSchemaMismatch) Error() string {
	return fmt.Sprintf("schema mismatch on table %q: expected columns %v, got %v", e.Table, e.Expected, e.Got)
}

// ErrTableNotFound indicates an operation targeted a table that has not
// been created via OpenOrCreate.
type ErrTableNotFound struct {
	Table string
}

func (e ErrTableNotFound) Error() string {
	return fmt.Sprintf("table not found: %s", e.Table)
}

// VectorResult represents a single vector search result from the ANN half
// of a table.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// AnnIndex is the narrow per-table ANN primitive graphIndex implements. It is
// composed into Table by vectorstore.go; callers outside this package use
// Table, not AnnIndex, directly. Construction takes only dimension and
// metric because both are fixed per-table facts fileTable already carries
// from the table's schema — there is no separate config object to thread
// through.
type AnnIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// Document is a keyword-index document with the four boosted fields.
type Document struct {
	ID              string
	ToolName        string
	RoutingKeywords string
	Intents         string
	Description     string
}

// BM25Result represents a single keyword-search result.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about a keyword index.
type IndexStats struct {
	DocumentCount int
}

// FieldBoosts are the canonical, fixed keyword-index field boosts:
// tool_name x5, intents x4, routing_keywords x3, description x1.
// Changing them is a breaking behavioral change.
type FieldBoosts struct {
	ToolName        float64
	Intents         float64
	RoutingKeywords float64
	Description     float64
}

// DefaultFieldBoosts returns the canonical boost values.
func DefaultFieldBoosts() FieldBoosts {
	return FieldBoosts{ToolName: 5, Intents: 4, RoutingKeywords: 3, Description: 1}
}

// BM25Config configures the keyword index. Only Boosts is read; the
// tokenizer always uses DefaultCodeStopWords and a minimum token length of
// 2, whatever StopWords and MinTokenLength hold.
type BM25Config struct {
	StopWords      []string
	MinTokenLength int
	Boosts         FieldBoosts
}

// DefaultBM25Config returns default keyword-index configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		StopWords:      DefaultCodeStopWords,
		MinTokenLength: 2,
		Boosts:         DefaultFieldBoosts(),
	}
}

// DefaultCodeStopWords contains programming keywords to filter out of the
// keyword index's tokenizer.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// KeywordIndex maintains an inverted index per tool table supporting BM25
// ranking with per-field boosts.
type KeywordIndex interface {
	Upsert(ctx context.Context, doc *Document) error
	BulkUpsert(ctx context.Context, docs []*Document) error
	DeleteWhere(ctx context.Context, pred Predicate) error
	Search(ctx context.Context, queryString string, k int) ([]*BM25Result, error)
	Commit() error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Close() error
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			if tok := s[start:i]; tok != "" {
				out = append(out, tok)
			}
			start = i + len(sep)
		}
	}
	if tok := s[start:]; tok != "" {
		out = append(out, tok)
	}
	return out
}
