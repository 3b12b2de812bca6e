package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// CodeTokenizerName is the name of our custom tokenizer.
	CodeTokenizerName = "code_tokenizer"

	// CodeStopFilterName is the name of our custom stop word filter.
	CodeStopFilterName = "code_stop"

	// CodeAnalyzerName is the name of our custom analyzer.
	CodeAnalyzerName = "code_analyzer"
)

// fieldNames are the four boosted document fields.
var fieldNames = []string{"tool_name", "routing_keywords", "intents", "description"}

func init() {
	_ = registry.RegisterTokenizer(CodeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(CodeStopFilterName, codeStopFilterConstructor)
}

// BleveKeywordIndex implements KeywordIndex using Bleve v2, with a single
// cached writer reused across Upsert/BulkUpsert/DeleteWhere.
type BleveKeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config BM25Config
	closed bool
}

// keywordDoc is the document structure indexed into Bleve, mapping one
// field per boosted column.
type keywordDoc struct {
	ToolName        string `json:"tool_name"`
	RoutingKeywords string `json:"routing_keywords"`
	Intents         string `json:"intents"`
	Description     string `json:"description"`
}

// validateIndexIntegrity checks a Bleve index directory before opening,
// auto-recovering from a truncated index_meta.json left by an interrupted
// write.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		strings.Contains(errStr, "no such file or directory") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveKeywordIndex creates (or opens) the per-table keyword index at
// path. An empty path creates an in-memory index.
func NewBleveKeywordIndex(path string, config BM25Config) (*BleveKeywordIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("keyword_index_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			slog.Info("keyword_index_cleared", slog.String("path", path), slog.String("reason", "corruption detected, please reindex"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("keyword_index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			slog.Info("keyword_index_cleared", slog.String("path", path), slog.String("reason", "open failed with corruption, please reindex"))
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	if config.Boosts == (FieldBoosts{}) {
		config.Boosts = DefaultFieldBoosts()
	}

	return &BleveKeywordIndex{index: idx, path: path, config: config}, nil
}

// createIndexMapping builds a document mapping with one field per boosted
// column, all sharing the code-aware analyzer.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(CodeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": CodeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			CodeStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = CodeAnalyzerName

	docMapping := bleve.NewDocumentMapping()
	for _, field := range fieldNames {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = CodeAnalyzerName
		fm.IncludeTermVectors = true
		docMapping.AddFieldMappingsAt(field, fm)
	}
	indexMapping.DefaultMapping = docMapping

	return indexMapping, nil
}

func toKeywordDoc(doc *Document) keywordDoc {
	return keywordDoc{
		ToolName:        doc.ToolName,
		RoutingKeywords: doc.RoutingKeywords,
		Intents:         doc.Intents,
		Description:     doc.Description,
	}
}

// Upsert indexes a single document.
func (b *BleveKeywordIndex) Upsert(ctx context.Context, doc *Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("index is closed")
	}
	return b.index.Index(doc.ID, toKeywordDoc(doc))
}

// BulkUpsert indexes many documents through a single batch (reuses the
// cached writer; commit is triggered immediately after the batch).
func (b *BleveKeywordIndex) BulkUpsert(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, toKeywordDoc(doc)); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// DeleteWhere removes documents matching an equality predicate: the "id"
// column matches the document id, any other column matches when its stored
// value equals pred.Value exactly. Since Bleve has no native predicate scan,
// a non-id column is implemented as a search over the field, an exact
// comparison of each hit's stored value, and a delete batch (bounded by the
// match count).
func (b *BleveKeywordIndex) DeleteWhere(ctx context.Context, pred Predicate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("index is closed")
	}

	if pred.Column == "id" {
		return b.index.Delete(pred.Value)
	}

	matchQuery := bleve.NewMatchQuery(pred.Value)
	matchQuery.SetField(pred.Column)
	req := bleve.NewSearchRequest(matchQuery)
	docCount, _ := b.index.DocCount()
	req.Size = int(docCount)
	req.Fields = []string{pred.Column}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("delete_where scan failed: %w", err)
	}

	batch := b.index.NewBatch()
	for _, hit := range result.Hits {
		if v, ok := hit.Fields[pred.Column].(string); ok && v == pred.Value {
			batch.Delete(hit.ID)
		}
	}
	return b.index.Batch(batch)
}

// Search runs a disjunction of per-field match queries, each boosted per
// FieldBoosts (tool_name x5, intents x4, routing_keywords x3, description
// x1). The query string is lowercased by the shared analyzer; stopwords
// are not removed by Search itself so intent phrases survive.
func (b *BleveKeywordIndex) Search(ctx context.Context, queryStr string, k int) ([]*BM25Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*BM25Result{}, nil
	}

	disjunction := bleve.NewDisjunctionQuery()
	boosts := map[string]float64{
		"tool_name":        b.config.Boosts.ToolName,
		"intents":          b.config.Boosts.Intents,
		"routing_keywords": b.config.Boosts.RoutingKeywords,
		"description":      b.config.Boosts.Description,
	}
	for _, field := range fieldNames {
		var fieldQuery query.Query
		if isPhraseQuery(queryStr) {
			phrase := bleve.NewMatchPhraseQuery(strings.Trim(queryStr, `"`))
			phrase.SetField(field)
			phrase.SetBoost(boosts[field])
			fieldQuery = phrase
		} else {
			match := bleve.NewMatchQuery(queryStr)
			match.SetField(field)
			match.SetBoost(boosts[field])
			fieldQuery = match
		}
		disjunction.AddQuery(fieldQuery)
	}

	req := bleve.NewSearchRequest(disjunction)
	req.Size = k
	req.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*BM25Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &BM25Result{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}
	return results, nil
}

// isPhraseQuery reports whether the query string is quoted, requiring a
// positional match.
func isPhraseQuery(q string) bool {
	q = strings.TrimSpace(q)
	return len(q) >= 2 && strings.HasPrefix(q, `"`) && strings.HasSuffix(q, `"`)
}

// Commit flushes any deferred single-row upserts. Bleve's Index/Batch calls
// already commit synchronously, so this is a no-op retained for interface
// parity with index backends that buffer writes.
func (b *BleveKeywordIndex) Commit() error {
	return nil
}

// AllIDs returns all document IDs in the index.
func (b *BleveKeywordIndex) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	q := bleve.NewMatchAllQuery()
	docCount, _ := b.index.DocCount()

	req := bleve.NewSearchRequest(q)
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Stats returns index statistics.
func (b *BleveKeywordIndex) Stats() *IndexStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return &IndexStats{}
	}
	docCount, _ := b.index.DocCount()
	return &IndexStats{DocumentCount: int(docCount)}
}

// Close closes the index.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for _, locations := range hit.Locations {
		for term := range locations {
			terms[term] = struct{}{}
		}
	}
	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

var _ KeywordIndex = (*BleveKeywordIndex)(nil)

func codeTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveCodeTokenizer{}, nil
}

type bleveCodeTokenizer struct{}

func (t *bleveCodeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := splitIdentifiers(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), strings.ToLower(token))
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

func codeStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveCodeStopFilter{stopWords: newStopWordSet(DefaultCodeStopWords)}, nil
}

type bleveCodeStopFilter struct {
	stopWords map[string]struct{}
}

func (f *bleveCodeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
