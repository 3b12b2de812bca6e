package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Static768Dimensions matches common 768-dim sentence-transformer models, so
// an index built against one of those models can fall back to the static
// embedder at that width without re-indexing.
const Static768Dimensions = 768

// Weights for vector generation: tokens carry more signal than n-grams, but
// n-grams give partial credit to misspelled or unseen identifiers.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// hashTokenPattern matches alphanumeric sequences during tokenization.
var hashTokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// programmingStopWords filters common keywords that carry no search signal.
var programmingStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

// hashEmbedder is a dependency-free Embedder: it hashes code-aware tokens
// and character n-grams into a fixed-width vector instead of running a
// model. Deterministic and fast, at the cost of real semantic similarity -
// used for --offline mode and as a same-dimension fallback when a remote
// oracle is unavailable.
type hashEmbedder struct {
	mu         sync.RWMutex
	closed     bool
	dimensions int
	modelName  string
}

// NewStaticEmbedder returns the default-width (StaticDimensions) hash embedder.
func NewStaticEmbedder() Embedder {
	return &hashEmbedder{dimensions: StaticDimensions, modelName: "static"}
}

// NewStaticEmbedder768 returns a hash embedder at Static768Dimensions, for
// dimension compatibility with 768-dim remote models.
func NewStaticEmbedder768() Embedder {
	return &hashEmbedder{dimensions: Static768Dimensions, modelName: "static768"}
}

func (e *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dimensions), nil
	}
	return normalizeVector(e.hashVector(trimmed)), nil
}

func (e *hashEmbedder) hashVector(text string) []float32 {
	vector := make([]float32, e.dimensions)

	tokens := filterStopWords(tokenizeCode(text))
	for _, token := range tokens {
		vector[hashToIndex(token, e.dimensions)] += tokenWeight
	}

	for _, ngram := range extractNgrams(normalizeForNgrams(text), ngramSize) {
		vector[hashToIndex(ngram, e.dimensions)] += ngramWeight
	}

	return vector
}

func (e *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

func (e *hashEmbedder) Dimensions() int { return e.dimensions }

func (e *hashEmbedder) ModelName() string { return e.modelName }

func (e *hashEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *hashEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// SetBatchIndex is a no-op; the hash embedder has no thermal pacing to track.
func (e *hashEmbedder) SetBatchIndex(_ int) {}

// SetFinalBatch is a no-op; the hash embedder has no thermal pacing to track.
func (e *hashEmbedder) SetFinalBatch(_ bool) {}

// tokenizeCode splits text into lowercase code-aware tokens, breaking
// camelCase and snake_case identifiers apart.
func tokenizeCode(text string) []string {
	var tokens []string
	for _, word := range hashTokenPattern.FindAllString(text, -1) {
		for _, t := range splitCodeToken(word) {
			if lower := strings.ToLower(t); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// splitCodeToken splits a snake_case identifier into parts, further
// splitting each part on camelCase boundaries.
func splitCodeToken(token string) []string {
	if !strings.Contains(token, "_") {
		return splitCamelCase(token)
	}
	var result []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			result = append(result, splitCamelCase(part)...)
		}
	}
	return result
}

// splitCamelCase splits a camelCase or PascalCase identifier on case
// boundaries, treating runs of uppercase letters (acronyms) as one unit.
func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func filterStopWords(tokens []string) []string {
	var filtered []string
	for _, t := range tokens {
		if !programmingStopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// normalizeForNgrams lowercases text and strips everything but letters and
// digits so n-gram boundaries don't depend on incidental whitespace/punctuation.
func normalizeForNgrams(text string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// extractNgrams extracts n-character sliding windows from text.
func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

// hashToIndex maps s to an index in [0, size) via FNV-64.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}
