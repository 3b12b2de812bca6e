// Package search implements the query-time pipeline: intent extraction,
// fusion-weight computation, parallel vector+keyword hybrid search,
// relationship-graph rerank, and confidence calibration.
package search

import (
	"context"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ActionVocab is the fixed lexicon scanned for a query's action token.
var ActionVocab = []string{
	"search", "find", "commit", "create", "analyze", "research", "run",
	"list", "show", "explain", "describe", "compare", "route", "fix",
	"refactor", "write", "read", "delete", "update", "git",
}

// TargetVocab is the fixed lexicon scanned for a query's target token.
var TargetVocab = []string{
	"knowledge", "docs", "code", "git", "web", "skill", "database",
	"file", "tool", "test", "config",
}

// stopWords is a small fixed set removed before action/target scanning.
// Kept deliberately short (spec: "≤ 50 entries").
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "for": true,
	"in": true, "on": true, "at": true, "is": true, "are": true, "be": true,
	"with": true, "and": true, "or": true, "that": true, "this": true,
	"it": true, "as": true, "by": true, "from": true, "me": true,
	"please": true, "can": true, "you": true, "i": true, "my": true,
}

// Intent is the deterministic decomposition of a raw query.
type Intent struct {
	Action   string
	Target   string
	Context  []string
	Keywords []string
}

// FusionWeights is computed once per query at the orchestrator boundary and
// flows unmodified through every downstream stage.
type FusionWeights struct {
	VectorWeight     float32
	KeywordWeight    float32
	ZKProximityScale float32
	ZKEntityScale    float32
	KGRerankScale    float32
}

// DefaultFusionWeights returns the balanced, all-1.0 weight set.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{
		VectorWeight:     1.0,
		KeywordWeight:    1.0,
		ZKProximityScale: 1.0,
		ZKEntityScale:    1.0,
		KGRerankScale:    1.0,
	}
}

// Extractor is a deterministic, lexicon-based intent classifier (plain token
// matching, no regular expressions). This is the only classifier in the pipeline — no LLM call
// is ever on the query path.
type Extractor struct {
	actionVocab []string
	targetVocab []string

	cache *lru.Cache[string, FusionWeights]
}

// NewExtractor builds an Extractor over the given vocabularies (nil uses
// the package defaults) with an LRU cache of (query) -> FusionWeights.
func NewExtractor(actionVocab, targetVocab []string, cacheSize int) *Extractor {
	if actionVocab == nil {
		actionVocab = ActionVocab
	}
	if targetVocab == nil {
		targetVocab = TargetVocab
	}
	if cacheSize <= 0 {
		cacheSize = 500
	}
	cache, _ := lru.New[string, FusionWeights](cacheSize)
	return &Extractor{actionVocab: actionVocab, targetVocab: targetVocab, cache: cache}
}

// tokenize lowercases and splits on Unicode word boundaries, matching the
// spec's step 1.
func tokenize(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Extract decomposes query into (action, target, context, keywords):
// tokenize, drop stop words, scan left-to-right for the first action
// match, then the first target match among the remainder.
func (e *Extractor) Extract(_ context.Context, query string) Intent {
	tokens := tokenize(query)

	var nonStop []string
	for _, tok := range tokens {
		if !stopWords[tok] {
			nonStop = append(nonStop, tok)
		}
	}

	intent := Intent{Keywords: nonStop}

	actionIdx := -1
	for i, tok := range nonStop {
		if contains(e.actionVocab, tok) {
			intent.Action = tok
			actionIdx = i
			break
		}
	}

	targetIdx := -1
	for i, tok := range nonStop {
		if i == actionIdx {
			continue
		}
		if contains(e.targetVocab, tok) {
			intent.Target = tok
			targetIdx = i
			break
		}
	}

	for i, tok := range nonStop {
		if i != actionIdx && i != targetIdx {
			intent.Context = append(intent.Context, tok)
		}
	}

	return intent
}

func contains(vocab []string, tok string) bool {
	for _, v := range vocab {
		if v == tok {
			return true
		}
	}
	return false
}

// gitSubactions recognizes git verbs that trigger the keyword-weight bump
// even when "git" itself isn't the action token (e.g. "commit my changes").
var gitSubactions = map[string]bool{
	"commit": true, "push": true, "pull": true, "merge": true,
	"rebase": true, "branch": true, "checkout": true, "diff": true,
}

// Weights computes FusionWeights for query, applying the reweighting
// rules in order (later rules override earlier) and caching the result.
func (e *Extractor) Weights(ctx context.Context, query string) FusionWeights {
	if w, ok := e.cache.Get(query); ok {
		return w
	}

	intent := e.Extract(ctx, query)
	w := DefaultFusionWeights()

	switch intent.Target {
	case "knowledge", "docs":
		w.KGRerankScale = 1.3
		w.VectorWeight = 0.9
	case "code", "database", "skill":
		w.VectorWeight = 1.2
		w.KeywordWeight = 1.3
	}

	if intent.Action == "git" || gitSubactions[intent.Action] {
		w.KeywordWeight = 1.4
	}

	e.cache.Add(query, w)
	return w
}
