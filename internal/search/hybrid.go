package search

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/toolmesh/routecore/internal/store"
)

// Hit is one fused, boosted result surfaced by HybridSearch, before
// relationship/KG rerank and calibration are layered on.
type Hit struct {
	ID           string
	FusedScore   float64
	VectorScore  float64
	KeywordScore float64
	MatchedTerms []string
	IntentBoost  float64
}

// HybridSearch runs the parallel vector+keyword fan-out and weighted RRF
// fusion over one tools-shaped Table.
type HybridSearch struct {
	table   store.Table
	keyword store.KeywordIndex
	kappa   int
}

// NewHybridSearch builds a HybridSearch bound to one table's ANN half and
// its paired keyword index. kappa<=0 uses DefaultKappa.
func NewHybridSearch(table store.Table, keyword store.KeywordIndex, kappa int) *HybridSearch {
	return &HybridSearch{table: table, keyword: keyword, kappa: kappa}
}

// Search fetches the two branches in parallel via an errgroup, normalizes
// each independently, fuses with weighted RRF, and applies the
// intent-overlap boost. Results are returned sorted best-first, not yet
// truncated to k — callers that need top-k should slice after any
// downstream rerank stage.
func (h *HybridSearch) Search(ctx context.Context, queryText string, queryVector []float32, k int, weights FusionWeights, categoryFilter *store.Predicate) ([]*Hit, error) {
	kRaw := k * 4
	if kRaw < 50 {
		kRaw = 50
	}

	var vecResults []store.AnnHit
	var kwResults []*store.BM25Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := h.table.AnnSearch(gctx, queryVector, kRaw, categoryFilter)
		if err != nil {
			return fmt.Errorf("vector branch failed: %w", err)
		}
		vecResults = res
		return nil
	})
	g.Go(func() error {
		res, err := h.keyword.Search(gctx, queryText, kRaw)
		if err != nil {
			return fmt.Errorf("keyword branch failed: %w", err)
		}
		kwResults = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if categoryFilter != nil {
		kwResults = filterKeywordByCategory(ctx, h.table, kwResults, *categoryFilter)
	}

	vec := make([]rankedVec, len(vecResults))
	for i, r := range vecResults {
		vec[i] = rankedVec{ID: r.ID, Score: float64(r.Score)}
	}
	kw := make([]rankedKW, len(kwResults))
	for i, r := range kwResults {
		kw[i] = rankedKW{ID: r.DocID, Score: r.Score, MatchedTerms: r.MatchedTerms}
	}

	vec = minMaxNormalizeVec(vec)
	kw = minMaxNormalizeKW(kw)

	fused := rrfFuse(vec, kw, weights, h.kappa)

	queryKeywords := tokenize(queryText)
	if err := h.applyIntentOverlapBoost(ctx, fused, queryKeywords); err != nil {
		return nil, err
	}
	sortFused(fused)

	hits := make([]*Hit, len(fused))
	for i, f := range fused {
		hits[i] = &Hit{
			ID:           f.ID,
			FusedScore:   f.FusedScore,
			VectorScore:  f.VectorScore,
			KeywordScore: f.KeywordScore,
			MatchedTerms: f.MatchedTerms,
			IntentBoost:  f.IntentBoost,
		}
	}
	return hits, nil
}

// filterKeywordByCategory applies the category filter as an in-memory
// post-filter on keyword results: the vector branch pushes the predicate
// down to the store; the keyword branch, which has no category column,
// filters after the fact.
func filterKeywordByCategory(ctx context.Context, table store.Table, kwResults []*store.BM25Result, filter store.Predicate) []*store.BM25Result {
	rows, err := table.ProjectScan(ctx, []string{"id"}, &filter)
	if err != nil {
		return kwResults
	}
	allowed := make(map[string]bool, len(rows))
	for _, r := range rows {
		if id, ok := r["id"].(string); ok {
			allowed[id] = true
		}
	}
	out := make([]*store.BM25Result, 0, len(kwResults))
	for _, r := range kwResults {
		if allowed[r.DocID] {
			out = append(out, r)
		}
	}
	return out
}

// applyIntentOverlapBoost adds min(0.1*|overlap|, 0.3) to each candidate's
// fused score, where overlap is computed between the query's keywords and
// the candidate's routing_keywords ∪ intents. Entirely data-driven — no
// per-skill code is involved.
func (h *HybridSearch) applyIntentOverlapBoost(ctx context.Context, fused []*FusedResult, queryKeywords []string) error {
	if len(fused) == 0 {
		return nil
	}

	querySet := make(map[string]bool, len(queryKeywords))
	for _, k := range queryKeywords {
		querySet[strings.ToLower(k)] = true
	}

	for _, f := range fused {
		rows, err := h.table.ProjectScan(ctx, []string{"routing_keywords", "intents"}, &store.Predicate{Column: "id", Value: f.ID})
		if err != nil {
			return fmt.Errorf("failed to load candidate attributes: %w", err)
		}
		if len(rows) == 0 {
			continue
		}
		candidateTokens := candidateAttributeTokens(rows[0])
		overlap := 0
		seen := map[string]bool{}
		for _, tok := range candidateTokens {
			lower := strings.ToLower(tok)
			if querySet[lower] && !seen[lower] {
				overlap++
				seen[lower] = true
			}
		}
		boost := 0.1 * float64(overlap)
		if boost > 0.3 {
			boost = 0.3
		}
		f.IntentBoost = boost
		f.FusedScore += boost
	}
	return nil
}

// candidateAttributeTokens flattens a candidate row's routing_keywords and
// intents columns into individual tokens for overlap comparison.
func candidateAttributeTokens(row map[string]any) []string {
	var out []string
	if rk, ok := row["routing_keywords"].(string); ok {
		out = append(out, strings.Fields(rk)...)
	}
	if intents, ok := row["intents"].(string); ok {
		for _, phrase := range strings.Split(intents, "|") {
			out = append(out, strings.Fields(strings.TrimSpace(phrase))...)
		}
	}
	return out
}
