package search

import "sort"

// DefaultKappa is the standard RRF smoothing parameter, κ = 60, the
// Cormack et al. default also used by Azure AI Search and OpenSearch
// hybrid pipelines.
const DefaultKappa = 60

// FusedResult is one candidate after weighted RRF fusion, carrying the raw
// per-branch scores the calibrator later consumes.
type FusedResult struct {
	ID           string
	FusedScore   float64
	VectorScore  float64
	VectorRank   int
	KeywordScore float64
	KeywordRank  int
	InBothLists  bool
	MatchedTerms []string
	IntentBoost  float64
}

// rankedVec and rankedKW are the minimal per-branch inputs to fusion,
// already sorted best-first by the caller.
type rankedVec struct {
	ID    string
	Score float64
}

type rankedKW struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// rrfFuse combines vector and keyword result lists with weighted
// Reciprocal Rank Fusion: fused(id) = vector_weight/(κ+rank_v) +
// keyword_weight/(κ+rank_k). A result missing from a branch contributes 0
// for that branch rather than a penalized rank.
func rrfFuse(vec []rankedVec, kw []rankedKW, weights FusionWeights, kappa int) []*FusedResult {
	if kappa <= 0 {
		kappa = DefaultKappa
	}

	results := make(map[string]*FusedResult, len(vec)+len(kw))
	getOrCreate := func(id string) *FusedResult {
		if r, ok := results[id]; ok {
			return r
		}
		r := &FusedResult{ID: id}
		results[id] = r
		return r
	}

	for rank, v := range vec {
		r := getOrCreate(v.ID)
		r.VectorScore = v.Score
		r.VectorRank = rank + 1
		r.FusedScore += float64(weights.VectorWeight) / float64(kappa+rank+1)
	}

	for rank, k := range kw {
		r := getOrCreate(k.ID)
		r.KeywordScore = k.Score
		r.KeywordRank = rank + 1
		r.MatchedTerms = k.MatchedTerms
		r.FusedScore += float64(weights.KeywordWeight) / float64(kappa+rank+1)
		if r.VectorRank > 0 {
			r.InBothLists = true
		}
	}

	out := make([]*FusedResult, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	sortFused(out)
	return out
}

// sortFused applies the deterministic tie-break order used throughout this
// package: higher fused score, then in-both-lists, then higher keyword
// score (exact-match signal), then lexicographic id.
func sortFused(results []*FusedResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.InBothLists != b.InBothLists {
			return a.InBothLists
		}
		if a.KeywordScore != b.KeywordScore {
			return a.KeywordScore > b.KeywordScore
		}
		return a.ID < b.ID
	})
}

// minMaxNormalizeVec returns a copy of in with scores scaled to [0,1] using
// the branch's own min/max, normalizing each branch independently before fusion.
func minMaxNormalizeVec(in []rankedVec) []rankedVec {
	if len(in) == 0 {
		return in
	}
	lo, hi := in[0].Score, in[0].Score
	for _, v := range in {
		if v.Score < lo {
			lo = v.Score
		}
		if v.Score > hi {
			hi = v.Score
		}
	}
	out := make([]rankedVec, len(in))
	spread := hi - lo
	for i, v := range in {
		if spread == 0 {
			out[i] = rankedVec{ID: v.ID, Score: 1}
		} else {
			out[i] = rankedVec{ID: v.ID, Score: (v.Score - lo) / spread}
		}
	}
	return out
}

func minMaxNormalizeKW(in []rankedKW) []rankedKW {
	if len(in) == 0 {
		return in
	}
	lo, hi := in[0].Score, in[0].Score
	for _, v := range in {
		if v.Score < lo {
			lo = v.Score
		}
		if v.Score > hi {
			hi = v.Score
		}
	}
	out := make([]rankedKW, len(in))
	spread := hi - lo
	for i, v := range in {
		score := 1.0
		if spread != 0 {
			score = (v.Score - lo) / spread
		}
		out[i] = rankedKW{ID: v.ID, Score: score, MatchedTerms: v.MatchedTerms}
	}
	return out
}
