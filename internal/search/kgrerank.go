package search

// MaxKGRerankContribution bounds the additive KG-rerank contribution per
// hit to 0.15, so the knowledge-graph walk can never dominate the fused
// score.
const MaxKGRerankContribution = 0.15

// ApplyKGRerank adds kg_rerank_scale * kg_score * 0.1 to every hit with an
// entry in kgScores (keyed by the hit's ID), capped at
// MaxKGRerankContribution, then re-sorts deterministically. kgScores comes
// from KnowledgeGraph.QueryToolRelevance; this function stays decoupled
// from the graph package, taking only the plain score map it returns.
func ApplyKGRerank(hits []*Hit, kgScores map[string]float64, kgRerankScale float64) {
	if len(kgScores) == 0 {
		return
	}
	for _, h := range hits {
		score, ok := kgScores[h.ID]
		if !ok {
			continue
		}
		contribution := kgRerankScale * score * 0.1
		if contribution > MaxKGRerankContribution {
			contribution = MaxKGRerankContribution
		}
		h.FusedScore += contribution
	}
	sortHitsDeterministic(hits)
}
