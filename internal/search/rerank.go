package search

import (
	"sort"

	"github.com/toolmesh/routecore/internal/catalog"
)

// DefaultAnchorCount is the number of top fused results treated as graph
// anchors.
const DefaultAnchorCount = 3

// MaxGraphBoost bounds the relationship-graph contribution so it never
// dominates the semantic/keyword signal.
const MaxGraphBoost = 0.2

// ApplyRelationshipRerank boosts candidates graph-connected to the current
// top-N anchors by the sum of outgoing anchor->candidate edge weights,
// capped at MaxGraphBoost, then re-sorts deterministically by fused score
// descending, ties broken by id ascending.
func ApplyRelationshipRerank(hits []*Hit, snapshot *catalog.GraphSnapshot, anchorCount int) {
	if len(hits) == 0 || snapshot == nil {
		return
	}
	if anchorCount <= 0 {
		anchorCount = DefaultAnchorCount
	}
	if anchorCount > len(hits) {
		anchorCount = len(hits)
	}

	anchors := make(map[string]bool, anchorCount)
	for i := 0; i < anchorCount; i++ {
		anchors[hits[i].ID] = true
	}

	boosts := snapshot.OutgoingWeights(anchors)

	for _, h := range hits {
		boost := boosts[h.ID]
		if boost > MaxGraphBoost {
			boost = MaxGraphBoost
		}
		h.FusedScore += boost
	}

	sortHitsDeterministic(hits)
}

func sortHitsDeterministic(hits []*Hit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		return a.ID < b.ID
	})
}
