package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyKGRerank_AddsScaledContribution(t *testing.T) {
	hits := []*Hit{
		{ID: "a", FusedScore: 0.5},
		{ID: "b", FusedScore: 0.5},
	}
	ApplyKGRerank(hits, map[string]float64{"a": 1.0}, 1.0)

	for _, h := range hits {
		if h.ID == "a" {
			assert.InDelta(t, 0.6, h.FusedScore, 0.0001)
		} else {
			assert.Equal(t, 0.5, h.FusedScore)
		}
	}
}

func TestApplyKGRerank_CapsContribution(t *testing.T) {
	hits := []*Hit{{ID: "a", FusedScore: 0.1}}
	ApplyKGRerank(hits, map[string]float64{"a": 100.0}, 1.0)
	assert.InDelta(t, 0.1+MaxKGRerankContribution, hits[0].FusedScore, 0.0001)
}

func TestApplyKGRerank_EmptyScoresIsNoOp(t *testing.T) {
	hits := []*Hit{{ID: "a", FusedScore: 0.5}}
	ApplyKGRerank(hits, nil, 1.0)
	assert.Equal(t, 0.5, hits[0].FusedScore)
}

func TestApplyKGRerank_ReSortsAfterBoost(t *testing.T) {
	hits := []*Hit{
		{ID: "a", FusedScore: 0.5},
		{ID: "b", FusedScore: 0.55},
	}
	ApplyKGRerank(hits, map[string]float64{"a": 2.0}, 1.0)
	assert.Equal(t, "a", hits[0].ID)
}
