package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/toolmesh/routecore/internal/catalog"
)

func TestApplyRelationshipRerank_BoostsConnectedCandidate(t *testing.T) {
	hits := []*Hit{
		{ID: "anchor", FusedScore: 0.9},
		{ID: "connected", FusedScore: 0.3},
		{ID: "unconnected", FusedScore: 0.29},
	}
	snapshot := &catalog.GraphSnapshot{
		Edges: []catalog.Edge{
			{Source: "anchor", Target: "connected", RelationType: catalog.RelationSameSkill, Weight: 0.6},
		},
	}

	ApplyRelationshipRerank(hits, snapshot, 1)

	var connected, unconnected *Hit
	for _, h := range hits {
		if h.ID == "connected" {
			connected = h
		}
		if h.ID == "unconnected" {
			unconnected = h
		}
	}
	assert.Greater(t, connected.FusedScore, unconnected.FusedScore)
}

func TestApplyRelationshipRerank_CapsBoostAtMax(t *testing.T) {
	hits := []*Hit{
		{ID: "anchor", FusedScore: 0.9},
		{ID: "connected", FusedScore: 0.1},
	}
	snapshot := &catalog.GraphSnapshot{
		Edges: []catalog.Edge{
			{Source: "anchor", Target: "connected", RelationType: catalog.RelationSameSkill, Weight: 0.6},
			{Source: "anchor", Target: "connected", RelationType: catalog.RelationSharedRef, Weight: 0.8},
		},
	}

	ApplyRelationshipRerank(hits, snapshot, 1)

	var connected *Hit
	for _, h := range hits {
		if h.ID == "connected" {
			connected = h
		}
	}
	assert.InDelta(t, 0.1+MaxGraphBoost, connected.FusedScore, 0.0001)
}

func TestApplyRelationshipRerank_NilSnapshotIsNoOp(t *testing.T) {
	hits := []*Hit{{ID: "a", FusedScore: 0.5}}
	ApplyRelationshipRerank(hits, nil, 3)
	assert.Equal(t, 0.5, hits[0].FusedScore)
}

func TestApplyRelationshipRerank_ReSortsDeterministically(t *testing.T) {
	hits := []*Hit{
		{ID: "z", FusedScore: 0.5},
		{ID: "a", FusedScore: 0.5},
	}
	ApplyRelationshipRerank(hits, &catalog.GraphSnapshot{}, 1)
	assert.Equal(t, "a", hits[0].ID)
}
