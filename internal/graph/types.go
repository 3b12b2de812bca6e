// Package graph implements the KnowledgeGraph: SKILL/TOOL/CONCEPT entities
// and their relations, persisted as two scalar tables inside the shared
// vector store plus a JSON snapshot for dual-write during migration. A
// directed multigraph over prepared-statement SQLite row storage.
package graph

import (
	"strings"
	"time"
)

// EntityType classifies a knowledge-graph entity.
type EntityType string

const (
	EntitySkill   EntityType = "SKILL"
	EntityTool    EntityType = "TOOL"
	EntityConcept EntityType = "CONCEPT"
)

// RelationType names a directed relation family.
type RelationType string

const (
	RelationContains  RelationType = "CONTAINS"   // SKILL -> TOOL
	RelationRelatedTo RelationType = "RELATED_TO" // TOOL -> CONCEPT:<keyword>
)

// entityID builds the deterministic, prefix-qualified id for an entity
// (e.g. "TOOL:search_tools.grep_files"). Registering the same name twice
// always yields the same id, which is what makes duplicate-triple
// registration a no-op.
func entityID(t EntityType, name string) string {
	return string(t) + ":" + name
}

func stripEntityPrefix(id string) (EntityType, string) {
	idx := strings.IndexByte(id, ':')
	if idx < 0 {
		return "", id
	}
	return EntityType(id[:idx]), id[idx+1:]
}

// relationID is deterministic in (source, target, relation_type) so a
// duplicate registration upserts the identical row rather than appending a
// second edge: (source, target, relation_type) is unique, and duplicate
// insertion is a no-op.
func relationID(source, target string, relation RelationType) string {
	return source + "->" + target + "#" + string(relation)
}

// EntitySnapshot is the JSON-persisted form of one kg_entities row.
type EntitySnapshot struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	EntityType string   `json:"entity_type"`
	Aliases    []string `json:"aliases,omitempty"`
	Confidence float64  `json:"confidence"`
}

// RelationSnapshot is the JSON-persisted form of one kg_relations row.
type RelationSnapshot struct {
	ID           string  `json:"id"`
	Source       string  `json:"source_entity_id"`
	Target       string  `json:"target_entity_id"`
	RelationType string  `json:"relation_type"`
	Confidence   float64 `json:"confidence"`
}

// Snapshot is the dual-write JSON form of the knowledge graph. Either
// representation must round-trip losslessly.
type Snapshot struct {
	Entities  []EntitySnapshot   `json:"entities"`
	Relations []RelationSnapshot `json:"relations"`
	BuiltAt   time.Time          `json:"built_at"`
}
