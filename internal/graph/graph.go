package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/toolmesh/routecore/internal/store"
)

// EntitiesSchema describes the kg_entities table. Primary storage lives
// in scalar tables inside the same vector store as everything else.
func EntitiesSchema() store.Schema {
	return store.Schema{
		Table:   store.TableKGEntities,
		Columns: []string{"id", "name", "entity_type", "aliases", "confidence", "created_at", "updated_at"},
	}
}

// RelationsSchema describes the kg_relations table.
func RelationsSchema() store.Schema {
	return store.Schema{
		Table:   store.TableKGRelation,
		Columns: []string{"id", "source_entity_id", "target_entity_id", "relation_type", "confidence"},
	}
}

// KnowledgeGraph exclusively owns the kg_entities and kg_relations
// tables. Writers serialize on mu; the adjacency used by
// QueryToolRelevance is rebuilt from the scalar tables on every call, which
// keeps the walk consistent with whatever was last registered.
type KnowledgeGraph struct {
	mu           sync.Mutex
	entities     store.Table
	relations    store.Table
	snapshotPath string
}

// NewKnowledgeGraph binds a KnowledgeGraph to its two tables. snapshotPath
// may be empty to disable JSON dual-write.
func NewKnowledgeGraph(entities, relations store.Table, snapshotPath string) *KnowledgeGraph {
	return &KnowledgeGraph{entities: entities, relations: relations, snapshotPath: snapshotPath}
}

// RegisterSkillTool registers a skill and its tool into the graph: create or
// update a SKILL entity, a TOOL entity, one CONCEPT entity per routing
// keyword, and the CONTAINS / RELATED_TO relations between them.
// Re-registering the same (skillName, toolID, routingKeywords) is a no-op
// beyond overwriting identical rows, since every id is derived
// deterministically from its content.
func (g *KnowledgeGraph) RegisterSkillTool(ctx context.Context, skillName, toolID string, routingKeywords []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	skillEntityID := entityID(EntitySkill, skillName)
	toolEntityID := entityID(EntityTool, toolID)

	entityRows := []map[string]any{
		entityRow(skillEntityID, skillName, EntitySkill, nil, 1.0, now),
		entityRow(toolEntityID, toolID, EntityTool, nil, 1.0, now),
	}

	relationRows := []map[string]any{
		relationRow(skillEntityID, toolEntityID, RelationContains, 1.0),
	}

	seen := map[string]bool{}
	for _, kw := range routingKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		conceptEntityID := entityID(EntityConcept, kw)
		entityRows = append(entityRows, entityRow(conceptEntityID, kw, EntityConcept, nil, 1.0, now))
		relationRows = append(relationRows, relationRow(toolEntityID, conceptEntityID, RelationRelatedTo, 1.0))
	}

	if err := g.entities.Upsert(ctx, &store.Batch{Rows: entityRows}); err != nil {
		return fmt.Errorf("failed to upsert entities: %w", err)
	}
	if err := g.relations.Upsert(ctx, &store.Batch{Rows: relationRows}); err != nil {
		return fmt.Errorf("failed to upsert relations: %w", err)
	}

	if g.snapshotPath != "" {
		return g.writeSnapshotLocked(ctx)
	}
	return nil
}

func entityRow(id, name string, t EntityType, aliases []string, confidence float64, now time.Time) map[string]any {
	return map[string]any{
		"id":          id,
		"name":        name,
		"entity_type": string(t),
		"aliases":     strings.Join(aliases, " "),
		"confidence":  confidence,
		"created_at":  now.Format(time.RFC3339Nano),
		"updated_at":  now.Format(time.RFC3339Nano),
	}
}

func relationRow(source, target string, relation RelationType, confidence float64) map[string]any {
	return map[string]any{
		"id":               relationID(source, target, relation),
		"source_entity_id": source,
		"target_entity_id": target,
		"relation_type":    string(relation),
		"confidence":       confidence,
	}
}

// edge is one in-memory adjacency entry built from the relations table for
// a single QueryToolRelevance walk.
type edge struct {
	other      string
	confidence float64
}

// QueryToolRelevance performs the bounded breadth-first query-time rerank
// walk: starting from {CONCEPT:<k> | k in keywords}, it
// accumulates score(tool) = Σ (1/2)^(hop-1) × edge_confidence across up to
// hops hops. The walk treats edges as undirected — CONTAINS and RELATED_TO
// are both recorded source->target, but relevance must flow from a CONCEPT
// back through its owning TOOL and sibling TOOLs under the same SKILL,
// which requires following edges in either direction.
func (g *KnowledgeGraph) QueryToolRelevance(ctx context.Context, keywords []string, hops int) (map[string]float64, error) {
	if hops <= 0 {
		hops = 2
	}
	if len(keywords) == 0 {
		return map[string]float64{}, nil
	}

	adjacency, err := g.buildAdjacency(ctx)
	if err != nil {
		return nil, err
	}

	frontier := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		frontier[entityID(EntityConcept, kw)] = true
	}

	visited := make(map[string]bool, len(frontier))
	for id := range frontier {
		visited[id] = true
	}

	scores := make(map[string]float64)
	decay := 1.0
	for hop := 1; hop <= hops && len(frontier) > 0; hop++ {
		next := make(map[string]bool)
		for node := range frontier {
			for _, nb := range adjacency[node] {
				if t, name := stripEntityPrefix(nb.other); t == EntityTool {
					scores[name] += decay * nb.confidence
				}
				if !visited[nb.other] {
					visited[nb.other] = true
					next[nb.other] = true
				}
			}
		}
		frontier = next
		decay /= 2
	}

	return scores, nil
}

func (g *KnowledgeGraph) buildAdjacency(ctx context.Context) (map[string][]edge, error) {
	rows, err := g.relations.ProjectScan(ctx, []string{"source_entity_id", "target_entity_id", "confidence"}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to scan relations: %w", err)
	}

	adjacency := make(map[string][]edge, len(rows)*2)
	for _, r := range rows {
		src, _ := r["source_entity_id"].(string)
		dst, _ := r["target_entity_id"].(string)
		conf := asFloat(r["confidence"])
		if src == "" || dst == "" {
			continue
		}
		adjacency[src] = append(adjacency[src], edge{other: dst, confidence: conf})
		adjacency[dst] = append(adjacency[dst], edge{other: src, confidence: conf})
	}
	return adjacency, nil
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

// Save writes the JSON dual-write snapshot.
func (g *KnowledgeGraph) Save(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snapshotPath == "" {
		return nil
	}
	return g.writeSnapshotLocked(ctx)
}

func (g *KnowledgeGraph) writeSnapshotLocked(ctx context.Context) error {
	entityRows, err := g.entities.ProjectScan(ctx, []string{"id", "name", "entity_type", "aliases", "confidence"}, nil)
	if err != nil {
		return fmt.Errorf("failed to scan entities: %w", err)
	}
	relationRows, err := g.relations.ProjectScan(ctx, []string{"id", "source_entity_id", "target_entity_id", "relation_type", "confidence"}, nil)
	if err != nil {
		return fmt.Errorf("failed to scan relations: %w", err)
	}

	snapshot := Snapshot{BuiltAt: time.Now().UTC()}
	for _, r := range entityRows {
		aliases := strings.Fields(asString(r["aliases"]))
		snapshot.Entities = append(snapshot.Entities, EntitySnapshot{
			ID:         asString(r["id"]),
			Name:       asString(r["name"]),
			EntityType: asString(r["entity_type"]),
			Aliases:    aliases,
			Confidence: asFloat(r["confidence"]),
		})
	}
	for _, r := range relationRows {
		snapshot.Relations = append(snapshot.Relations, RelationSnapshot{
			ID:           asString(r["id"]),
			Source:       asString(r["source_entity_id"]),
			Target:       asString(r["target_entity_id"]),
			RelationType: asString(r["relation_type"]),
			Confidence:   asFloat(r["confidence"]),
		})
	}

	sort.Slice(snapshot.Entities, func(i, j int) bool { return snapshot.Entities[i].ID < snapshot.Entities[j].ID })
	sort.Slice(snapshot.Relations, func(i, j int) bool { return snapshot.Relations[i].ID < snapshot.Relations[j].ID })

	return writeSnapshotJSON(g.snapshotPath, snapshot)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
