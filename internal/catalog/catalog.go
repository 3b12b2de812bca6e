package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/toolmesh/routecore/internal/embed"
	"github.com/toolmesh/routecore/internal/store"
)

// ToolCatalog accepts skill manifests and produces tool rows in the
// vector+keyword stores, and maintains the tool relationship graph.
// Indexing is mutex-guarded and each skill reindexes transactionally.
type ToolCatalog struct {
	mu sync.Mutex

	table    store.Table
	keyword  store.KeywordIndex
	embedder embed.Embedder

	snapshotPath string
}

// NewToolCatalog builds a ToolCatalog over an already-open tools table and
// keyword index. snapshotPath is where the relationship-graph JSON
// dual-write snapshot (skill_relationships.json) is persisted.
func NewToolCatalog(table store.Table, keyword store.KeywordIndex, embedder embed.Embedder, snapshotPath string) *ToolCatalog {
	return &ToolCatalog{table: table, keyword: keyword, embedder: embedder, snapshotPath: snapshotPath}
}

// IndexSkillTools computes canonical embeddings for every command in skill,
// deletes any existing tools row whose skill_name matches but whose id is
// no longer produced (so renamed or removed commands don't leave stale rows
// behind), then upserts the resulting rows and keyword documents.
func (c *ToolCatalog) IndexSkillTools(ctx context.Context, skill SkillManifest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(skill.Commands) == 0 {
		return nil
	}

	newIDs := make(map[string]bool, len(skill.Commands))
	rows := make([]map[string]any, 0, len(skill.Commands))
	docs := make([]*store.Document, 0, len(skill.Commands))

	for _, cmd := range skill.Commands {
		id := skill.Name + "." + cmd.Name
		newIDs[id] = true

		row := &store.ToolRow{
			ID:               id,
			SkillName:        skill.Name,
			CommandName:      cmd.Name,
			ToolName:         cmd.ToolName,
			Category:         cmd.Category,
			Description:      cmd.Description,
			RoutingKeywords:  strings.Join(cmd.RoutingKeywords, " "),
			Intents:          strings.Join(cmd.Intents, " | "),
			FilePath:         cmd.FilePath,
			InputSchema:      cmd.InputSchema,
			SkillToolsRefers: strings.Join(cmd.Refers, " "),
			Metadata:         cmd.Metadata,
		}

		vec, err := c.embedder.Embed(ctx, row.EmbeddingInput())
		if err != nil {
			return fmt.Errorf("failed to embed tool %s: %w", id, err)
		}
		row.Embedding = vec
		now := time.Now().UTC()
		row.CreatedAt = now
		row.UpdatedAt = now

		rows = append(rows, toolRowToBatchRow(row))
		docs = append(docs, &store.Document{
			ID:              id,
			ToolName:        row.ToolName,
			RoutingKeywords: row.RoutingKeywords,
			Intents:         row.Intents,
			Description:     row.Description,
		})
	}

	if err := c.removeStaleCommands(ctx, skill.Name, newIDs); err != nil {
		return err
	}

	if err := c.table.Upsert(ctx, &store.Batch{Rows: rows}); err != nil {
		return fmt.Errorf("failed to upsert tool rows for skill %s: %w", skill.Name, err)
	}
	if err := c.keyword.BulkUpsert(ctx, docs); err != nil {
		return fmt.Errorf("failed to upsert keyword docs for skill %s: %w", skill.Name, err)
	}

	return nil
}

// removeStaleCommands deletes rows whose skill_name matches but whose id is
// not in newIDs.
func (c *ToolCatalog) removeStaleCommands(ctx context.Context, skillName string, newIDs map[string]bool) error {
	existing, err := c.table.ProjectScan(ctx, []string{"id"}, &store.Predicate{Column: "skill_name", Value: skillName})
	if err != nil {
		return fmt.Errorf("failed to scan existing rows for skill %s: %w", skillName, err)
	}
	for _, row := range existing {
		id, _ := row["id"].(string)
		if id == "" || newIDs[id] {
			continue
		}
		if err := c.table.DeleteWhere(ctx, store.Predicate{Column: "id", Value: id}); err != nil {
			return fmt.Errorf("failed to delete stale command %s: %w", id, err)
		}
		if err := c.keyword.DeleteWhere(ctx, store.Predicate{Column: "id", Value: id}); err != nil {
			return fmt.Errorf("failed to delete stale keyword doc %s: %w", id, err)
		}
	}
	return nil
}

// ReindexAll reindexes every skill transactionally per-skill: one skill's
// failure does not corrupt others.
func (c *ToolCatalog) ReindexAll(ctx context.Context, skills []SkillManifest) error {
	var errs []string
	for _, skill := range skills {
		if err := c.IndexSkillTools(ctx, skill); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", skill.Name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("reindex_all had %d failing skill(s): %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// BuildRelationshipGraph emits the three edge families (same-skill,
// shared-reference, keyword-overlap) over the supplied tool rows.
func (c *ToolCatalog) BuildRelationshipGraph(ctx context.Context, tools []*store.ToolRow) (*GraphSnapshot, error) {
	var edges []Edge

	bySkill := make(map[string][]*store.ToolRow)
	for _, t := range tools {
		bySkill[t.SkillName] = append(bySkill[t.SkillName], t)
	}
	for _, group := range bySkill {
		for i := 0; i < len(group); i++ {
			for j := 0; j < len(group); j++ {
				if i == j {
					continue
				}
				edges = append(edges, Edge{Source: group[i].ID, Target: group[j].ID, RelationType: RelationSameSkill, Weight: WeightSameSkill})
			}
		}
	}

	for i, a := range tools {
		aRefs := setOf(a.ReferList())
		for j, b := range tools {
			if i == j || len(aRefs) == 0 {
				continue
			}
			for _, ref := range b.ReferList() {
				if aRefs[ref] {
					edges = append(edges, Edge{Source: a.ID, Target: b.ID, RelationType: RelationSharedRef, Weight: WeightSharedRef})
					break
				}
			}
		}
	}

	for i, a := range tools {
		aKw := setOf(a.RoutingKeywordList())
		if len(aKw) == 0 {
			continue
		}
		for j, b := range tools {
			if i == j {
				continue
			}
			bKw := setOf(b.RoutingKeywordList())
			if len(bKw) == 0 {
				continue
			}
			jaccard := jaccardSimilarity(aKw, bKw)
			if jaccard >= KeywordOverlapJaccardMin {
				edges = append(edges, Edge{Source: a.ID, Target: b.ID, RelationType: RelationKeywordOverlap, Weight: jaccard})
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		if edges[i].Target != edges[j].Target {
			return edges[i].Target < edges[j].Target
		}
		return edges[i].RelationType < edges[j].RelationType
	})

	snapshot := &GraphSnapshot{Edges: edges}

	if c.snapshotPath != "" {
		if err := writeSnapshotJSON(c.snapshotPath, snapshot); err != nil {
			return nil, err
		}
	}

	return snapshot, nil
}

func setOf(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func writeSnapshotJSON(path string, snapshot *GraphSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal relationship snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write relationship snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads back a relationship-graph snapshot written by
// BuildRelationshipGraph, round-tripping losslessly.
func LoadSnapshot(path string) (*GraphSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read relationship snapshot: %w", err)
	}
	var snapshot GraphSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse relationship snapshot: %w", err)
	}
	return &snapshot, nil
}

func toolRowToBatchRow(t *store.ToolRow) map[string]any {
	return map[string]any{
		"id":                 t.ID,
		"skill_name":         t.SkillName,
		"command_name":       t.CommandName,
		"tool_name":          t.ToolName,
		"category":           t.Category,
		"description":        t.Description,
		"routing_keywords":   t.RoutingKeywords,
		"intents":            t.Intents,
		"file_path":          t.FilePath,
		"input_schema":       t.InputSchema,
		"skill_tools_refers": t.SkillToolsRefers,
		"embedding":          t.Embedding,
		"metadata":           t.Metadata,
		"created_at":         t.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":         t.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// ToolsSchema is the fixed column schema used when opening the tools table.
func ToolsSchema() store.Schema {
	return store.Schema{
		Table: store.TableTools,
		Columns: []string{
			"id", "skill_name", "command_name", "tool_name", "category",
			"description", "routing_keywords", "intents", "file_path",
			"input_schema", "skill_tools_refers", "embedding", "metadata",
			"created_at", "updated_at",
		},
	}
}
