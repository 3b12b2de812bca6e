// Package catalog ingests skill manifests into the tools table and its
// keyword index, and derives the relationship graph between tools.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CommandSpec is one command attached to a skill, as supplied by the
// skill-manifest loader.
type CommandSpec struct {
	Name            string            `yaml:"name"`
	ToolName        string            `yaml:"tool_name"`
	Category        string            `yaml:"category"`
	Description     string            `yaml:"description"`
	RoutingKeywords []string          `yaml:"routing_keywords"`
	Intents         []string          `yaml:"intents"`
	FilePath        string            `yaml:"file_path"`
	InputSchema     string            `yaml:"input_schema"`
	Refers          []string          `yaml:"refers"`
	Metadata        map[string]string `yaml:"metadata"`
}

// SkillManifest groups the commands belonging to one skill.
type SkillManifest struct {
	Name     string        `yaml:"name"`
	Commands []CommandSpec `yaml:"commands"`
}

// LoadManifestsFromDir reads every *.yaml/*.yml file directly under dir as a
// SkillManifest, in the same load-and-unmarshal idiom the core config
// package uses for .routecore.yaml. A directory entry that fails to parse
// aborts the whole load rather than silently skipping a malformed skill.
func LoadManifestsFromDir(dir string) ([]SkillManifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read skill manifest dir %s: %w", dir, err)
	}

	var manifests []SkillManifest
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read skill manifest %s: %w", path, err)
		}

		var m SkillManifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse skill manifest %s: %w", path, err)
		}
		if m.Name == "" {
			m.Name = strings.TrimSuffix(entry.Name(), ext)
		}
		manifests = append(manifests, m)
	}

	return manifests, nil
}

// EdgeRelationType names the family of a relationship-graph edge.
type EdgeRelationType string

const (
	RelationSameSkill      EdgeRelationType = "SAME_SKILL"
	RelationSharedRef      EdgeRelationType = "SHARED_REF"
	RelationKeywordOverlap EdgeRelationType = "KEYWORD_OVERLAP"
)

// Default edge weights.
const (
	WeightSameSkill           = 0.6
	WeightSharedRef           = 0.8
	KeywordOverlapJaccardMin  = 0.3
)

// Edge is one directed weighted edge of the tool relationship graph.
type Edge struct {
	Source       string           `json:"source"`
	Target       string           `json:"target"`
	RelationType EdgeRelationType `json:"relation_type"`
	Weight       float64          `json:"weight"`
}

// GraphSnapshot is the tool relationship graph, stable-sorted by
// (src, dst, relation_type) so repeated builds over the same tools produce
// a bit-identical snapshot.
type GraphSnapshot struct {
	Edges     []Edge    `json:"edges"`
	BuiltAt   time.Time `json:"built_at"`
}

// OutgoingWeights sums edge weights from src to dst across all relation
// families, used by RelationshipRerank's anchor-to-candidate scoring.
func (g *GraphSnapshot) OutgoingWeights(anchors map[string]bool) map[string]float64 {
	totals := make(map[string]float64)
	for _, e := range g.Edges {
		if anchors[e.Source] {
			totals[e.Target] += e.Weight
		}
	}
	return totals
}
