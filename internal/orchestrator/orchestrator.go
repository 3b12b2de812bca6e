// Package orchestrator wires the query-time pipeline (intent, hybrid
// search, relationship rerank, KG rerank, calibration) and the write-path
// collaborators (ToolCatalog, IngestPipeline) behind the stable Search /
// Route / Reindex / Ingest surface the MCP transport and CLI call
// verbatim. Built functional-options style, as a single public surface
// over several internal stages.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/toolmesh/routecore/internal/catalog"
	"github.com/toolmesh/routecore/internal/chunk"
	"github.com/toolmesh/routecore/internal/embed"
	routeerrors "github.com/toolmesh/routecore/internal/errors"
	"github.com/toolmesh/routecore/internal/graph"
	"github.com/toolmesh/routecore/internal/search"
	"github.com/toolmesh/routecore/internal/store"
	"github.com/toolmesh/routecore/internal/translate"
	"github.com/toolmesh/routecore/internal/watch"
)

// Hit is the final, caller-facing result row, assembled from a
// CalibratedHit plus the tool row's descriptive columns.
type Hit struct {
	ID             string
	SkillName      string
	CommandName    string
	Category       string
	FinalScore     float64
	Confidence     search.Confidence
	VectorScore    float64
	KeywordScore   float64
	Keywords       []string
	ContentPreview string
}

// contentPreviewLen bounds how much of a tool's description is echoed back
// in a Hit, keeping responses small over the MCP transport.
const contentPreviewLen = 200

// cacheEntry is the value type of the search-result LRU, keyed by
// (query, weights).
type cacheEntry struct {
	hits []Hit
}

// Orchestrator holds shared, non-owning references to every collaborator
// and the process-wide search-result cache. It does not own the lifetime
// of the store, embedder, or keyword index it is built from.
type Orchestrator struct {
	tools      store.Table
	keyword    store.KeywordIndex
	embedder   embed.Embedder
	catalog    *catalog.ToolCatalog
	kg         *graph.KnowledgeGraph
	ingest     *chunk.Pipeline
	extractor  *search.Extractor
	translator translate.Translator

	kappa   int
	profile search.CalibrationProfile

	embedderBreaker *routeerrors.CircuitBreaker

	mu          sync.RWMutex
	snapshot    *catalog.GraphSnapshot
	resultCache *lru.Cache[string, cacheEntry]
}

// Config carries the construction-time parameters an Orchestrator needs
// beyond its collaborator handles, mirroring internal/config's Search and
// Hybrid sections.
type Config struct {
	Kappa           int
	ActiveProfile   string
	SearchCacheSize int
}

// New builds an Orchestrator over already-open collaborators. kg and
// translator may be nil to disable KG rerank and translation respectively.
func New(tools store.Table, keyword store.KeywordIndex, embedder embed.Embedder, cat *catalog.ToolCatalog, kg *graph.KnowledgeGraph, ingest *chunk.Pipeline, translator translate.Translator, cfg Config) *Orchestrator {
	if cfg.Kappa <= 0 {
		cfg.Kappa = search.DefaultKappa
	}
	cacheSize := cfg.SearchCacheSize
	if cacheSize <= 0 {
		cacheSize = 500
	}
	resultCache, _ := lru.New[string, cacheEntry](cacheSize)

	return &Orchestrator{
		tools:           tools,
		keyword:         keyword,
		embedder:        embedder,
		catalog:         cat,
		kg:              kg,
		ingest:          ingest,
		extractor:       search.NewExtractor(nil, nil, 500),
		translator:      translator,
		kappa:           cfg.Kappa,
		profile:         search.ProfileByName(cfg.ActiveProfile),
		embedderBreaker: routeerrors.NewCircuitBreaker("embedder"),
		resultCache:     resultCache,
	}
}

// Search runs the full pipeline: translate (optional) → intent/weights →
// embed → hybrid fusion → relationship rerank → KG rerank → calibration →
// Hit assembly. Cancellation mid-flight discards partial work and returns
// the context's error; no partial results are ever returned.
func (o *Orchestrator) Search(ctx context.Context, queryText string, k int, category *string) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}

	queryText = o.translateQuery(ctx, queryText)
	weights := o.extractor.Weights(ctx, queryText)

	cacheKey := cacheKeyFor(queryText, weights, category, k)
	if cached, ok := o.resultCache.Get(cacheKey); ok {
		return cached.hits, nil
	}

	queryVector, err := o.embedQuery(ctx, queryText)
	if err != nil {
		// Degraded mode: an embedder failure during search returns empty
		// results rather than propagating the error.
		return []Hit{}, nil
	}

	var categoryFilter *store.Predicate
	if category != nil && *category != "" {
		categoryFilter = &store.Predicate{Column: "category", Value: *category}
	}

	hybrid := search.NewHybridSearch(o.tools, o.keyword, o.kappa)
	fusedHits, err := hybrid.Search(ctx, queryText, queryVector, k, weights, categoryFilter)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("hybrid search failed: %w", err)
	}

	if snapshot := o.graphSnapshot(); snapshot != nil {
		search.ApplyRelationshipRerank(fusedHits, snapshot, search.DefaultAnchorCount)
	}

	if o.kg != nil {
		kgScores, err := o.kg.QueryToolRelevance(ctx, o.extractor.Extract(ctx, queryText).Keywords, 2)
		if err == nil {
			search.ApplyKGRerank(fusedHits, kgScores, float64(weights.KGRerankScale))
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if len(fusedHits) > k {
		fusedHits = fusedHits[:k]
	}

	calibrated := search.Calibrate(fusedHits, o.profile, o.extractor.Extract(ctx, queryText).Keywords, o.candidateAttrs(ctx))

	hits, err := o.assembleHits(ctx, calibrated)
	if err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	o.resultCache.Add(cacheKey, cacheEntry{hits: hits})
	return hits, nil
}

// Route is the thin single-result wrapper: the top hit, or nil if the top
// result is low-confidence with no other candidates at all.
func (o *Orchestrator) Route(ctx context.Context, queryText string) (*Hit, error) {
	hits, err := o.Search(ctx, queryText, 1, nil)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	top := hits[0]
	if top.Confidence == search.ConfidenceLow && len(hits) == 1 {
		return nil, nil
	}
	return &top, nil
}

// Reindex dispatches to ToolCatalog.ReindexAll and also registers every
// command with the KnowledgeGraph, so that registering a skill's tools
// always registers them as KG entities too and KG rerank has entities to
// walk.
func (o *Orchestrator) Reindex(ctx context.Context, skills []catalog.SkillManifest) error {
	if err := o.catalog.ReindexAll(ctx, skills); err != nil {
		return err
	}

	if o.kg != nil {
		for _, skill := range skills {
			for _, cmd := range skill.Commands {
				id := skill.Name + "." + cmd.Name
				if err := o.kg.RegisterSkillTool(ctx, skill.Name, id, cmd.RoutingKeywords); err != nil {
					return fmt.Errorf("failed to register %s in knowledge graph: %w", id, err)
				}
			}
		}
	}

	tools, err := o.scanAllTools(ctx)
	if err != nil {
		return err
	}
	snapshot, err := o.catalog.BuildRelationshipGraph(ctx, tools)
	if err != nil {
		return fmt.Errorf("failed to rebuild relationship graph: %w", err)
	}

	o.mu.Lock()
	o.snapshot = snapshot
	o.mu.Unlock()

	o.resultCache.Purge()
	return nil
}

// Ingest dispatches to the knowledge IngestPipeline.
func (o *Orchestrator) Ingest(ctx context.Context, source, plaintext string) (int, error) {
	n, err := o.ingest.Ingest(ctx, source, plaintext)
	if err == nil {
		o.resultCache.Purge()
	}
	return n, err
}

func (o *Orchestrator) translateQuery(ctx context.Context, queryText string) string {
	if o.translator == nil {
		return queryText
	}
	translated, err := o.translator.Translate(ctx, queryText)
	if err != nil {
		return queryText
	}
	return translated
}

// embedQuery wraps the embedding call in a circuit breaker so a failing
// embedding oracle degrades search rather than retrying indefinitely.
func (o *Orchestrator) embedQuery(ctx context.Context, queryText string) ([]float32, error) {
	return routeerrors.Try(o.embedderBreaker, func() ([]float32, error) {
		return o.embedder.Embed(ctx, queryText)
	}, func() ([]float32, error) {
		return nil, routeerrors.EmbedderError(routeerrors.ErrCircuitOpen)
	})
}

func (o *Orchestrator) graphSnapshot() *catalog.GraphSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshot
}

// candidateAttrs returns the calibration-stage attribute-overlap-promotion
// lookup closure, backed by ProjectScan.
func (o *Orchestrator) candidateAttrs(ctx context.Context) func(id string) []string {
	return func(id string) []string {
		rows, err := o.tools.ProjectScan(ctx, []string{"routing_keywords", "intents"}, &store.Predicate{Column: "id", Value: id})
		if err != nil || len(rows) == 0 {
			return nil
		}
		var out []string
		if rk, ok := rows[0]["routing_keywords"].(string); ok {
			out = append(out, strings.Fields(rk)...)
		}
		if intents, ok := rows[0]["intents"].(string); ok {
			for _, phrase := range strings.Split(intents, "|") {
				out = append(out, strings.Fields(strings.TrimSpace(phrase))...)
			}
		}
		return out
	}
}

// assembleHits loads skill_name/command_name/category/description for each
// calibrated result and builds the caller-facing Hit.
func (o *Orchestrator) assembleHits(ctx context.Context, calibrated []*search.CalibratedHit) ([]Hit, error) {
	hits := make([]Hit, 0, len(calibrated))
	for _, c := range calibrated {
		rows, err := o.tools.ProjectScan(ctx, []string{"skill_name", "command_name", "category", "description"}, &store.Predicate{Column: "id", Value: c.Hit.ID})
		if err != nil {
			return nil, fmt.Errorf("failed to load candidate row for %s: %w", c.Hit.ID, err)
		}
		var skillName, commandName, category, description string
		if len(rows) > 0 {
			skillName, _ = rows[0]["skill_name"].(string)
			commandName, _ = rows[0]["command_name"].(string)
			category, _ = rows[0]["category"].(string)
			description, _ = rows[0]["description"].(string)
		}
		hits = append(hits, Hit{
			ID:             c.Hit.ID,
			SkillName:      skillName,
			CommandName:    commandName,
			Category:       category,
			FinalScore:     c.FinalScore,
			Confidence:     c.Confidence,
			VectorScore:    c.Hit.VectorScore,
			KeywordScore:   c.Hit.KeywordScore,
			Keywords:       c.Hit.MatchedTerms,
			ContentPreview: preview(description),
		})
	}
	return hits, nil
}

func (o *Orchestrator) scanAllTools(ctx context.Context) ([]*store.ToolRow, error) {
	rows, err := o.tools.ProjectScan(ctx, []string{
		"id", "skill_name", "command_name", "tool_name", "category",
		"description", "routing_keywords", "intents", "file_path",
		"input_schema", "skill_tools_refers",
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to scan tools table: %w", err)
	}
	out := make([]*store.ToolRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, &store.ToolRow{
			ID:               asStr(r["id"]),
			SkillName:        asStr(r["skill_name"]),
			CommandName:      asStr(r["command_name"]),
			ToolName:         asStr(r["tool_name"]),
			Category:         asStr(r["category"]),
			Description:      asStr(r["description"]),
			RoutingKeywords:  asStr(r["routing_keywords"]),
			Intents:          asStr(r["intents"]),
			FilePath:         asStr(r["file_path"]),
			InputSchema:      asStr(r["input_schema"]),
			SkillToolsRefers: asStr(r["skill_tools_refers"]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func asStr(v any) string {
	s, _ := v.(string)
	return s
}

func preview(description string) string {
	if len(description) <= contentPreviewLen {
		return description
	}
	return description[:contentPreviewLen]
}

// Stats reports operability counters for the core.
type Stats struct {
	ToolCount       int
	KeywordStats    *store.IndexStats
	ActiveProfile   string
	SearchCacheSize int
	EmbedCacheStats *embed.CacheStats
}

// Stats returns a snapshot of current table counts, keyword-index
// statistics, and the active calibration profile. EmbedCacheStats is nil
// unless the embedder is wrapped in a CachedEmbedder (the default, offline
// static embedders included).
func (o *Orchestrator) Stats(ctx context.Context) (*Stats, error) {
	count, err := o.tools.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count tools table: %w", err)
	}
	s := &Stats{
		ToolCount:       count,
		KeywordStats:    o.keyword.Stats(),
		ActiveProfile:   profileName(o.profile),
		SearchCacheSize: o.resultCache.Len(),
	}
	if cached, ok := o.embedder.(*embed.CachedEmbedder); ok {
		stats := cached.CacheStats()
		s.EmbedCacheStats = &stats
	}
	return s, nil
}

func profileName(p search.CalibrationProfile) string {
	for name, candidate := range search.Profiles {
		if candidate == p {
			return name
		}
	}
	return "custom"
}

// Watch runs an fsnotify watch on skillManifestDir and knowledgeDir,
// debounced into Reindex/Ingest calls.
// loadSkills re-derives the full skill-manifest set on any manifest-dir
// change (manifests are small and whole-file reloads are simplest to keep
// correct). Blocks until ctx is cancelled.
func (o *Orchestrator) Watch(ctx context.Context, skillManifestDir, knowledgeDir string, loadSkills func() ([]catalog.SkillManifest, error)) error {
	watchers := make([]*watch.Watcher, 0, 2)
	defer func() {
		for _, w := range watchers {
			_ = w.Stop()
		}
	}()

	var skillEvents, knowledgeEvents <-chan []watch.Event

	if skillManifestDir != "" {
		w, err := watch.New(skillManifestDir, watch.DefaultDebounceWindow)
		if err != nil {
			return fmt.Errorf("failed to watch skill manifest directory: %w", err)
		}
		watchers = append(watchers, w)
		go w.Run(ctx)
		skillEvents = w.Events()
	}
	if knowledgeDir != "" {
		w, err := watch.New(knowledgeDir, watch.DefaultDebounceWindow)
		if err != nil {
			return fmt.Errorf("failed to watch knowledge directory: %w", err)
		}
		watchers = append(watchers, w)
		go w.Run(ctx)
		knowledgeEvents = w.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-skillEvents:
			if !ok {
				skillEvents = nil
				continue
			}
			skills, err := loadSkills()
			if err != nil {
				continue
			}
			_ = o.Reindex(ctx, skills)
		case batch, ok := <-knowledgeEvents:
			if !ok {
				knowledgeEvents = nil
				continue
			}
			for _, ev := range batch {
				if ev.Operation == watch.OpDelete {
					_, _ = o.Ingest(ctx, ev.Path, "")
					continue
				}
				data, err := readFile(ev.Path)
				if err != nil {
					continue
				}
				_, _ = o.Ingest(ctx, ev.Path, data)
			}
		}
	}
}

// cacheKeyFor builds the search-result cache key, keyed by (query,
// weights) and folding in category and k since they also partition the
// result set.
func cacheKeyFor(queryText string, weights search.FusionWeights, category *string, k int) string {
	cat := ""
	if category != nil {
		cat = *category
	}
	return fmt.Sprintf("%s|%d|%s|%.3f|%.3f|%.3f|%.3f|%.3f",
		queryText, k, cat,
		weights.VectorWeight, weights.KeywordWeight, weights.ZKProximityScale,
		weights.ZKEntityScale, weights.KGRerankScale)
}
