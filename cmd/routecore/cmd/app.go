// Package cmd provides the CLI commands for the routecore binary.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/toolmesh/routecore/internal/catalog"
	"github.com/toolmesh/routecore/internal/chunk"
	"github.com/toolmesh/routecore/internal/config"
	"github.com/toolmesh/routecore/internal/embed"
	"github.com/toolmesh/routecore/internal/graph"
	"github.com/toolmesh/routecore/internal/orchestrator"
	"github.com/toolmesh/routecore/internal/store"
	"github.com/toolmesh/routecore/internal/translate"
)

// app bundles everything a CLI command needs plus the handles that must be
// closed when the command returns.
type app struct {
	cfg  *config.Config
	orch *orchestrator.Orchestrator
	vs   store.VectorStore
	kw   store.KeywordIndex
}

func (a *app) Close() {
	if a.kw != nil {
		_ = a.kw.Close()
	}
	if a.vs != nil {
		_ = a.vs.Close()
	}
}

// openApp wires the full Orchestrator dependency graph against the config
// found at (or defaulted for) root. offline forces the static embedder,
// used for tests and environments without a remote embedding provider.
func openApp(ctx context.Context, root string, offline bool) (*app, error) {
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	storagePath := cfg.Vector.StoragePath
	if !filepath.IsAbs(storagePath) {
		storagePath = filepath.Join(root, storagePath)
	}

	vs, err := store.Get(storagePath, cfg.Vector.MaxCachedTables, cfg.Vector.IndexCacheSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	var embedder embed.Embedder
	if offline {
		embedder = embed.NewStaticEmbedder()
	} else {
		embedder, err = embed.NewDefaultEmbedder(ctx)
		if err != nil {
			_ = vs.Close()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}

	dim := embedder.Dimensions()

	toolsTable, _, err := vs.OpenOrCreate(ctx, store.TableTools, catalog.ToolsSchema(), dim, nil)
	if err != nil {
		_ = vs.Close()
		return nil, fmt.Errorf("failed to open tools table: %w", err)
	}

	entitiesTable, _, err := vs.OpenOrCreate(ctx, store.TableKGEntities, graph.EntitiesSchema(), dim, nil)
	if err != nil {
		_ = vs.Close()
		return nil, fmt.Errorf("failed to open knowledge graph entities table: %w", err)
	}
	relationsTable, _, err := vs.OpenOrCreate(ctx, store.TableKGRelation, graph.RelationsSchema(), dim, nil)
	if err != nil {
		_ = vs.Close()
		return nil, fmt.Errorf("failed to open knowledge graph relations table: %w", err)
	}
	knowledgeTable, _, err := vs.OpenOrCreate(ctx, store.TableKnowledge, chunk.KnowledgeSchema(), dim, nil)
	if err != nil {
		_ = vs.Close()
		return nil, fmt.Errorf("failed to open knowledge table: %w", err)
	}

	kwPath := filepath.Join(filepath.Dir(storagePath), "bm25")
	kw, err := store.NewBleveKeywordIndex(kwPath, store.DefaultBM25Config())
	if err != nil {
		_ = vs.Close()
		return nil, fmt.Errorf("failed to open keyword index: %w", err)
	}

	snapshotPath := filepath.Join(root, ".routecore", "graph_snapshot.json")
	cat := catalog.NewToolCatalog(toolsTable, kw, embedder, snapshotPath)
	kg := graph.NewKnowledgeGraph(entitiesTable, relationsTable, filepath.Join(root, ".routecore", "kg_snapshot.json"))
	pipeline := chunk.NewPipeline(knowledgeTable, embedder, chunk.NewTokenChunker(), chunk.DefaultConfig())

	orch := orchestrator.New(toolsTable, kw, embedder, cat, kg, pipeline, translate.NewPassthroughTranslator(nil), orchestrator.Config{
		Kappa:           cfg.Hybrid.Kappa,
		ActiveProfile:   cfg.Search.ActiveProfile,
		SearchCacheSize: cfg.Search.CacheMaxSize,
	})

	return &app{cfg: cfg, orch: orch, vs: vs, kw: kw}, nil
}

// projectRoot walks up looking for a routecore marker, falling back to the
// working directory.
func projectRoot() string {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return root
}
