// Package main provides the entry point for routecored, the MCP stdio
// adapter that exposes the routing core's Search and Route operations to
// AI agent clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/toolmesh/routecore/internal/catalog"
	"github.com/toolmesh/routecore/internal/chunk"
	"github.com/toolmesh/routecore/internal/config"
	"github.com/toolmesh/routecore/internal/embed"
	"github.com/toolmesh/routecore/internal/graph"
	"github.com/toolmesh/routecore/internal/logging"
	"github.com/toolmesh/routecore/internal/mcpserver"
	"github.com/toolmesh/routecore/internal/orchestrator"
	"github.com/toolmesh/routecore/internal/store"
	"github.com/toolmesh/routecore/internal/translate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// The MCP stdio transport owns stdout exclusively for JSON-RPC framing;
	// all diagnostics go to the debug log file, never stdout.
	logCfg := logging.DebugConfig()
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()
	_ = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
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
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer func() { _ = vs.Close() }()

	embedder, err := embed.NewDefaultEmbedder(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	dim := embedder.Dimensions()

	toolsTable, _, err := vs.OpenOrCreate(ctx, store.TableTools, catalog.ToolsSchema(), dim, nil)
	if err != nil {
		return fmt.Errorf("failed to open tools table: %w", err)
	}
	entitiesTable, _, err := vs.OpenOrCreate(ctx, store.TableKGEntities, graph.EntitiesSchema(), dim, nil)
	if err != nil {
		return fmt.Errorf("failed to open knowledge graph entities table: %w", err)
	}
	relationsTable, _, err := vs.OpenOrCreate(ctx, store.TableKGRelation, graph.RelationsSchema(), dim, nil)
	if err != nil {
		return fmt.Errorf("failed to open knowledge graph relations table: %w", err)
	}
	knowledgeTable, _, err := vs.OpenOrCreate(ctx, store.TableKnowledge, chunk.KnowledgeSchema(), dim, nil)
	if err != nil {
		return fmt.Errorf("failed to open knowledge table: %w", err)
	}

	kw, err := store.NewBleveKeywordIndex(filepath.Join(filepath.Dir(storagePath), "bm25"), store.DefaultBM25Config())
	if err != nil {
		return fmt.Errorf("failed to open keyword index: %w", err)
	}
	defer func() { _ = kw.Close() }()

	cat := catalog.NewToolCatalog(toolsTable, kw, embedder, root+"/.routecore/graph_snapshot.json")
	kg := graph.NewKnowledgeGraph(entitiesTable, relationsTable, root+"/.routecore/kg_snapshot.json")
	pipeline := chunk.NewPipeline(knowledgeTable, embedder, chunk.NewTokenChunker(), chunk.DefaultConfig())

	orch := orchestrator.New(toolsTable, kw, embedder, cat, kg, pipeline, translate.NewPassthroughTranslator(nil), orchestrator.Config{
		Kappa:           cfg.Hybrid.Kappa,
		ActiveProfile:   cfg.Search.ActiveProfile,
		SearchCacheSize: cfg.Search.CacheMaxSize,
	})

	srv, err := mcpserver.NewServer(orch)
	if err != nil {
		return fmt.Errorf("failed to build MCP server: %w", err)
	}

	return srv.Serve(ctx)
}
