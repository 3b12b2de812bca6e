// Package mcpserver is the thin MCP stdio adapter over Orchestrator. It
// exposes Search and Route verbatim as the only two tools a client sees.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/toolmesh/routecore/internal/logging"
	"github.com/toolmesh/routecore/internal/orchestrator"
	"github.com/toolmesh/routecore/pkg/version"
)

// Server is the MCP server for routecore.
type Server struct {
	mcp    *mcp.Server
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"the search query to execute"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Category string `json:"category,omitempty" jsonschema:"filter results to one tool category"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []HitOutput `json:"results" jsonschema:"ranked list of matching tools"`
}

// HitOutput is one ranked tool match returned to an MCP client.
type HitOutput struct {
	SkillName   string  `json:"skill_name"`
	CommandName string  `json:"command_name"`
	Category    string  `json:"category"`
	Score       float64 `json:"score" jsonschema:"fused, calibrated relevance score between 0 and 1"`
	Confidence  string  `json:"confidence" jsonschema:"high, medium, or low"`
	Preview     string  `json:"preview,omitempty"`
}

// RouteInput defines the input schema for the route tool.
type RouteInput struct {
	Query string `json:"query" jsonschema:"the request to route to a single tool"`
}

// RouteOutput defines the output schema for the route tool.
type RouteOutput struct {
	Routed bool       `json:"routed"`
	Hit    *HitOutput `json:"hit,omitempty"`
}

// NewServer creates a new MCP server wrapping orch.
func NewServer(orch *orchestrator.Orchestrator) (*Server, error) {
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}

	s := &Server{
		orch:   orch,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "routecore",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Hybrid search over the agent tool catalog: dense vector similarity fused with BM25 keyword matching, reranked against the tool relationship and knowledge graphs, with a calibrated confidence band per result.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "route",
		Description: "Route a request to the single best-matching tool. Returns routed=false when no candidate clears the confidence threshold, so the caller can ask a clarifying question instead of guessing.",
	}, s.routeHandler)
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, fmt.Errorf("query is required")
	}

	requestID := uuid.NewString()
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	var category *string
	if input.Category != "" {
		category = &input.Category
	}

	start := time.Now()
	s.logger.Info("mcp search started", slog.String("request_id", requestID), slog.String("query", input.Query))

	hits, err := s.orch.Search(ctx, input.Query, limit, category)
	if err != nil {
		attrs := append([]slog.Attr{slog.String("request_id", requestID)}, logging.ErrorAttrs(err)...)
		s.logger.LogAttrs(ctx, slog.LevelError, "mcp search failed", attrs...)
		return nil, SearchOutput{}, err
	}

	s.logger.Info("mcp search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(hits)))

	return nil, SearchOutput{Results: toHitOutputs(hits)}, nil
}

func (s *Server) routeHandler(ctx context.Context, _ *mcp.CallToolRequest, input RouteInput) (*mcp.CallToolResult, RouteOutput, error) {
	if input.Query == "" {
		return nil, RouteOutput{}, fmt.Errorf("query is required")
	}

	requestID := uuid.NewString()
	s.logger.Info("mcp route started", slog.String("request_id", requestID), slog.String("query", input.Query))

	hit, err := s.orch.Route(ctx, input.Query)
	if err != nil {
		attrs := append([]slog.Attr{slog.String("request_id", requestID)}, logging.ErrorAttrs(err)...)
		s.logger.LogAttrs(ctx, slog.LevelError, "mcp route failed", attrs...)
		return nil, RouteOutput{}, err
	}

	if hit == nil {
		return nil, RouteOutput{Routed: false}, nil
	}

	out := toHitOutputs([]orchestrator.Hit{*hit})[0]
	return nil, RouteOutput{Routed: true, Hit: &out}, nil
}

func toHitOutputs(hits []orchestrator.Hit) []HitOutput {
	out := make([]HitOutput, len(hits))
	for i, h := range hits {
		out[i] = HitOutput{
			SkillName:   h.SkillName,
			CommandName: h.CommandName,
			Category:    h.Category,
			Score:       h.FinalScore,
			Confidence:  string(h.Confidence),
			Preview:     h.ContentPreview,
		}
	}
	return out
}

// Serve runs the MCP server over stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.LogAttrs(ctx, slog.LevelError, "MCP server stopped with error", logging.ErrorAttrs(err)...)
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}
