package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolmesh/routecore/internal/output"
)

func newRouteCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "route <query>",
		Short: "Route a query to the single best-matching tool",
		Long: `Route runs the same hybrid search as 'search' but returns only the top
result, and only when its calibrated confidence clears the routing
threshold. Ambiguous or low-confidence queries return nothing so a calling
agent can fall back to asking a clarifying question.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runRoute(cmd, query, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runRoute(cmd *cobra.Command, query, format string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, projectRoot(), offlineFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	hit, err := a.orch.Route(ctx, query)
	if err != nil {
		return fmt.Errorf("route failed: %w", err)
	}

	out := output.New(cmd.OutOrStdout())
	if hit == nil {
		if format == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(map[string]any{"routed": false})
		}
		out.Warning("no confident route for this query")
		return nil
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hit)
	}

	out.Hit(1, hit.SkillName, hit.CommandName, hit.FinalScore, string(hit.Confidence), hit.ContentPreview)
	return nil
}
