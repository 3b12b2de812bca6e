package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolmesh/routecore/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog and index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, projectRoot(), offlineFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.orch.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect stats: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "tools indexed:      %d", stats.ToolCount)
	out.Statusf("", "active profile:     %s", stats.ActiveProfile)
	out.Statusf("", "search cache size:  %d", stats.SearchCacheSize)
	if stats.KeywordStats != nil {
		out.Statusf("", "keyword docs:       %d", stats.KeywordStats.DocumentCount)
	}
	if stats.EmbedCacheStats != nil {
		out.Statusf("", "embed cache:        %d/%d entries, %.0f%% hit rate",
			stats.EmbedCacheStats.Entries, stats.EmbedCacheStats.Size, stats.EmbedCacheStats.HitRate()*100)
	}
	return nil
}
