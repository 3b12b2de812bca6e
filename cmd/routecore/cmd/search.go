package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/toolmesh/routecore/internal/browser"
	"github.com/toolmesh/routecore/internal/output"
)

type searchOptions struct {
	limit    int
	category string
	format   string // "text", "json"
	browse   bool
}

func isOutputTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the tool catalog",
		Long: `Search the indexed tool catalog using hybrid search: dense vector
similarity and sparse keyword matching fused with weighted Reciprocal Rank
Fusion, reranked against the tool relationship graph and knowledge graph.

Examples:
  routecore search "commit my changes"
  routecore search "show the diff" --category vcs --limit 5
  routecore search "search docs" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.category, "category", "c", "", "Filter by tool category")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.browse, "watch", false, "Open an interactive result browser instead of printing a list")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, projectRoot(), offlineFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	var category *string
	if opts.category != "" {
		category = &opts.category
	}

	hits, err := a.orch.Search(ctx, query, opts.limit, category)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if opts.browse {
		if f, ok := cmd.OutOrStdout().(*os.File); ok && isOutputTTY(f) {
			result, err := browser.Run(hits)
			if err != nil {
				return err
			}
			if result.Selected != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s.%s\n", result.Selected.SkillName, result.Selected.CommandName)
			}
			return nil
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "--watch requires a terminal; falling back to text output")
	}

	out := output.New(cmd.OutOrStdout())
	if len(hits) == 0 {
		out.Warning("no matching tools found")
		return nil
	}
	for i, h := range hits {
		out.Hit(i+1, h.SkillName, h.CommandName, h.FinalScore, string(h.Confidence), h.ContentPreview)
	}
	return nil
}
