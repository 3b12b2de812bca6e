package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolmesh/routecore/internal/catalog"
	"github.com/toolmesh/routecore/internal/output"
)

func newReindexCmd() *cobra.Command {
	var manifestDir string

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Reindex skill manifests into the tool catalog",
		Long: `Reindex reads every YAML skill manifest under --manifests, writes tool
rows into the vector and keyword indexes, registers the same tools in the
knowledge graph, and rebuilds the tool relationship graph snapshot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(cmd, manifestDir)
		},
	}

	cmd.Flags().StringVarP(&manifestDir, "manifests", "m", "skills", "Directory of skill manifest YAML files")
	return cmd
}

func runReindex(cmd *cobra.Command, manifestDir string) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	skills, err := catalog.LoadManifestsFromDir(manifestDir)
	if err != nil {
		return fmt.Errorf("failed to load skill manifests: %w", err)
	}

	a, err := openApp(ctx, projectRoot(), offlineFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.Reindex(ctx, skills); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	out.Successf("reindexed %d skills", len(skills))
	return nil
}
