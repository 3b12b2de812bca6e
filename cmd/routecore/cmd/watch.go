package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolmesh/routecore/internal/catalog"
	"github.com/toolmesh/routecore/internal/output"
)

func newWatchCmd() *cobra.Command {
	var manifestDir, knowledgeDir string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch skill manifest and knowledge directories for changes",
		Long: `Watch runs until interrupted, triggering a Reindex whenever a skill
manifest file changes and an incremental Ingest/removal whenever a
knowledge document is added, edited, or deleted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, manifestDir, knowledgeDir)
		},
	}

	cmd.Flags().StringVarP(&manifestDir, "manifests", "m", "skills", "Directory of skill manifest YAML files")
	cmd.Flags().StringVarP(&knowledgeDir, "knowledge", "k", "docs", "Directory of knowledge documents")
	return cmd
}

func runWatch(cmd *cobra.Command, manifestDir, knowledgeDir string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, projectRoot(), offlineFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	out := output.New(cmd.OutOrStdout())
	out.Statusf("👀", "watching %s and %s for changes", manifestDir, knowledgeDir)

	err = a.orch.Watch(ctx, manifestDir, knowledgeDir, func() ([]catalog.SkillManifest, error) {
		return catalog.LoadManifestsFromDir(manifestDir)
	})
	if err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}
