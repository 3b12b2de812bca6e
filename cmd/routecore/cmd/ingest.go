package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolmesh/routecore/internal/output"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a plaintext or markdown document into the knowledge base",
		Long: `Ingest reads a file, splits it into overlapping token-bounded chunks, and
embeds each chunk into the knowledge table so it can surface in search
results alongside catalog tools.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0])
		},
	}
	return cmd
}

func runIngest(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	a, err := openApp(ctx, projectRoot(), offlineFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.orch.Ingest(ctx, path, string(data))
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	output.New(cmd.OutOrStdout()).Successf("ingested %d chunks from %s", n, path)
	return nil
}
