package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	routeerrors "github.com/toolmesh/routecore/internal/errors"
	"github.com/toolmesh/routecore/internal/logging"
	"github.com/toolmesh/routecore/pkg/version"
)

var (
	offlineFlag   bool
	debugFlag     bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the routecore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routecore",
		Short: "Hybrid retrieval and routing core for AI agent tool platforms",
		Long: `routecore combines dense vector search and sparse keyword search over a
catalog of agent tool descriptions, fuses them with weighted Reciprocal Rank
Fusion, reranks with a knowledge graph, and calibrates a confidence band for
the result.`,
		Version: version.Version,
	}
	cmd.SetVersionTemplate("routecore version {{.Version}}\n")
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	cmd.PersistentFlags().BoolVar(&offlineFlag, "offline", false, "Use the static embedder instead of a remote embedding provider")
	cmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		if !debugFlag {
			return nil
		}
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return err
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		return nil
	}
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
		return nil
	}

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRouteCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command, printing a user-facing rendering of any
// failure (with a technical cause line under --debug) instead of cobra's
// default bare error dump.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, routeerrors.FormatForUser(err, debugFlag))
	}
	return err
}
