package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolmesh/routecore/internal/config"
	"github.com/toolmesh/routecore/internal/output"
)

// newConfigCmd groups maintenance operations over the user config file
// (~/.config/routecore/config.yaml) that don't belong under any single
// search/index command: listing and restoring the rotated .bak snapshots
// SnapshotUserConfig writes before a risky rewrite.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage the user configuration file",
	}
	cmd.AddCommand(newConfigBackupCmd())
	cmd.AddCommand(newConfigListBackupsCmd())
	cmd.AddCommand(newConfigRestoreCmd())
	return cmd
}

func newConfigBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the current user config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.SnapshotUserConfig()
			if err != nil {
				return fmt.Errorf("failed to back up config: %w", err)
			}
			out := output.New(cmd.OutOrStdout())
			if path == "" {
				out.Statusf("", "no user config found, nothing to back up")
				return nil
			}
			out.Statusf("", "backed up config to %s", path)
			return nil
		},
	}
}

func newConfigListBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-backups",
		Short: "List config backup snapshots, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backups, err := config.ListUserConfigSnapshots()
			if err != nil {
				return fmt.Errorf("failed to list backups: %w", err)
			}
			out := output.New(cmd.OutOrStdout())
			if len(backups) == 0 {
				out.Statusf("", "no config backups found")
				return nil
			}
			for _, b := range backups {
				out.Statusf("", "%s", b)
			}
			return nil
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-path>",
		Short: "Restore the user config from a backup snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.RestoreUserConfigFrom(args[0]); err != nil {
				return fmt.Errorf("failed to restore config: %w", err)
			}
			out := output.New(cmd.OutOrStdout())
			out.Statusf("", "restored config from %s", args[0])
			return nil
		},
	}
}
