package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupRetention caps how many rotated config snapshots survive a backup
// cycle; backupExt marks the rotated files apart from the live config.
const (
	backupRetention = 3
	backupExt       = ".bak"
)

// SnapshotUserConfig writes a timestamped copy of the user config next to
// it (config.yaml.bak.<timestamp>) before any destructive rewrite, then
// prunes anything past backupRetention. Returns "" with no error when
// there is no config to snapshot yet.
func SnapshotUserConfig() (string, error) {
	configPath := GetUserConfigPath()
	if !UserConfigExists() {
		return "", nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	snapshotPath := configPath + backupExt + "." + time.Now().Format("20060102-150405")
	if err := os.WriteFile(snapshotPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := pruneUserConfigSnapshots(); err != nil {
		return snapshotPath, fmt.Errorf("backup written but prune failed: %w", err)
	}
	return snapshotPath, nil
}

// ListUserConfigSnapshots returns every rotated config backup, newest
// modification time first.
func ListUserConfigSnapshots() ([]string, error) {
	configPath := GetUserConfigPath()
	dir := filepath.Dir(configPath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	prefix := filepath.Base(configPath) + backupExt + "."
	var snapshots []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			snapshots = append(snapshots, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshotModTime(snapshots[i]).After(snapshotModTime(snapshots[j]))
	})
	return snapshots, nil
}

func snapshotModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// pruneUserConfigSnapshots removes every snapshot past backupRetention,
// oldest first. Best-effort: one failed removal doesn't stop the rest.
func pruneUserConfigSnapshots() error {
	snapshots, err := ListUserConfigSnapshots()
	if err != nil {
		return err
	}
	if len(snapshots) <= backupRetention {
		return nil
	}

	var firstErr error
	for _, stale := range snapshots[backupRetention:] {
		if err := os.Remove(stale); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RestoreUserConfigFrom overwrites the live user config with snapshotPath's
// contents, snapshotting whatever config is currently live first so the
// restore itself is reversible.
func RestoreUserConfigFrom(snapshotPath string) error {
	if _, err := os.Stat(snapshotPath); err != nil {
		return fmt.Errorf("backup file not found: %w", err)
	}

	if UserConfigExists() {
		if _, err := SnapshotUserConfig(); err != nil {
			return fmt.Errorf("failed to snapshot current config before restore: %w", err)
		}
	}

	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	if err := os.MkdirAll(GetUserConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(GetUserConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}
	return nil
}
