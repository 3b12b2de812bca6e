package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func writeSnapshotJSON(path string, snapshot Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge graph snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write knowledge graph snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads back a knowledge-graph snapshot written by Save,
// round-tripping losslessly.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge graph snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge graph snapshot: %w", err)
	}
	return &snapshot, nil
}
