package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultLogDir(t *testing.T) {
	dir := DefaultLogDir()
	if !strings.Contains(dir, ".routecore") || !strings.Contains(dir, "logs") {
		t.Errorf("DefaultLogDir should contain .routecore/logs, got: %s", dir)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]int{
		"debug":   -4,
		"info":    0,
		"warn":    4,
		"warning": 4,
		"error":   8,
		"bogus":   0,
	}
	for in, want := range cases {
		if got := int(parseLevel(in)); got != want {
			t.Errorf("parseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestSetupWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:         "debug",
		FilePath:      filepath.Join(dir, "server.log"),
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	logger.Info("hello", "key", "value")

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file missing expected message, got: %s", data)
	}
}
