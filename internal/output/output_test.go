package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Success_IncludesMessage(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Success("indexed 3 tools")
	assert.Contains(t, buf.String(), "indexed 3 tools")
}

func TestWriter_Hit_FormatsRankScoreAndConfidence(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Hit(1, "git_tools", "commit", 0.8421, "high", "Create a git commit")

	out := buf.String()
	assert.True(t, strings.Contains(out, "git_tools.commit"))
	assert.True(t, strings.Contains(out, "confidence=high"))
	assert.True(t, strings.Contains(out, "Create a git commit"))
}

func TestWriter_Hit_OmitsPreviewLineWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Hit(2, "doc_tools", "search", 0.1, "low", "")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}
