package chunk

import (
	"context"
	"regexp"
	"strings"
)

var fenceLine = regexp.MustCompile("^```([A-Za-z0-9_+-]*)\\s*$")

type codeBlock struct {
	startLine int // fence-open line, 0-indexed
	endLine   int // fence-close line, 0-indexed
	language  string
}

// TokenChunker is the token-aware splitter. It treats the document as a
// sequence of lines, budgets by an approximate token count per line
// (whitespace-separated words), and refuses to cut inside a fenced code
// block except at a tree-sitter-verified function/method/class boundary
// or the block's closing fence.
type TokenChunker struct {
	parser   *Parser
	registry *LanguageRegistry
}

// NewTokenChunker builds a TokenChunker over the default language registry.
func NewTokenChunker() *TokenChunker {
	return &TokenChunker{parser: NewParser(), registry: DefaultRegistry()}
}

// Close releases the underlying tree-sitter parser.
func (c *TokenChunker) Close() {
	c.parser.Close()
}

// Split implements Splitter.
func (c *TokenChunker) Split(ctx context.Context, text string, cfg Config) ([]TokenChunk, error) {
	if cfg.ChunkSizeTokens <= 0 {
		cfg.ChunkSizeTokens = DefaultChunkSizeTokens
	}
	if cfg.OverlapTokens < 0 || cfg.OverlapTokens >= cfg.ChunkSizeTokens {
		cfg.OverlapTokens = 0
	}

	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")

	blocks := findFencedCodeBlocks(lines)
	safeAfter := c.buildSafeCutSet(ctx, lines, blocks)

	cumulative := make([]int, len(lines)+1)
	for i, line := range lines {
		cumulative[i+1] = cumulative[i] + len(strings.Fields(line))
	}

	var chunks []TokenChunk
	start := 0
	chunkIndex := 0
	for start < len(lines) {
		cut := findCut(cumulative, start, cfg.ChunkSizeTokens, len(lines)-1)
		cut = advanceToSafeCut(cut, len(lines)-1, safeAfter)

		chunks = append(chunks, TokenChunk{
			Text:       strings.Join(lines[start:cut+1], "\n"),
			ChunkIndex: chunkIndex,
			StartLine:  start,
			EndLine:    cut,
		})
		chunkIndex++

		if cut >= len(lines)-1 {
			break
		}

		nextStart := findOverlapStart(cumulative, cut, cfg.OverlapTokens, start)
		if nextStart <= start {
			nextStart = cut + 1
		}
		start = nextStart
	}

	return chunks, nil
}

// findCut returns the first 0-indexed line at which the token budget
// starting at `start` is met, or `maxLine` if the document runs out first.
func findCut(cumulative []int, start, budget, maxLine int) int {
	base := cumulative[start]
	for line := start; line < maxLine; line++ {
		if cumulative[line+1]-base >= budget {
			return line
		}
	}
	return maxLine
}

// findOverlapStart walks backward from `cut` to find where the next
// chunk's window should begin so it overlaps the previous chunk by
// approximately `overlap` tokens.
func findOverlapStart(cumulative []int, cut, overlap, minStart int) int {
	target := cumulative[cut+1] - overlap
	for line := cut; line >= minStart; line-- {
		if cumulative[line] <= target {
			return line
		}
	}
	return minStart
}

// advanceToSafeCut nudges a candidate cut line forward to the nearest
// line marked safe, never past the end of the document.
func advanceToSafeCut(cut, maxLine int, safeAfter map[int]bool) int {
	for cut < maxLine && !safeAfter[cut] {
		cut++
	}
	return cut
}

func findFencedCodeBlocks(lines []string) []codeBlock {
	var blocks []codeBlock
	open := -1
	lang := ""
	for i, line := range lines {
		m := fenceLine.FindStringSubmatch(strings.TrimRight(line, " \t\r"))
		if m == nil {
			continue
		}
		if open < 0 {
			open = i
			lang = m[1]
			continue
		}
		blocks = append(blocks, codeBlock{startLine: open, endLine: i, language: lang})
		open = -1
		lang = ""
	}
	return blocks
}

// buildSafeCutSet marks every line that is safe to end a chunk on: every
// line outside a fenced code block, plus (inside a block) the closing
// fence line and any tree-sitter-verified boundary node's end line.
func (c *TokenChunker) buildSafeCutSet(ctx context.Context, lines []string, blocks []codeBlock) map[int]bool {
	safe := make(map[int]bool, len(lines))
	inBlock := make(map[int]codeBlock, 0)
	for _, b := range blocks {
		for l := b.startLine; l <= b.endLine; l++ {
			inBlock[l] = b
		}
	}
	for i := range lines {
		if _, blocked := inBlock[i]; !blocked {
			safe[i] = true
		}
	}
	for _, b := range blocks {
		safe[b.endLine] = true
		for _, l := range c.boundaryEndLinesInBlock(ctx, lines, b) {
			safe[l] = true
		}
	}
	return safe
}

func (c *TokenChunker) boundaryEndLinesInBlock(ctx context.Context, lines []string, b codeBlock) []int {
	cfg, ok := c.registry.GetByName(b.language)
	if !ok {
		return nil
	}
	contentLines := lines[b.startLine+1 : b.endLine]
	if len(contentLines) == 0 {
		return nil
	}
	source := []byte(strings.Join(contentLines, "\n"))
	root, err := c.parser.Parse(ctx, source, b.language)
	if err != nil {
		return nil
	}

	types := make(map[string]bool, len(cfg.BoundaryTypes()))
	for _, t := range cfg.BoundaryTypes() {
		types[t] = true
	}

	var out []int
	for _, rel := range root.BoundaryEndLines(types) {
		out = append(out, b.startLine+1+rel)
	}
	return out
}
