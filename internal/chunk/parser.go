package chunk

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Node is a minimal AST node: just enough of tree-sitter's node to find
// boundary positions, not to extract symbol bodies.
type Node struct {
	Type      string
	StartLine int // 0-indexed
	EndLine   int // 0-indexed, inclusive
	Children  []*Node
}

// Parser wraps tree-sitter for the single purpose boundaryEndLinesInBlock
// needs: locating the end lines of top-level function/method/class nodes
// inside one fenced code block.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser builds a Parser over the default language registry.
func NewParser() *Parser {
	return &Parser{parser: sitter.NewParser(), registry: DefaultRegistry()}
}

// Parse parses source into a boundary-node tree for language (a fenced
// code block's language tag). Returns an error for unsupported languages;
// callers treat that as "no boundary detection available" and fall back to
// the whole-block safe point.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Node, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}
	p.parser.SetLanguage(tsLang)

	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("failed to parse source: nil tree")
	}
	return convertNode(tree.RootNode()), nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

func convertNode(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}
	node := &Node{
		Type:      tsNode.Type(),
		StartLine: int(tsNode.StartPoint().Row),
		EndLine:   int(tsNode.EndPoint().Row),
		Children:  make([]*Node, 0, int(tsNode.ChildCount())),
	}
	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		if child := tsNode.Child(int(i)); child != nil {
			node.Children = append(node.Children, convertNode(child))
		}
	}
	return node
}

// BoundaryEndLines recursively collects the end-line of every node whose
// type is in types, so a code sample is never split mid-function.
func (n *Node) BoundaryEndLines(types map[string]bool) []int {
	var lines []int
	n.walk(func(node *Node) {
		if types[node.Type] {
			lines = append(lines, node.EndLine)
		}
	})
	return lines
}

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, child := range n.Children {
		child.walk(fn)
	}
}
