package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig names the node types that mark a top-level, unsplittable
// boundary for one language's tree-sitter grammar.
type LanguageConfig struct {
	Name          string
	Extensions    []string
	FunctionTypes []string
	MethodTypes   []string
	ClassTypes    []string
}

// BoundaryTypes is every node type boundaryEndLinesInBlock treats as a
// safe-to-split-after unit: a fenced code block is never cut in the middle
// of one of these nodes.
func (c *LanguageConfig) BoundaryTypes() []string {
	out := make([]string, 0, len(c.FunctionTypes)+len(c.MethodTypes)+len(c.ClassTypes))
	out = append(out, c.FunctionTypes...)
	out = append(out, c.MethodTypes...)
	out = append(out, c.ClassTypes...)
	return out
}

// LanguageRegistry maps fenced-code-block language tags to tree-sitter
// grammars and their boundary node types.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry builds a registry pre-populated with the languages
// routecore's documentation corpus is expected to embed as fenced code
// blocks.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		tsLanguages: make(map[string]*sitter.Language),
	}
	r.register(&LanguageConfig{
		Name:          "go",
		Extensions:    []string{".go"},
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_declaration"},
	}, golang.GetLanguage())
	r.register(&LanguageConfig{
		Name:          "typescript",
		Extensions:    []string{".ts"},
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
	}, typescript.GetLanguage())
	r.register(&LanguageConfig{
		Name:          "tsx",
		Extensions:    []string{".tsx"},
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
	}, tsx.GetLanguage())
	r.register(&LanguageConfig{
		Name:          "javascript",
		Extensions:    []string{".js", ".mjs"},
		FunctionTypes: []string{"function_declaration", "function"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
	}, javascript.GetLanguage())
	r.register(&LanguageConfig{
		Name:          "python",
		Extensions:    []string{".py"},
		FunctionTypes: []string{"function_definition"},
		ClassTypes:    []string{"class_definition"},
	}, python.GetLanguage())
	return r
}

func (r *LanguageRegistry) register(cfg *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	r.tsLanguages[cfg.Name] = tsLang
}

// GetByName returns the language's boundary config by its fenced-code-block
// tag (e.g. "go", "python"), normalized to lowercase.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[strings.ToLower(name)]
	return cfg, ok
}

// GetTreeSitterLanguage returns the tree-sitter grammar for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[strings.ToLower(name)]
	return lang, ok
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the package-wide language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
