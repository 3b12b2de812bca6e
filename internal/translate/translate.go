// Package translate implements the optional query-translation boundary:
// translate_to_english(query) -> String, called at orchestrator entry
// before intent extraction when enabled. When disabled, or when the
// query is already English (heuristic: >=95% ASCII alnum), it's a
// pass-through. The oracle interface is a narrow, swappable
// external-collaborator boundary, the same shape as embed.Embedder.
package translate

import "context"

// asciiAlnumThreshold is the fraction of ASCII letters/digits/space above
// which a query is treated as already English and left untouched.
const asciiAlnumThreshold = 0.95

// Translator maps a query string into English. Implementations call out to
// an external oracle; the core never assumes a specific provider.
type Translator interface {
	Translate(ctx context.Context, query string) (string, error)
}

// PassthroughTranslator wraps another Translator but skips the call
// entirely when the query already looks like English. A nil Oracle
// makes every call a no-op pass-through, which is the "disabled"
// configuration.
type PassthroughTranslator struct {
	Oracle Translator
}

// NewPassthroughTranslator builds a PassthroughTranslator delegating to
// oracle. oracle may be nil to disable translation outright.
func NewPassthroughTranslator(oracle Translator) *PassthroughTranslator {
	return &PassthroughTranslator{Oracle: oracle}
}

// Translate returns query unchanged when oracle is nil or the query is
// already predominantly ASCII alphanumeric; otherwise it delegates to the
// oracle.
func (t *PassthroughTranslator) Translate(ctx context.Context, query string) (string, error) {
	if t.Oracle == nil || isLikelyEnglish(query) {
		return query, nil
	}
	return t.Oracle.Translate(ctx, query)
}

// isLikelyEnglish applies an ASCII-alnum heuristic over non-space runes:
// empty strings count as English (nothing to translate).
func isLikelyEnglish(query string) bool {
	total := 0
	asciiAlnum := 0
	for _, r := range query {
		if r == ' ' || r == '\t' || r == '\n' {
			continue
		}
		total++
		if isASCIIAlnum(r) {
			asciiAlnum++
		}
	}
	if total == 0 {
		return true
	}
	return float64(asciiAlnum)/float64(total) >= asciiAlnumThreshold
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
