package store

import (
	"regexp"
	"strings"
	"unicode"
)

// identifierPattern matches alphanumeric runs (underscore included so
// snake_case survives the first split).
var identifierPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// splitIdentifiers runs the code-aware tokenizer the Bleve analyzer in
// keyword.go wraps: split on non-identifier runs, then fan each identifier
// out across snake_case and camelCase boundaries, lowercasing and dropping
// anything shorter than two characters.
func splitIdentifiers(text string) []string {
	var tokens []string

	for _, word := range identifierPattern.FindAllString(text, -1) {
		for _, part := range splitCompoundIdentifier(word) {
			lower := strings.ToLower(part)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}

	return tokens
}

// splitCompoundIdentifier breaks a single identifier on snake_case
// underscores, then on camelCase/PascalCase case boundaries within each
// underscore-delimited part.
func splitCompoundIdentifier(token string) []string {
	if !strings.Contains(token, "_") {
		return splitCaseBoundaries(token)
	}

	var result []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			result = append(result, splitCaseBoundaries(part)...)
		}
	}
	return result
}

// splitCaseBoundaries splits camelCase and PascalCase identifiers,
// including acronym runs:
//   - "getUserById"      -> ["get", "User", "By", "Id"]
//   - "HTTPHandler"       -> ["HTTP", "Handler"]
//   - "parseHTTPRequest"  -> ["parse", "HTTP", "Request"]
func splitCaseBoundaries(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// stopWordSet is a case-insensitive membership set. The keyword index's
// analyzer builds one from DefaultCodeStopWords; BM25Config.StopWords is not
// read.
type stopWordSet map[string]struct{}

func newStopWordSet(words []string) stopWordSet {
	set := make(stopWordSet, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

func (s stopWordSet) filter(tokens []string) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, stop := s[strings.ToLower(token)]; !stop {
			result = append(result, token)
		}
	}
	return result
}
