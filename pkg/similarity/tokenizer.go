package similarity

import (
	"slices"
	"unicode"
)

var commonIssues = map[rune]rune{
	'ö': 'o',
	'ä': 'a',
	'å': 'a',
	'é': 'e',
	'è': 'e',
	'ê': 'e',
	'ë': 'e',
	'ï': 'i',
	'î': 'i',
	'ô': 'o',
	'ü': 'u',
	'û': 'u',
	'ÿ': 'y',
	'ç': 'c',
	'ñ': 'n',
	'ß': 's',
	'æ': 'a',
	'ø': 'o',
	'Ø': 'o',
}

// NormalizeName lowercases a field name and strips everything that is not a
// letter or digit, so "modelYear", "model_year" and "Model-Year" collapse to
// the same string.
func NormalizeName(name string) string {
	ret := make([]rune, 0, len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			l := unicode.ToLower(r)
			if replacement, ok := commonIssues[l]; ok {
				l = replacement
			}
			ret = append(ret, l)
		}
	}
	return string(ret)
}

// Tokens splits a field name on separators and camelCase humps and returns
// the normalized tokens, deduplicated in order.
func Tokens(name string) []string {
	words := splitWords(name)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		normalized := NormalizeName(word)
		if normalized == "" {
			continue
		}
		if slices.Contains(tokens, normalized) {
			continue
		}
		tokens = append(tokens, normalized)
	}
	return tokens
}

func splitWords(name string) []string {
	words := make([]string, 0, 4)
	var current []rune
	var prev rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}
	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.' || r == '/' || r == ':':
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
		prev = r
	}
	flush()
	return words
}
