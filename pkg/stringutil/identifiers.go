// Package stringutil provides string helpers for turning pipeline names, job
// ids and file names into Go identifiers and file names.
package stringutil

import (
	"go/token"
	"strings"
	"unicode"
)

// initialisms are rendered fully upper case inside exported identifiers.
var initialisms = map[string]bool{
	"API":  true,
	"CD":   true,
	"CI":   true,
	"CLI":  true,
	"HTTP": true,
	"ID":   true,
	"JSON": true,
	"NPM":  true,
	"OS":   true,
	"PR":   true,
	"SHA":  true,
	"URL":  true,
	"YAML": true,
}

// splitWords breaks s on any non alphanumeric rune and on lower-to-upper
// case transitions, so "node-version", "nodeVersion" and "Node Version"
// all yield ["node", "version"].
func splitWords(s string) []string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, strings.ToLower(string(current)))
			current = current[:0]
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if i > 0 && unicode.IsUpper(r) && len(current) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		current = append(current, r)
	}
	flush()
	return words
}

func titleWord(w string) string {
	if upper := strings.ToUpper(w); initialisms[upper] {
		return upper
	}
	r := []rune(w)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// ToPascalIdent converts s to an exported Go identifier. Leading digits are
// prefixed with "X" and an empty result becomes "X".
//
//	"node-version" -> "NodeVersion"
//	"ci"           -> "CI"
//	"build_and_id" -> "BuildAndID"
func ToPascalIdent(s string) string {
	var sb strings.Builder
	for _, w := range splitWords(s) {
		sb.WriteString(titleWord(w))
	}
	ident := sb.String()
	if ident == "" {
		return "X"
	}
	if unicode.IsDigit([]rune(ident)[0]) {
		ident = "X" + ident
	}
	return ident
}

// ToCamelIdent converts s to an unexported Go identifier. Results that
// collide with Go keywords get a trailing underscore.
func ToCamelIdent(s string) string {
	words := splitWords(s)
	if len(words) == 0 {
		return "x"
	}
	var sb strings.Builder
	sb.WriteString(words[0])
	for _, w := range words[1:] {
		sb.WriteString(titleWord(w))
	}
	ident := sb.String()
	if unicode.IsDigit([]rune(ident)[0]) {
		ident = "x" + ident
	}
	if token.IsKeyword(ident) {
		ident += "_"
	}
	return ident
}

// ToSnakeName converts s to a lower snake case file name stem.
func ToSnakeName(s string) string {
	name := strings.Join(splitWords(s), "_")
	if name == "" {
		return "unnamed"
	}
	return name
}

// IsValidIdentifier reports whether s is usable as a Go identifier.
func IsValidIdentifier(s string) bool {
	return token.IsIdentifier(s)
}
