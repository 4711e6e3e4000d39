package workflow

import (
	"strings"
)

// This file splits template strings into literal text and ${{ ... }} spans.
//
// The scan is delimiter aware: single-quoted strings (with '' as the escape
// for a quote) and nested braces inside a span do not terminate it, so
// expressions such as ${{ format('{{0}}', github.ref) }} survive intact. An
// opening ${{ without a matching }} is kept as literal text and scanning
// resumes right after it.

const (
	exprOpen  = "${{"
	exprClose = "}}"
)

// TemplateTokenKind identifies literal text or an expression span.
type TemplateTokenKind int

const (
	TokenLiteral TemplateTokenKind = iota
	TokenExpression
)

// TemplateToken is one piece of a template string. For expressions Text is
// the inner text between the delimiters, verbatim.
type TemplateToken struct {
	Kind   TemplateTokenKind
	Text   string
	Offset int
}

// Trimmed returns the inner text without surrounding whitespace.
func (t TemplateToken) Trimmed() string {
	return strings.TrimSpace(t.Text)
}

// IsPadded reports whether the inner text is the trimmed expression padded
// by exactly one space on each side, the conventional ${{ expr }} form.
func (t TemplateToken) IsPadded() bool {
	trimmed := t.Trimmed()
	return trimmed != "" && t.Text == " "+trimmed+" "
}

// HasExpression reports whether s contains at least one complete span.
func HasExpression(s string) bool {
	if !strings.Contains(s, exprOpen) {
		return false
	}
	for _, tok := range LexTemplate(s) {
		if tok.Kind == TokenExpression {
			return true
		}
	}
	return false
}

// LexTemplate splits s into a flat token stream. Concatenating the literal
// texts and the expression texts wrapped in their delimiters reproduces s.
func LexTemplate(s string) []TemplateToken {
	var tokens []TemplateToken
	literalStart := 0
	pos := 0

	for {
		idx := strings.Index(s[pos:], exprOpen)
		if idx < 0 {
			break
		}
		open := pos + idx
		innerStart := open + len(exprOpen)
		end, ok := scanExpressionEnd(s, innerStart)
		if !ok {
			// Unterminated: the opener stays literal and later spans still count.
			pos = open + 1
			continue
		}
		if open > literalStart {
			tokens = append(tokens, TemplateToken{Kind: TokenLiteral, Text: s[literalStart:open], Offset: literalStart})
		}
		tokens = append(tokens, TemplateToken{Kind: TokenExpression, Text: s[innerStart:end], Offset: innerStart})
		pos = end + len(exprClose)
		literalStart = pos
	}

	if literalStart < len(s) {
		tokens = append(tokens, TemplateToken{Kind: TokenLiteral, Text: s[literalStart:], Offset: literalStart})
	}
	return tokens
}

// scanExpressionEnd returns the index of the closing delimiter of the span
// whose inner text starts at start.
func scanExpressionEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					i++
					continue
				}
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
				continue
			}
			if i+1 < len(s) && s[i+1] == '}' {
				return i, true
			}
		}
	}
	return 0, false
}

// RenderTemplate joins tokens back into the source text.
func RenderTemplate(tokens []TemplateToken) string {
	var sb strings.Builder
	for _, tok := range tokens {
		if tok.Kind == TokenExpression {
			sb.WriteString(exprOpen)
			sb.WriteString(tok.Text)
			sb.WriteString(exprClose)
			continue
		}
		sb.WriteString(tok.Text)
	}
	return sb.String()
}
