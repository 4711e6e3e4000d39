package codegen

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/workflow"
)

var valueEmitterLog = logger.New("codegen:value_emitter")

// goString renders s as a Go string literal. Multi-line text and text with
// quotes or backslashes use a raw literal when it can hold them.
func goString(s string) string {
	if canUseRawString(s) && strings.ContainsAny(s, "\n\"\\") {
		return "`" + s + "`"
	}
	return strconv.Quote(s)
}

func canUseRawString(s string) bool {
	if !utf8.ValidString(s) || strings.ContainsAny(s, "`\r\uFEFF") {
		return false
	}
	for _, r := range s {
		if r != '\n' && r != '\t' && !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// templateExpr renders s as a Go expression. Expression spans become
// flow.Expr calls holding the inner text, so "deploy ${{ inputs.env }}"
// is emitted as "deploy " + flow.Expr("inputs.env").
func templateExpr(s string) string {
	if !workflow.HasExpression(s) {
		return goString(s)
	}
	tokens := workflow.LexTemplate(s)
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		switch {
		case tok.Kind == workflow.TokenLiteral:
			if tok.Text != "" {
				parts = append(parts, goString(tok.Text))
			}
		case tok.IsPadded():
			parts = append(parts, flowPkg+".Expr("+goString(tok.Trimmed())+")")
		default:
			parts = append(parts, flowPkg+".ExprRaw("+goString(tok.Text)+")")
		}
	}
	return strings.Join(parts, " + ")
}

// valueExpr renders a decoded YAML value as a Go expression of the flow
// package: mappings become flow.M, sequences flow.L.
func valueExpr(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "nil", nil
	case string:
		return templateExpr(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		if val > math.MaxInt64 {
			return "uint64(" + strconv.FormatUint(val, 10) + ")", nil
		}
		return strconv.FormatUint(val, 10), nil
	case float64:
		return floatExpr(val)
	case yaml.MapSlice:
		return mapExpr(val)
	case []any:
		return listExpr(val)
	}
	valueEmitterLog.Printf("Unsupported value type %T", v)
	return "", fmt.Errorf("unsupported value of type %T", v)
}

func floatExpr(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("value %v has no Go literal", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s, nil
}

func mapExpr(m yaml.MapSlice) (string, error) {
	entries := make([]string, 0, len(m))
	nested := false
	for _, item := range m {
		value, err := valueExpr(item.Value)
		if err != nil {
			return "", fmt.Errorf("%v: %w", item.Key, err)
		}
		if isComposite(item.Value) {
			nested = true
		}
		entries = append(entries, "{Key: "+goString(fmt.Sprint(item.Key))+", Value: "+value+"}")
	}
	return compositeLit(flowPkg+".M", entries, nested || len(entries) > 2), nil
}

func listExpr(list []any) (string, error) {
	items := make([]string, 0, len(list))
	nested := false
	for i, item := range list {
		value, err := valueExpr(item)
		if err != nil {
			return "", fmt.Errorf("[%d]: %w", i, err)
		}
		if isComposite(item) {
			nested = true
		}
		items = append(items, value)
	}
	return compositeLit(flowPkg+".L", items, nested || len(items) > 4), nil
}

func isComposite(v any) bool {
	switch val := v.(type) {
	case yaml.MapSlice:
		return len(val) > 0
	case []any:
		return len(val) > 0
	}
	return false
}

// compositeLit joins elements on one line, or one per line when multiline
// is set.
func compositeLit(typ string, elems []string, multiline bool) string {
	if len(elems) == 0 {
		return typ + "{}"
	}
	if !multiline {
		return typ + "{" + strings.Join(elems, ", ") + "}"
	}
	var sb strings.Builder
	sb.WriteString(typ + "{\n")
	for _, e := range elems {
		sb.WriteString(e)
		sb.WriteString(",\n")
	}
	sb.WriteString("}")
	return sb.String()
}

// structLit renders a struct literal with the given field: value pairs,
// skipping empty values.
func structLit(typ string, fields [][2]string) string {
	elems := make([]string, 0, len(fields))
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		elems = append(elems, f[0]+": "+f[1])
	}
	return compositeLit(typ, elems, len(elems) > 2)
}
