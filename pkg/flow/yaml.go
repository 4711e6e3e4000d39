package flow

import (
	"regexp"

	"github.com/goccy/go-yaml"
)

// MarshalOptions render documents with 2-space indentation, indented
// sequences and literal block scalars for multiline strings.
var MarshalOptions = []yaml.EncodeOption{
	yaml.Indent(2),
	yaml.IndentSequence(true),
	yaml.UseLiteralStyleIfMultiline(true),
}

// Marshal renders a tree with MarshalOptions and the conventional unquoted
// "on" key.
func Marshal(tree yaml.MapSlice) ([]byte, error) {
	out, err := yaml.MarshalWithOptions(tree, MarshalOptions...)
	if err != nil {
		return nil, err
	}
	return []byte(UnquoteYAMLKey(string(out), "on")), nil
}

// UnquoteYAMLKey removes the quotes the marshaler puts around reserved words
// used as keys. Only keys at the start of a line are touched, so values that
// contain the same text are left alone.
//
//	UnquoteYAMLKey("\"on\":\n  push: null\n", "on") == "on:\n  push: null\n"
func UnquoteYAMLKey(yamlStr string, key string) string {
	re := regexp.MustCompile(`(^|\n)([ \t]*)"` + regexp.QuoteMeta(key) + `":`)
	return re.ReplaceAllString(yamlStr, "${1}${2}"+key+":")
}
