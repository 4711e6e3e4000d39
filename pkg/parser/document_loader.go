package parser

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	yamlparser "github.com/goccy/go-yaml/parser"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var loaderLog = logger.New("parser:document_loader")

// This file turns raw pipeline and unit YAML into an ordered document tree.
//
// Two modes exist:
//   - LoadDocument is strict: it parses the text into an AST first so that
//     malformed structure, including duplicate keys at the same level, is
//     reported with a line and column. The AST is kept on the Document so
//     later stages can map instance paths back to source positions.
//   - LoadDocumentBestEffort is used when the syntax check is skipped. It
//     tolerates duplicate keys (last one wins) and retries with tabs expanded,
//     but keeps no position information.
//
// Both return the tree as a goccy yaml.MapSlice so key order is preserved all
// the way to code generation.

// Document is a loaded YAML document.
type Document struct {
	Path   string
	Source []byte
	Tree   yaml.MapSlice
	// File is the parsed AST, nil when the document was loaded best-effort.
	File *ast.File
}

// SyntaxError reports malformed YAML. Line and Column are 1-based and zero
// when unknown.
type SyntaxError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// HasPositions reports whether source positions can be resolved for doc.
func (d *Document) HasPositions() bool {
	return d != nil && d.File != nil
}

// Get returns the top-level value for key.
func (d *Document) Get(key string) (any, bool) {
	return Lookup(d.Tree, key)
}

// Lookup returns the value stored under key in an ordered map.
func Lookup(m yaml.MapSlice, key string) (any, bool) {
	for _, item := range m {
		if k, ok := item.Key.(string); ok && k == key {
			return item.Value, true
		}
	}
	return nil, false
}

// LoadFile reads path and loads it. I/O failures are returned as is (wrapped),
// syntax failures as *SyntaxError.
func LoadFile(path string, strict bool) (*Document, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if strict {
		return LoadDocument(source, path)
	}
	return LoadDocumentBestEffort(source, path)
}

// LoadDocument parses source strictly.
func LoadDocument(source []byte, path string) (*Document, error) {
	loaderLog.Printf("Loading %s strictly (%d bytes)", path, len(source))

	file, err := yamlparser.ParseBytes(source, 0)
	if err != nil {
		return nil, newSyntaxError(path, err)
	}

	var docs []*ast.DocumentNode
	for _, doc := range file.Docs {
		if doc.Body != nil {
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return nil, &SyntaxError{Path: path, Message: "document is empty"}
	}
	if len(docs) > 1 {
		pos := docs[1].Body.GetToken().Position
		return nil, &SyntaxError{Path: path, Line: pos.Line, Column: pos.Column, Message: "multiple YAML documents in one file are not supported"}
	}

	var value any
	if err := yaml.NodeToValue(docs[0].Body, &value, yaml.UseOrderedMap()); err != nil {
		return nil, newSyntaxError(path, err)
	}

	tree, ok := normalizeValue(value).(yaml.MapSlice)
	if !ok {
		pos := docs[0].Body.GetToken().Position
		return nil, &SyntaxError{Path: path, Line: pos.Line, Column: pos.Column, Message: "document root must be a mapping"}
	}

	return &Document{Path: path, Source: source, Tree: tree, File: file}, nil
}

// LoadDocumentBestEffort parses source without location tracking.
func LoadDocumentBestEffort(source []byte, path string) (*Document, error) {
	loaderLog.Printf("Loading %s best-effort (%d bytes)", path, len(source))

	value, err := decodeLenient(source)
	if err != nil && strings.Contains(string(source), "\t") {
		loaderLog.Printf("Retrying %s with tabs expanded: %v", path, err)
		value, err = decodeLenient([]byte(expandLeadingTabs(string(source))))
	}
	if err != nil {
		return nil, &SyntaxError{Path: path, Message: firstLine(err.Error())}
	}

	tree, ok := normalizeValue(value).(yaml.MapSlice)
	if !ok {
		if value == nil {
			return nil, &SyntaxError{Path: path, Message: "document is empty"}
		}
		return nil, &SyntaxError{Path: path, Message: "document root must be a mapping"}
	}
	return &Document{Path: path, Source: source, Tree: dedupeKeys(tree)}, nil
}

func decodeLenient(source []byte) (any, error) {
	var value any
	err := yaml.UnmarshalWithOptions(source, &value, yaml.UseOrderedMap(), yaml.AllowDuplicateMapKey())
	return value, err
}

func newSyntaxError(path string, err error) *SyntaxError {
	var yamlErr yaml.Error
	if errors.As(err, &yamlErr) {
		syntaxErr := &SyntaxError{Path: path, Message: yamlErr.GetMessage()}
		if tok := yamlErr.GetToken(); tok != nil && tok.Position != nil {
			syntaxErr.Line = tok.Position.Line
			syntaxErr.Column = tok.Position.Column
		}
		return syntaxErr
	}
	return &SyntaxError{Path: path, Message: firstLine(err.Error())}
}

// normalizeValue converts decoded YAML into the value shapes every later
// stage expects: yaml.MapSlice with string keys, []any, string, bool, int,
// float64 and nil.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case yaml.MapSlice:
		out := make(yaml.MapSlice, 0, len(val))
		for _, item := range val {
			out = append(out, yaml.MapItem{Key: keyString(item.Key), Value: normalizeValue(item.Value)})
		}
		return out
	case map[string]any:
		// only reached for documents decoded without UseOrderedMap
		out := make(yaml.MapSlice, 0, len(val))
		for k, item := range val {
			out = append(out, yaml.MapItem{Key: k, Value: normalizeValue(item)})
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case uint64:
		if val <= uint64(^uint(0)>>1) {
			return int(val)
		}
		return float64(val)
	case int64:
		return int(val)
	case int:
		return val
	case float32:
		return float64(val)
	default:
		return val
	}
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	if k == nil {
		return "null"
	}
	return fmt.Sprint(k)
}

// dedupeKeys keeps the last value for repeated keys at the position of the
// first occurrence.
func dedupeKeys(m yaml.MapSlice) yaml.MapSlice {
	index := make(map[string]int, len(m))
	out := make(yaml.MapSlice, 0, len(m))
	for _, item := range m {
		if nested, ok := item.Value.(yaml.MapSlice); ok {
			item.Value = dedupeKeys(nested)
		}
		key := item.Key.(string)
		if i, seen := index[key]; seen {
			out[i].Value = item.Value
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}
	return out
}

func expandLeadingTabs(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		indent := line[:len(line)-len(trimmed)]
		lines[i] = strings.ReplaceAll(indent, "\t", "  ") + trimmed
	}
	return strings.Join(lines, "\n")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if before, _, ok := strings.Cut(s, "\n"); ok {
		return before
	}
	return s
}
