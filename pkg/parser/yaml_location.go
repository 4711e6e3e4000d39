package parser

import (
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/token"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var locationLog = logger.New("parser:yaml_location")

// LocateInstancePath maps an instance path (as produced by the schema
// engine, e.g. ["jobs", "build", "steps", "0"]) to a 1-based line and column
// in doc's source. For mapping entries the position of the key is used.
//
// When the exact path does not exist, for instance a missing required
// property, the nearest existing ancestor is located instead. ok is false
// when doc carries no AST.
func LocateInstancePath(doc *Document, segments []string) (line, column int, ok bool) {
	if !doc.HasPositions() {
		return 0, 0, false
	}

	for n := len(segments); n >= 0; n-- {
		if line, column, found := locate(doc, segments[:n]); found {
			if n < len(segments) {
				locationLog.Printf("Path %v not found, using ancestor %v", segments, segments[:n])
			}
			return line, column, true
		}
	}
	return 0, 0, false
}

func locate(doc *Document, segments []string) (int, int, bool) {
	if len(segments) == 0 {
		body := firstBody(doc.File)
		if body == nil {
			return 0, 0, false
		}
		return nodePosition(body)
	}

	parentSegs := segments[:len(segments)-1]
	last := segments[len(segments)-1]

	parentPath, ok := buildPath(doc.Tree, parentSegs)
	if !ok {
		return 0, 0, false
	}
	parent, err := parentPath.FilterFile(doc.File)
	if err != nil || parent == nil {
		return 0, 0, false
	}

	switch node := unwrap(parent).(type) {
	case *ast.MappingNode:
		for _, entry := range node.Values {
			if keyText(entry.Key) == last {
				return position(entry.Key.GetToken())
			}
		}
	case *ast.MappingValueNode:
		if keyText(node.Key) == last {
			return position(node.Key.GetToken())
		}
	case *ast.SequenceNode:
		idx, err := strconv.Atoi(last)
		if err == nil && idx >= 0 && idx < len(node.Values) {
			return nodePosition(node.Values[idx])
		}
	}
	return 0, 0, false
}

// buildPath turns segments into a YAMLPath, using the decoded tree to tell
// sequence indexes apart from mapping keys that happen to be numeric.
func buildPath(tree yaml.MapSlice, segments []string) (*yaml.Path, bool) {
	builder := (&yaml.PathBuilder{}).Root()
	var current any = tree
	for _, seg := range segments {
		switch val := current.(type) {
		case yaml.MapSlice:
			next, found := Lookup(val, seg)
			if !found {
				return nil, false
			}
			builder = builder.Child(seg)
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(val) {
				return nil, false
			}
			builder = builder.Index(uint(idx))
			current = val[idx]
		default:
			return nil, false
		}
	}
	return builder.Build(), true
}

func firstBody(file *ast.File) ast.Node {
	for _, doc := range file.Docs {
		if doc.Body != nil {
			return doc.Body
		}
	}
	return nil
}

// unwrap skips anchors and tags so the underlying collection is visible.
func unwrap(node ast.Node) ast.Node {
	for {
		switch n := node.(type) {
		case *ast.AnchorNode:
			node = n.Value
		case *ast.TagNode:
			node = n.Value
		default:
			return node
		}
	}
}

func keyText(key ast.MapKeyNode) string {
	tok := key.GetToken()
	if tok == nil {
		return ""
	}
	text := strings.TrimSpace(tok.Value)
	if len(text) >= 2 && (text[0] == '"' || text[0] == '\'') && text[len(text)-1] == text[0] {
		text = text[1 : len(text)-1]
	}
	return text
}

// nodePosition reports where a node starts in the source. Block mappings
// start at their first key rather than at the ':' token.
func nodePosition(node ast.Node) (int, int, bool) {
	switch n := unwrap(node).(type) {
	case *ast.MappingNode:
		if len(n.Values) > 0 {
			return position(n.Values[0].Key.GetToken())
		}
	case *ast.MappingValueNode:
		return position(n.Key.GetToken())
	}
	return position(node.GetToken())
}

func position(tok *token.Token) (int, int, bool) {
	if tok == nil || tok.Position == nil {
		return 0, 0, false
	}
	return tok.Position.Line, tok.Position.Column, true
}
