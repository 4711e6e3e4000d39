// Package flow is the builder that generated pipeline sources target.
//
// A pipeline is assembled from chained calls and rendered back to the
// GitHub Actions document it describes:
//
//	flow.NewWorkflow("CI").
//		On("push", flow.M{{Key: "branches", Value: flow.L{"main"}}}).
//		Job("build", flow.NewJob().
//			RunsOn("ubuntu-latest").
//			Step(flow.Uses("actions/checkout@v4")).
//			Step(flow.Run("make test")))
//
// Maps that must keep their key order (env, with, matrices, permissions)
// are written as M literals; lists as L literals. Expressions are built with
// Expr so their inner text is visible in the source.
package flow

import (
	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var flowLog = logger.New("flow:flow")

// KV is one entry of an ordered map.
type KV struct {
	Key   string
	Value any
}

// M is an ordered map.
type M []KV

// L is a list.
type L []any

// Expr wraps inner in expression delimiters with the conventional padding:
// Expr("inputs.environment") is "${{ inputs.environment }}".
func Expr(inner string) string {
	return "${{ " + inner + " }}"
}

// ExprRaw wraps raw in expression delimiters without adding padding, for
// spans whose spacing is not the conventional single space.
func ExprRaw(raw string) string {
	return "${{" + raw + "}}"
}

// set replaces the value of key, or appends it.
func (m *M) set(key string, value any) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, KV{Key: key, Value: value})
}

// setIf sets key unless value is nil.
func (m *M) setIf(key string, value any) {
	if value != nil {
		m.set(key, value)
	}
}

// setString sets key unless s is empty.
func (m *M) setString(key, s string) {
	if s != "" {
		m.set(key, s)
	}
}

// Get returns the value stored under key.
func (m M) Get(key string) (any, bool) {
	for _, kv := range m {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// toTree converts builder values into the yaml tree types.
func toTree(v any) any {
	switch val := v.(type) {
	case M:
		out := make(yaml.MapSlice, 0, len(val))
		for _, kv := range val {
			out = append(out, yaml.MapItem{Key: kv.Key, Value: toTree(kv.Value)})
		}
		return out
	case L:
		return toList([]any(val))
	case []any:
		return toList(val)
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case yaml.MapSlice:
		out := make(yaml.MapSlice, 0, len(val))
		for _, item := range val {
			out = append(out, yaml.MapItem{Key: item.Key, Value: toTree(item.Value)})
		}
		return out
	case treeNode:
		return val.tree()
	default:
		return v
	}
}

func toList(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = toTree(item)
	}
	return out
}

// treeNode is implemented by builder types that render to a subtree.
type treeNode interface {
	tree() any
}

// mapTree renders m, returning nil for an empty map so that declarations
// such as "workflow_dispatch:" stay null.
func mapTree(m M) any {
	if len(m) == 0 {
		return nil
	}
	return toTree(m)
}
