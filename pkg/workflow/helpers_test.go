//go:build !integration

package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/githubnext/gh-flowgen/pkg/parser"
)

// loadDocument loads a pipeline fixture with the strict loader.
func loadDocument(t *testing.T, source string) *Document {
	t.Helper()
	src, err := parser.LoadDocument([]byte(source), "test.yml")
	require.NoError(t, err, "fixture should load")
	return ParseDocument(src)
}

// loadUnitSource loads a unit definition fixture.
func loadUnitSource(t *testing.T, source string) *parser.Document {
	t.Helper()
	src, err := parser.LoadDocument([]byte(source), "action.yml")
	require.NoError(t, err, "fixture should load")
	return src
}
