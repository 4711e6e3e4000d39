//go:build !integration

package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/gh-flowgen/pkg/advisory"
)

func connectTestServer(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	server := NewMCPServer("test", ImportConfig{Checker: advisory.StaticChecker{}})
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callTool[T any](t *testing.T, session *mcp.ClientSession, name string, args map[string]any) T {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "tool %s failed: %v", name, res.Content)
	require.NotEmpty(t, res.Content)

	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	var out T
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestMCPServer_ListTools(t *testing.T) {
	session := connectTestServer(t)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"validate", "import_preview"}, names)
}

func TestMCPServer_Validate(t *testing.T) {
	root := t.TempDir()
	path := writeTestFile(t, root, "no-jobs.yml", "name: No Jobs\non: push\n")
	session := connectTestServer(t)

	out := callTool[validateOutput](t, session, "validate", map[string]any{
		"paths": []string{path},
		"root":  root,
	})
	require.NotNil(t, out.Report)
	assert.False(t, out.Report.Valid)
	require.Len(t, out.Report.Errors, 1)
	assert.Equal(t, "workflow-jobs", out.Report.Errors[0].Rule)
	assert.Equal(t, "validation failed: 1 error(s) found", out.Failure)
}

func TestMCPServer_ImportPreview(t *testing.T) {
	root := t.TempDir()
	path := writeTestFile(t, root, ".github/workflows/ci.yml", ciPipeline)
	session := connectTestServer(t)

	out := callTool[previewOutput](t, session, "import_preview", map[string]any{
		"paths":   []string{path},
		"root":    root,
		"package": "pipelines",
	})
	assert.Empty(t, out.Failure)
	require.Len(t, out.Files, 1)
	assert.Equal(t, "ci_workflow.go", out.Files[0].Path)
	assert.Equal(t, "pipeline", out.Files[0].Kind)
	assert.Equal(t, ".github/workflows/ci.yml", out.Files[0].Source)
	assert.Contains(t, out.Files[0].Content, "package pipelines")
	assert.NoDirExists(t, filepath.Join(root, "flowgen"), "preview writes nothing")
}

func TestMCPServer_InvalidArguments(t *testing.T) {
	session := connectTestServer(t)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "validate",
		Arguments: map[string]any{"paths": []string{}},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError, "an empty path list is a tool error")
}
