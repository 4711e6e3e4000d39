package cli

import (
	"context"
	"errors"
	"io"
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var mcpServerLog = logger.New("cli:mcp_server")

// validateArgs are the arguments of the validate tool.
type validateArgs struct {
	Paths         []string `json:"paths" jsonschema:"pipeline files or directories to validate"`
	Root          string   `json:"root,omitempty" jsonschema:"repository root local references resolve against"`
	Strict        bool     `json:"strict,omitempty" jsonschema:"fail on any warning"`
	SkipUnitCheck bool     `json:"skip_unit_check,omitempty" jsonschema:"skip advisory lookups and missing local unit warnings"`
}

// validateOutput is the result of the validate tool.
type validateOutput struct {
	Report  *Report `json:"report" jsonschema:"validation report of the batch"`
	Failure string  `json:"failure,omitempty" jsonschema:"why the batch failed, empty on success"`
}

// previewArgs are the arguments of the import_preview tool.
type previewArgs struct {
	Paths             []string `json:"paths" jsonschema:"pipeline files or directories to import"`
	Root              string   `json:"root,omitempty" jsonschema:"repository root local references resolve against"`
	Package           string   `json:"package,omitempty" jsonschema:"package name of generated pipeline files"`
	ExtractLocalUnits bool     `json:"extract_local_units,omitempty" jsonschema:"emit typed helpers for local units"`
	SkipUnitCheck     bool     `json:"skip_unit_check,omitempty" jsonschema:"skip advisory lookups and missing local unit warnings"`
}

// previewFile is one generated file returned by import_preview.
type previewFile struct {
	Path    string `json:"path" jsonschema:"path relative to the output directory"`
	Source  string `json:"source" jsonschema:"input the file was generated from"`
	Kind    string `json:"kind" jsonschema:"pipeline, unit or call"`
	Content string `json:"content" jsonschema:"Go source"`
}

// previewOutput is the result of the import_preview tool.
type previewOutput struct {
	Files   []previewFile `json:"files" jsonschema:"generated files, not written to disk"`
	Report  *Report       `json:"report" jsonschema:"validation report of the batch"`
	Failure string        `json:"failure,omitempty" jsonschema:"why the batch failed, empty on success"`
}

// mcpServer runs one batch per tool call on top of a base config.
type mcpServer struct {
	config ImportConfig
}

// NewMCPServer returns a server with the validate and import_preview tools.
// base supplies the checker and other defaults of every batch.
func NewMCPServer(version string, base ImportConfig) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "gh-flowgen", Version: version}, nil)
	s := &mcpServer{config: base}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate",
		Description: "Validate GitHub Actions workflow YAML files and return the validation report. Nothing is written.",
	}, s.validate)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "import_preview",
		Description: "Generate Go source for workflow YAML files and return it without writing anything.",
	}, s.importPreview)
	return server
}

// batchConfig returns a config that keeps every byte off the process
// streams; stdout carries the protocol.
func (s *mcpServer) batchConfig(paths []string, root string, skipUnitCheck bool) ImportConfig {
	config := s.config
	config.Paths = paths
	config.Root = root
	config.SkipUnitCheck = skipUnitCheck
	config.JSONOutput = true
	config.ValidationReport = ""
	config.Watch = false
	config.Stdout = io.Discard
	config.Stderr = io.Discard
	return config
}

func (s *mcpServer) validate(ctx context.Context, _ *mcp.CallToolRequest, args validateArgs) (*mcp.CallToolResult, validateOutput, error) {
	mcpServerLog.Printf("validate: paths=%v", args.Paths)
	config := s.batchConfig(args.Paths, args.Root, args.SkipUnitCheck)
	config.ValidateOnly = true
	config.Strict = args.Strict

	result, err := RunImport(ctx, config)
	if result == nil {
		return nil, validateOutput{}, err
	}
	return nil, validateOutput{Report: result.Report, Failure: failureText(err)}, nil
}

func (s *mcpServer) importPreview(ctx context.Context, _ *mcp.CallToolRequest, args previewArgs) (*mcp.CallToolResult, previewOutput, error) {
	mcpServerLog.Printf("import_preview: paths=%v", args.Paths)
	config := s.batchConfig(args.Paths, args.Root, args.SkipUnitCheck)
	config.Preview = true
	config.Package = args.Package
	config.ExtractLocalUnits = args.ExtractLocalUnits

	result, err := RunImport(ctx, config)
	if result == nil {
		return nil, previewOutput{}, err
	}
	out := previewOutput{Files: []previewFile{}, Report: result.Report, Failure: failureText(err)}
	for _, f := range slices.Concat(result.Pipelines, result.Units, result.Types) {
		out.Files = append(out.Files, previewFile{Path: f.Path, Source: f.Source, Kind: string(f.Kind), Content: string(f.Content)})
	}
	return nil, out, nil
}

func failureText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewMCPServerCommand creates the mcp-server command.
func NewMCPServerCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run an MCP server exposing validate and import_preview over stdio",
		Long: `Run a Model Context Protocol server on standard input and output. The server
offers two tools:

  validate        validate workflow files and return the JSON report
  import_preview  generate Go source without writing it`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			server := NewMCPServer(version, ImportConfig{})
			mcpServerLog.Print("Starting MCP server on stdio")
			if err := server.Run(cmd.Context(), &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
