// Package constants holds names and defaults shared across packages.
package constants

import (
	"path/filepath"
	"time"
)

// CLIExtensionPrefix is how the tool is invoked as a gh extension.
const CLIExtensionPrefix = "gh flowgen"

const (
	// DefaultOutputDir is the directory, relative to the scan root, that
	// receives generated pipeline sources.
	DefaultOutputDir = "flowgen"
	// DefaultPackageName is the Go package name of generated pipeline sources.
	DefaultPackageName = "flowgen"
	// UnitsPackageName is the Go package name of generated local unit sources.
	UnitsPackageName = "units"
	// FlowImportPath is the import path of the builder generated code targets.
	FlowImportPath = "github.com/githubnext/gh-flowgen/pkg/flow"
)

const (
	PipelineFileSuffix = "_workflow.go"
	UnitFileSuffix     = "_unit.go"
	CallFileSuffix     = "_call.go"
)

// UnitDefinitionFiles are the conventional file names of a local unit.
var UnitDefinitionFiles = []string{"action.yml", "action.yaml"}

// SkippedDirectories are never descended into while scanning for inputs.
var SkippedDirectories = []string{"node_modules", "vendor", ".git"}

const (
	// DefaultLookupTimeout bounds each advisory database request.
	DefaultLookupTimeout = 10 * time.Second
	// LookupTimeoutEnvVar overrides DefaultLookupTimeout, in seconds.
	LookupTimeoutEnvVar = "GH_FLOWGEN_LOOKUP_TIMEOUT"
	// MaxConcurrencyEnvVar overrides the number of files validated in parallel.
	MaxConcurrencyEnvVar = "GH_FLOWGEN_MAX_CONCURRENCY"
	// DefaultMaxConcurrency is used when MaxConcurrencyEnvVar is unset.
	DefaultMaxConcurrency = 8
)

// GetWorkflowDir returns the conventional pipeline directory.
func GetWorkflowDir() string {
	return filepath.Join(".github", "workflows")
}
