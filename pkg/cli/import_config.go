package cli

import (
	"errors"
	"fmt"
	"go/token"
	"io"
	"time"

	"github.com/githubnext/gh-flowgen/pkg/advisory"
	"github.com/githubnext/gh-flowgen/pkg/logger"
)

var importConfigLog = logger.New("cli:import_config")

// ImportConfig holds the options of one import or validate run.
type ImportConfig struct {
	// Paths are pipeline files or directories to scan.
	Paths []string
	// Root is the repository root local references resolve against. It
	// defaults to the nearest directory above the first path holding .git
	// or .github.
	Root string
	// OutDir receives the generated sources. Defaults to <root>/flowgen.
	OutDir string
	// Package is the package name of generated pipeline files.
	Package string
	// UnitsImportPath overrides the import path of the generated units
	// package, which is otherwise derived from the enclosing go.mod.
	UnitsImportPath string

	SkipSyntaxCheck   bool
	SkipSchemaCheck   bool
	SkipSecurityCheck bool
	// SkipUnitCheck skips advisory lookups and silences warnings about
	// missing local unit definitions.
	SkipUnitCheck bool

	// ValidateOnly stops before code generation.
	ValidateOnly bool
	// Strict fails the batch on any warning. Files are still written.
	Strict bool
	// Preview prints generated sources instead of writing them.
	Preview bool
	// ExtractLocalUnits emits typed helpers for local units and calls.
	ExtractLocalUnits bool
	// GenerateTypes asks TypeGenerator for marketplace unit types.
	GenerateTypes bool
	// OverwriteExisting replaces generated files that differ on disk.
	OverwriteExisting bool
	// ValidationReport is a path to write the JSON report to, or "-" for
	// standard output.
	ValidationReport string

	// Jobs bounds the files validated in parallel. Zero uses the default.
	Jobs int
	// LookupTimeout bounds each advisory request. Zero uses the default.
	LookupTimeout time.Duration

	JSONOutput bool
	Verbose    bool
	Watch      bool

	// Checker replaces the GitHub Advisory Database client.
	Checker advisory.Checker
	// TypeGenerator is called when GenerateTypes is set.
	TypeGenerator TypeGenerator
	// ConfirmOverwrite is asked before replacing a differing file when
	// OverwriteExisting is not set. Nil keeps existing files.
	ConfirmOverwrite func(path string) (bool, error)

	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

func validateImportConfig(config ImportConfig) error {
	importConfigLog.Printf("Validating config: paths=%d, validateOnly=%v, strict=%v, preview=%v", len(config.Paths), config.ValidateOnly, config.Strict, config.Preview)

	if len(config.Paths) == 0 {
		return errors.New("at least one path is required")
	}
	if config.Jobs < 0 {
		return fmt.Errorf("--jobs must be positive, got %d", config.Jobs)
	}
	if config.LookupTimeout < 0 {
		return fmt.Errorf("--lookup-timeout must be positive, got %s", config.LookupTimeout)
	}
	if config.Package != "" && (!token.IsIdentifier(config.Package) || token.IsKeyword(config.Package)) {
		return fmt.Errorf("--package %q is not a valid Go package name", config.Package)
	}
	if config.ValidateOnly && config.Preview {
		return errors.New("--preview cannot be combined with --validate-only")
	}
	if config.UnitsImportPath != "" && !config.ExtractLocalUnits {
		return errors.New("--units-import-path requires --extract-local-units")
	}
	if config.Watch && config.ValidationReport == "-" {
		return errors.New("--validation-report - cannot be combined with --watch")
	}
	return nil
}
