package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/githubnext/gh-flowgen/pkg/console"
	"github.com/githubnext/gh-flowgen/pkg/constants"
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/tty"
)

var importCommandLog = logger.New("cli:import_command")

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [path]...",
		Short: "Generate Go pipeline definitions from workflow YAML",
		Long: `Validate workflow YAML files and generate Go source that rebuilds them with the
flow package. Paths may be files or directories; directories are scanned for
pipelines and action.yml unit definitions.

If no path is given, ` + constants.GetWorkflowDir() + ` is imported.

Every generated file is read back and compared with its input before it is
written, so generated code always rebuilds the original document.

Examples:
  ` + constants.CLIExtensionPrefix + ` import                                 # Import .github/workflows
  ` + constants.CLIExtensionPrefix + ` import ci.yml -o internal/pipelines    # Import one file
  ` + constants.CLIExtensionPrefix + ` import --extract-local-units .         # Also emit typed unit helpers
  ` + constants.CLIExtensionPrefix + ` import --preview ci.yml                # Print instead of writing
  ` + constants.CLIExtensionPrefix + ` import --strict --validation-report -  # Fail on warnings, JSON report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := importConfigFromFlags(cmd, args)
			importCommandLog.Printf("Running import: paths=%v", config.Paths)
			if config.Watch {
				return WatchImport(cmd.Context(), config)
			}
			return runImportCommand(cmd.Context(), config)
		},
	}

	addCheckFlags(cmd)
	cmd.Flags().StringP("out-dir", "o", "", "Directory for generated sources (default: <root>/"+constants.DefaultOutputDir+")")
	cmd.Flags().String("package", "", "Package name of generated pipeline files (default: output directory name)")
	cmd.Flags().String("units-import-path", "", "Import path of the generated units package (default: derived from go.mod)")
	cmd.Flags().Bool("preview", false, "Print generated sources instead of writing them")
	cmd.Flags().Bool("extract-local-units", false, "Emit typed helpers for local units and reusable pipelines")
	cmd.Flags().Bool("generate-types", false, "Generate types for marketplace units")
	cmd.Flags().Bool("overwrite-existing", false, "Replace generated files that differ on disk without asking")
	cmd.Flags().BoolP("watch", "w", false, "Re-run the import when an input changes")
	return cmd
}

// NewValidateCommand creates the validate command: the import pipeline
// stopped before code generation.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]...",
		Short: "Validate workflow YAML without generating code",
		Long: `Run the syntax, schema, security, advisory, expression and reference checks
without generating code. Any error fails the command.

If no path is given, ` + constants.GetWorkflowDir() + ` is validated.

Examples:
  ` + constants.CLIExtensionPrefix + ` validate                                   # Validate .github/workflows
  ` + constants.CLIExtensionPrefix + ` validate ci.yml release.yml                # Validate specific files
  ` + constants.CLIExtensionPrefix + ` validate --strict                          # Fail on warnings too
  ` + constants.CLIExtensionPrefix + ` validate --validation-report report.json   # Write the JSON report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := importConfigFromFlags(cmd, args)
			config.ValidateOnly = true
			importCommandLog.Printf("Running validate: paths=%v", config.Paths)
			return runImportCommand(cmd.Context(), config)
		},
	}
	addCheckFlags(cmd)
	return cmd
}

// addCheckFlags registers the flags shared by import and validate.
func addCheckFlags(cmd *cobra.Command) {
	cmd.Flags().String("root", "", "Repository root local references resolve against (default: nearest .git or .github)")
	cmd.Flags().Bool("skip-syntax-check", false, "Load YAML leniently")
	cmd.Flags().Bool("skip-schema-check", false, "Skip schema validation")
	cmd.Flags().Bool("skip-security-check", false, "Skip the security scan")
	cmd.Flags().Bool("skip-unit-check", false, "Skip advisory lookups and missing local unit warnings")
	cmd.Flags().Bool("strict", false, "Fail on any warning")
	cmd.Flags().String("validation-report", "", "Write the JSON validation report to a file, or - for stdout")
	cmd.Flags().Int("jobs", 0, "Files validated in parallel (default: $"+constants.MaxConcurrencyEnvVar+" or 8)")
	cmd.Flags().Duration("lookup-timeout", 0, "Timeout of each advisory lookup (default: 10s)")
	cmd.Flags().BoolP("json", "j", false, "Print the validation report as JSON")
}

// importConfigFromFlags reads the flags of cmd. Flags a command does not
// define read as their zero value.
func importConfigFromFlags(cmd *cobra.Command, args []string) ImportConfig {
	flags := cmd.Flags()
	str := func(name string) string { v, _ := flags.GetString(name); return v }
	boolean := func(name string) bool { v, _ := flags.GetBool(name); return v }

	jobs, _ := flags.GetInt("jobs")
	timeout, _ := flags.GetDuration("lookup-timeout")

	paths := args
	if len(paths) == 0 {
		paths = []string{constants.GetWorkflowDir()}
	}

	return ImportConfig{
		Paths:             paths,
		Root:              str("root"),
		OutDir:            str("out-dir"),
		Package:           str("package"),
		UnitsImportPath:   str("units-import-path"),
		SkipSyntaxCheck:   boolean("skip-syntax-check"),
		SkipSchemaCheck:   boolean("skip-schema-check"),
		SkipSecurityCheck: boolean("skip-security-check"),
		SkipUnitCheck:     boolean("skip-unit-check"),
		Strict:            boolean("strict"),
		Preview:           boolean("preview"),
		ExtractLocalUnits: boolean("extract-local-units"),
		GenerateTypes:     boolean("generate-types"),
		OverwriteExisting: boolean("overwrite-existing"),
		ValidationReport:  str("validation-report"),
		Jobs:              jobs,
		LookupTimeout:     timeout,
		JSONOutput:        boolean("json"),
		Verbose:           boolean("verbose"),
		Watch:             boolean("watch"),
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	}
}

// runImportCommand runs one batch with a spinner on interactive terminals.
// Output produced while the spinner runs is held back until it stops.
func runImportCommand(ctx context.Context, config ImportConfig) error {
	interactive := tty.IsStdinTerminal() && tty.IsStderrTerminal()
	if interactive && !config.OverwriteExisting && !config.ValidateOnly && !config.Preview {
		config.ConfirmOverwrite = func(path string) (bool, error) {
			return console.ConfirmAction(fmt.Sprintf("%s differs from the generated source. Replace it?", path), "Replace", "Keep")
		}
	}

	spinner := console.NewSpinner("Importing pipelines...")
	if config.ValidateOnly {
		spinner = console.NewSpinner("Validating pipelines...")
	}
	// prompts and verbose output do not mix with the spinner
	useSpinner := spinner.IsEnabled() && config.ConfirmOverwrite == nil && !config.Verbose && !config.JSONOutput

	var held bytes.Buffer
	stderr := config.Stderr
	if useSpinner {
		config.Stderr = &held
		spinner.Start()
	}
	_, err := RunImport(ctx, config)
	if useSpinner {
		spinner.Stop()
		_, _ = io.Copy(stderr, &held)
	}
	return err
}

// NewReportSchemaCommand creates the report-schema command.
func NewReportSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report-schema",
		Short: "Print the JSON Schema of the validation report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := ReportSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

