package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/githubnext/gh-flowgen/pkg/cli"
	"github.com/githubnext/gh-flowgen/pkg/console"
	"github.com/githubnext/gh-flowgen/pkg/constants"
)

// Build-time variables.
var (
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "gh flowgen",
	Short:   "Turn GitHub Actions workflow YAML into typed Go pipeline definitions",
	Version: version,
	Long: `GitHub Flowgen validates workflow YAML and generates Go source that rebuilds it.

Common Tasks:
  ` + constants.CLIExtensionPrefix + ` validate          # Check .github/workflows without generating code
  ` + constants.CLIExtensionPrefix + ` import            # Generate Go for .github/workflows
  ` + constants.CLIExtensionPrefix + ` report-schema     # Print the JSON Schema of the validation report

For detailed help on any command, use:
  ` + constants.CLIExtensionPrefix + ` [command] --help`,
	SilenceErrors: true,
	SilenceUsage:  true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var importCmd = cli.NewImportCommand()

var validateCmd = cli.NewValidateCommand()

var reportSchemaCmd = cli.NewReportSchemaCommand()

var mcpServerCmd = cli.NewMCPServerCommand(version)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show gh flowgen version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", string(constants.CLIExtensionPrefix), version)
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "development", Title: "Development Commands:"},
		&cobra.Group{ID: "utilities", Title: "Utilities:"},
	)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output showing detailed information")
	rootCmd.SetVersionTemplate(string(constants.CLIExtensionPrefix) + " version {{.Version}}\n")

	importCmd.GroupID = "development"
	validateCmd.GroupID = "development"
	reportSchemaCmd.GroupID = "utilities"
	mcpServerCmd.GroupID = "utilities"

	rootCmd.AddCommand(importCmd, validateCmd, reportSchemaCmd, mcpServerCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		stop()
		os.Exit(1)
	}
}
