package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/pkg/telemetry"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pipewright",
		Short: "Pipewright - Extensible Pipeline Orchestrator",
		Long: `Pipewright runs declarative pipelines built from extensions.

A pipeline definition names its extensions and their configuration; the
orchestrator executes them in declaration order against a shared state
store, resolves secret and group references between them, and tears
everything down in reverse order when the run ends.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newExtensionsCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newDevCommand())

	return rootCmd
}

// newTelemetry builds the telemetry stack from the global flags.
func newTelemetry(version string, enableMetrics bool) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Metrics.Enabled = enableMetrics
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if jsonOutput {
		cfg.Logging.Format = "json"
	}
	return telemetry.NewTelemetry(cfg)
}
