package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/pkg/extensions"
	"github.com/pipewright/pipewright/pkg/pipeline"
)

func newExtensionsCommand() *cobra.Command {
	var extensionDir string
	var pipelinePath string

	cmd := &cobra.Command{
		Use:   "extensions",
		Short: "List available extensions",
		Long: `List every extension the orchestrator can load.

Builtin extensions are compiled into the binary; installable extensions are
shared objects named pipewright_extension_<name>.so in the extension
directory. An installable extension shadows a builtin of the same name.

With --pipeline, report extension availability against that pipeline's
requirements instead: which required extensions are loaded, which are
missing, and which installed extensions the pipeline does not use.`,
		Example: `  # List builtins
  pipewright extensions

  # Include extensions from a directory
  pipewright extensions --dir ./extensions

  # Check availability for a pipeline
  pipewright extensions --pipeline pipeline.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pipelinePath != "" {
				return extensionStatus(cmd.Root().Version, extensionDir, pipelinePath)
			}
			return listExtensions(cmd.Root().Version, extensionDir)
		},
	}

	cmd.Flags().StringVar(&extensionDir, "dir", "", "extension directory to scan")
	cmd.Flags().StringVar(&pipelinePath, "pipeline", "", "pipeline file to check requirements against")

	return cmd
}

func listExtensions(version, dir string) error {
	tel, err := newTelemetry(version, false)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	registry := extensions.NewRegistry(dir, tel.Logger)
	registry.RegisterBuiltins()
	available, err := registry.Discover()
	if err != nil {
		return err
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(available)
	}

	for _, d := range available {
		if d.Path != "" {
			fmt.Printf("%-20s %-8s %s\n", d.Name, d.Source, d.Path)
			continue
		}
		fmt.Printf("%-20s %s\n", d.Name, d.Source)
	}
	return nil
}

func extensionStatus(version, dir, pipelinePath string) error {
	def, err := pipeline.Load(pipelinePath)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = def.Core.ExtensionDir
	}

	tel, err := newTelemetry(version, false)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	registry := extensions.NewRegistry(dir, tel.Logger)
	registry.RegisterBuiltins()
	status, err := registry.CheckStatus(def.RequiredExtensions())
	if err != nil {
		return err
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	}

	fmt.Printf("pipeline:  %s\n", def.Name)
	fmt.Printf("required:  %s\n", strings.Join(status.Required, ", "))
	fmt.Printf("installed: %s\n", strings.Join(status.Installed, ", "))
	fmt.Printf("loaded:    %s\n", strings.Join(status.Loaded, ", "))
	if len(status.Missing) > 0 {
		fmt.Printf("missing:   %s\n", strings.Join(status.Missing, ", "))
	}
	if len(status.Extra) > 0 {
		fmt.Printf("extra:     %s\n", strings.Join(status.Extra, ", "))
	}
	return nil
}
