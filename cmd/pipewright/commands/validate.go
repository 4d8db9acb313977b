package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/pkg/extensions"
	"github.com/pipewright/pipewright/pkg/pipeline"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <pipeline-file>",
		Short: "Validate a pipeline definition",
		Long: `Validate a pipeline definition without executing it.

This command checks:
  - YAML syntax and pipeline structure
  - The core section against its schema
  - That every declared extension is discoverable
  - Each extension's configuration through its own validator`,
		Example: `  # Validate a pipeline
  pipewright validate pipeline.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validatePipeline(cmd.Root().Version, args[0])
		},
	}

	return cmd
}

func validatePipeline(version, path string) error {
	def, err := pipeline.Load(path)
	if err != nil {
		return err
	}

	tel, err := newTelemetry(version, false)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	registry := extensions.NewRegistry(def.Core.ExtensionDir, tel.Logger)
	registry.RegisterBuiltins()
	status, err := registry.CheckStatus(def.RequiredExtensions())
	if err != nil {
		return err
	}

	var problems []string
	for _, name := range status.Missing {
		problems = append(problems, fmt.Sprintf("%s: extension is not installed or failed to load", name))
	}

	factories, err := registry.LoadAll(def.RequiredExtensions())
	if err != nil {
		return err
	}
	for _, name := range def.ExtensionOrder {
		factory, ok := factories[name]
		if !ok {
			continue
		}
		ext := factory()
		if err := ext.ValidateConfig(def.Extensions[name]); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Printf("invalid: %s\n", p)
		}
		return fmt.Errorf("pipeline %s has %d extension problem(s)", def.Name, len(problems))
	}

	fmt.Printf("pipeline %s is valid (%d extensions)\n", def.Name, len(def.ExtensionOrder))
	return nil
}
