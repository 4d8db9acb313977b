package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/pkg/engine"
	"github.com/pipewright/pipewright/pkg/extensions"
	"github.com/pipewright/pipewright/pkg/pipeline"
	"github.com/pipewright/pipewright/pkg/resources"
	"github.com/pipewright/pipewright/pkg/stores"
)

// runResult is the aggregate output of one pipeline run.
type runResult struct {
	RunID           string                            `json:"run_id"`
	Pipeline        string                            `json:"pipeline"`
	Stack           string                            `json:"stack"`
	Status          string                            `json:"status"`
	Error           string                            `json:"error,omitempty"`
	CleanupError    string                            `json:"cleanup_error,omitempty"`
	ExtensionStates map[string]engine.ExecutionState  `json:"extension_states"`
	ExtensionData   map[string]map[string]interface{} `json:"extension_data"`
	Outputs         map[string]interface{}            `json:"outputs"`
	Resources       map[string]interface{}            `json:"resources,omitempty"`
}

func newRunCommand() *cobra.Command {
	var (
		stack         string
		statePath     string
		metricsServer bool
		showResources bool
	)

	cmd := &cobra.Command{
		Use:   "run <pipeline-file>",
		Short: "Execute a pipeline",
		Long: `Execute a pipeline definition from end to end.

Extensions run sequentially in declaration order. Secrets are loaded into
the state store before the first extension executes, and every extension is
cleaned up in reverse order when the run finishes. The aggregate result is
printed as JSON on stdout.`,
		Example: `  # Run a pipeline
  pipewright run pipeline.yaml

  # Run against a named stack with run history recorded
  pipewright run --stack staging --state runs.db pipeline.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), cmd.Root().Version, args[0], stack, statePath, metricsServer, showResources)
		},
	}

	cmd.Flags().StringVar(&stack, "stack", "dev", "stack name for this run")
	cmd.Flags().StringVar(&statePath, "state", "", "run-history database path (overrides the pipeline's state_path)")
	cmd.Flags().BoolVar(&metricsServer, "metrics", false, "serve Prometheus metrics during the run")
	cmd.Flags().BoolVar(&showResources, "resources", false, "include the resource tree in the result")

	return cmd
}

func runPipeline(ctx context.Context, version, path, stack, statePath string, metricsServer, showResources bool) error {
	def, err := pipeline.Load(path)
	if err != nil {
		return err
	}

	tel, err := newTelemetry(version, metricsServer)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if metricsServer {
		if err := tel.StartMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	backend := resources.NewMockBackend(stack, tel.Logger)

	registry := extensions.NewRegistry(def.Core.ExtensionDir, tel.Logger)
	registry.RegisterBuiltins()
	factories, err := registry.LoadAll(def.RequiredExtensions())
	if err != nil {
		return err
	}

	orch, err := engine.NewOrchestrator(def.Name, backend, def, tel)
	if err != nil {
		return err
	}

	if statePath == "" {
		statePath = def.Core.StatePath
	}
	var store *stores.SQLiteStore
	if statePath != "" {
		store, err = openStore(ctx, statePath)
		if err != nil {
			return err
		}
		defer store.Close()

		now := time.Now()
		if err := store.CreateRun(ctx, &stores.Run{
			ID:        orch.RunID(),
			Pipeline:  def.Name,
			Stack:     stack,
			Status:    stores.RunStatusRunning,
			StartedAt: now,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		orch.SetRecorder(stores.NewRunRecorder(store))
	}

	orch.RegisterExtensions(factories)

	execErr := orch.Execute(ctx)
	cleanupErr := orch.Cleanup()

	result := buildResult(orch, backend, def, stack, execErr, cleanupErr, showResources)
	if store != nil {
		finalizeRun(ctx, store, orch.RunID(), result)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode run result: %w", err)
	}

	if execErr != nil {
		return execErr
	}
	return cleanupErr
}

func buildResult(orch *engine.Orchestrator, backend *resources.MockBackend, def *pipeline.Definition, stack string, execErr, cleanupErr error, showResources bool) *runResult {
	result := &runResult{
		RunID:           orch.RunID(),
		Pipeline:        def.Name,
		Stack:           stack,
		Status:          "completed",
		ExtensionStates: orch.State().ExtensionStates(),
		ExtensionData:   orch.State().AllExtensionData(),
		Outputs:         backend.Outputs(),
	}
	if execErr != nil {
		result.Status = "failed"
		result.Error = execErr.Error()
	}
	if cleanupErr != nil {
		result.CleanupError = cleanupErr.Error()
	}
	if showResources {
		result.Resources = backend.ResourceTree()
	}
	return result
}

func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func finalizeRun(ctx context.Context, store *stores.SQLiteStore, runID string, result *runResult) {
	status := stores.RunStatusCompleted
	var errMsg *string
	if result.Error != "" {
		status = stores.RunStatusFailed
		errMsg = &result.Error
	}
	var outputs *string
	if data, err := json.Marshal(result.Outputs); err == nil {
		s := string(data)
		outputs = &s
	}
	if err := store.CompleteRun(ctx, runID, status, errMsg, outputs); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to finalize run record: %v\n", err)
	}
}
