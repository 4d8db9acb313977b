package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRunsCommand() *cobra.Command {
	var statePath string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded pipeline runs",
		Long:  `Inspect the run history recorded in the state database.`,
	}

	cmd.PersistentFlags().StringVar(&statePath, "state", "pipewright.db", "run-history database path")

	cmd.AddCommand(newRunsListCommand(&statePath))
	cmd.AddCommand(newRunsShowCommand(&statePath))

	return cmd
}

func newRunsListCommand(statePath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, *statePath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(runs)
			}

			for _, run := range runs {
				fmt.Printf("%s  %-10s  %-20s  %s\n",
					run.ID, run.Status, run.Pipeline, run.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")

	return cmd
}

func newRunsShowCommand(statePath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its extension state transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, *statePath)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			states, err := store.ListExtensionStates(ctx, run.ID)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(map[string]interface{}{
				"run":         run,
				"transitions": states,
			})
		},
	}

	return cmd
}
