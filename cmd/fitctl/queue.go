package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/offline"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or drain the offline write queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending offline actions, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		actions, err := offline.NewQueue(store, offline.WithLogger(cliLogger)).Snapshot(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), actions)
		}
		out := cmd.OutOrStdout()
		if len(actions) == 0 {
			fmt.Fprintln(out, "Queue is empty.")
			return nil
		}
		for _, a := range actions {
			fmt.Fprintf(out, "%s  %-6s %-18s %s  queued %s\n",
				a.ID, a.Mutation.Op, a.Mutation.Table, a.Mutation.RowID, a.QueuedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay pending offline actions against the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		backend, closeFn, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		queue := offline.NewQueue(store, offline.WithLogger(cliLogger))
		result, err := queue.Drain(cmd.Context(), userID, offline.ExecutorFunc(func(ctx context.Context, m domain.Mutation) error {
			_, err := backend.Apply(ctx, m)
			return err
		}))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Applied %d of %d actions.\n", result.Applied, result.Attempts)
		for _, f := range result.Failed {
			fmt.Fprintf(out, "  dropped %s (%s %s): %v\n", f.Action.ID, f.Action.Mutation.Op, f.Action.Mutation.Table, f.Err)
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("%d actions were rejected by the backend", len(result.Failed))
		}
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd, queueDrainCmd)
	rootCmd.AddCommand(queueCmd)
}
