package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusTasksToRun []string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Run a batch of tasks against a fresh in-process scheduler and print its counters",
	Long: `status is a convenience wrapper around 'serve --task' that skips the
blocking wait: it submits every --task, waits for each to finish, and prints
the scheduler's observability counters (§6) — active/passive/syncRunning/
cancelled/finished counts plus lifetime activated/cancelled totals.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env := newDemoEnv()

		for _, task := range statusTasksToRun {
			ctx, cancel := context.WithTimeout(cmd.Context(), demoTaskTimeout)
			_, _, err := submitAndWait(ctx, env, task, map[string]any{"task": task})
			cancel()
			if err != nil {
				fmt.Printf("task %q: %v\n", task, err)
			}
		}

		printOutput(schedulerCountersOutput(env.scheduler.Counters()))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringSliceVar(&statusTasksToRun, "task", []string{"echo"}, "Task name(s) to run before reporting counters. May be repeated.")
	rootCmd.AddCommand(statusCmd)
}
