package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const demoTaskTimeout = 30 * time.Second

var submitTaskName string

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit one synthetic execute-request to a fresh in-process scheduler and print the result",
	Long: `submit stands up the same in-process Cluster/Messenger/Scheduler
as 'serve', posts a single execute-request built from --task, waits for the
scheduler's reply, and prints it. Useful for exercising the scheduler's
hot path (§4.E) from the command line without writing Go.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env := newDemoEnv()
		ctx, cancel := context.WithTimeout(cmd.Context(), demoTaskTimeout)
		defer cancel()

		jobID, result, err := submitAndWait(ctx, env, submitTaskName, map[string]any{"task": submitTaskName})
		if err != nil {
			return fmt.Errorf("submit %s: %w", jobID, err)
		}
		if result.Err != nil {
			fmt.Printf("job %s finished with error: %v\n", jobID, result.Err)
			return nil
		}
		fmt.Printf("job %s finished: %v\n", jobID, result.Result)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitTaskName, "task", "echo", "Name of a registered deployment to run (e.g. echo, fail).")
	rootCmd.AddCommand(submitCmd)
}
