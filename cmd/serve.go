package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite-grid/compute-core/common"
	"github.com/spf13/cobra"
)

var serveTasksToRun []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an in-process scheduler and optionally run a batch of demo tasks",
	Long: `serve wires up a fake Cluster/Messenger pair and a Scheduler, runs
any --task entries to completion, prints the resulting scheduler counters,
and then blocks until interrupted (Ctrl-C).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env := newDemoEnv()

		logger := common.NewJobLogger(common.NewJobID(), parseLogLevel(), os.TempDir(), "-gridctl-serve")
		logger.OpenLog()
		common.CurrentJobLogger = logger
		defer logger.CloseLog()
		common.LogToJobLogWithPrefix(fmt.Sprintf("serve starting, local node %s", env.local), common.ELogLevel.Info())

		for _, task := range serveTasksToRun {
			ctx, cancel := context.WithTimeout(cmd.Context(), demoTaskTimeout)
			_, result, err := submitAndWait(ctx, env, task, map[string]any{"task": task})
			cancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "task %q: %v\n", task, err)
				continue
			}
			if result.Err != nil {
				fmt.Printf("task %q finished with error: %v\n", task, result.Err)
			} else {
				fmt.Printf("task %q finished: %v\n", task, result.Result)
			}
		}

		c := env.scheduler.Counters()
		printOutput(schedulerCountersOutput(c))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Println("serving; press Ctrl-C to stop")
		<-ctx.Done()
		env.scheduler.Stop(false)
		return nil
	},
}

func init() {
	serveCmd.Flags().StringSliceVar(&serveTasksToRun, "task", nil, "Task name(s) to run immediately on startup (e.g. echo, fail). May be repeated.")
	rootCmd.AddCommand(serveCmd)
}
