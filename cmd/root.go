// Copyright © Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package cmd is the grid engine's command-line front end, standing up an
// in-process demo cluster (one Scheduler, one fake Cluster/Messenger, a
// handful of registered deployments) for local exercise of the scheduler.
// Grounded on azcopy's cmd/root.go cobra wiring, reworked from a transfer-job
// CLI to a compute-job one.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ignite-grid/compute-core/common"
	"github.com/ignite-grid/compute-core/jobsAdmin"
	"github.com/spf13/cobra"
)

var outputFormatRaw string
var gridOutputFormat common.OutputFormat
var logLevelRaw string

var rootCmd = &cobra.Command{
	Version: common.GridEngineVersion,
	Use:     "gridctl",
	Short:   "gridctl drives an in-process compute-grid scheduler",
	Long: `gridctl stands up a single-process instance of the grid engine
(Scheduler, fake Cluster, fake Messenger, fake Deployment registry) and lets
you submit jobs to it and observe the scheduler's state.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := gridOutputFormat.Parse(outputFormatRaw); err != nil {
			return err
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormatRaw, "output-type", "text", "Format of the command's output. The choices include: text, json. The default value is 'text'.")
	rootCmd.PersistentFlags().StringVar(&logLevelRaw, "log-level", "INFO", "Minimum severity logged to the job log file. One of: NONE, FATAL, PANIC, ERROR, WARNING, INFO, DEBUG.")
}

func parseLogLevel() common.LogLevel {
	var lvl common.LogLevel
	if err := lvl.Parse(strings.ToUpper(logLevelRaw)); err != nil {
		return common.ELogLevel.Info()
	}
	return lvl
}

func printOutput(builder common.OutputBuilder) {
	fmt.Println(builder(gridOutputFormat))
}

// schedulerCountersOutput renders a jobsAdmin.Counters snapshot through
// common.GetSchedulerSummaryOutputBuilder, bridging the two packages at the
// one place that may legally import both.
func schedulerCountersOutput(c jobsAdmin.Counters) common.OutputBuilder {
	return common.GetSchedulerSummaryOutputBuilder(c.Active, c.Passive, c.SyncRunning, c.Cancelled, c.Finished, c.Activated, c.CancelledN)
}
