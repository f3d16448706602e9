package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one recovery sweep over the upload directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.buildRuntime()
			if err != nil {
				return err
			}
			defer rt.store.Close()

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			rt.orch.Start(runCtx)

			admitted := rt.reconciler.ScanAndRecover(runCtx)
			fmt.Fprintf(cmd.OutOrStdout(), "recovered %d stale upload(s)\n", admitted)

			if wait && admitted > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "waiting for recovered jobs to finish")
				waitDrained(runCtx, rt)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Block until recovered jobs reach a terminal status")
	return cmd
}

// waitDrained blocks until both stage queues have no pending or active
// attempts, then waits out the in-flight goroutines.
func waitDrained(ctx context.Context, rt *runtime) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			busy := 0
			for _, metrics := range rt.orch.QueueMetrics() {
				busy += metrics.Pending + metrics.Active
			}
			if busy == 0 {
				rt.orch.Wait()
				return
			}
		}
	}
}
