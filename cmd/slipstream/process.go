package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"slipstream/internal/jobstore"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var jobID string
	var metaFlags []string

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Admit a local file and run it through the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.buildRuntime()
			if err != nil {
				return err
			}
			defer rt.store.Close()

			metadata, err := parseMetadata(metaFlags)
			if err != nil {
				return err
			}
			if jobID == "" {
				jobID = uuid.NewString()
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			rt.orch.Start(runCtx)

			if _, err := rt.orch.Admit(runCtx, jobID, args[0], metadata); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admitted job %s\n", jobID)

			record, err := waitTerminal(runCtx, rt, jobID)
			if err != nil {
				return err
			}
			switch record.Status {
			case jobstore.StatusCompleted:
				fmt.Fprintf(cmd.OutOrStdout(), "completed: %s\n", record.Result.URL)
				return nil
			case jobstore.StatusFailed:
				return fmt.Errorf("job failed: %s: %s", record.Error.Code, record.Error.Message)
			default:
				return fmt.Errorf("job ended %s", record.Status)
			}
		},
	}

	cmd.Flags().StringVar(&jobID, "job-id", "", "Job identifier (random when omitted)")
	cmd.Flags().StringArrayVarP(&metaFlags, "metadata", "m", nil, "Metadata entry as key=value (repeatable)")
	return cmd
}

func parseMetadata(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata entry %q, want key=value", entry)
		}
		metadata[key] = value
	}
	return metadata, nil
}

func waitTerminal(ctx context.Context, rt *runtime, jobID string) (*jobstore.JobRecord, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			record, err := rt.store.Get(ctx, jobID)
			if err != nil {
				return nil, err
			}
			if record != nil && record.Status.Terminal() {
				return record, nil
			}
		}
	}
}
