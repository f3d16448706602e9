package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"slipstream/internal/jobstore"
	"slipstream/internal/pipeline"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage job records",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsStatsCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var page, pageSize int
	var sortBy, order string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job records",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := jobstore.ListOptions{
				SortBy:   sortBy,
				Order:    order,
				Page:     page,
				PageSize: pageSize,
			}
			if statusFilter != "" {
				status, ok := jobstore.ParseStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFilter)
				}
				opts.Status = status
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := store.FindAll(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if len(result.Items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
				return nil
			}

			rows := make([][]string, 0, len(result.Items))
			for _, record := range result.Items {
				rows = append(rows, []string{
					record.JobID,
					string(record.Status),
					strconv.Itoa(record.Progress) + "%",
					record.OriginalName,
					record.CreatedAt.Local().Format(time.DateTime),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Job ID", "Status", "Progress", "File", "Created"},
				rows, 2))
			p := result.Pagination
			fmt.Fprintf(out, "page %d of %d (%d job(s) total)\n", p.Page, p.TotalPages, p.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Records per page")
	cmd.Flags().StringVar(&sortBy, "sort", "createdAt", "Sort field (createdAt, updatedAt, status, progress)")
	cmd.Flags().StringVar(&order, "order", "desc", "Sort order (asc or desc)")
	return cmd
}

func newJobsStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			counts, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			rows := [][]string{
				{"pending", strconv.Itoa(counts.Pending)},
				{"processing", strconv.Itoa(counts.Processing)},
				{"uploading", strconv.Itoa(counts.Uploading)},
				{"completed", strconv.Itoa(counts.Completed)},
				{"failed", strconv.Itoa(counts.Failed)},
				{"cancelled", strconv.Itoa(counts.Cancelled)},
				{"total", strconv.Itoa(counts.Total)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Status", "Count"},
				rows, 1))
			return nil
		},
	}
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print one job record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("job %s not found", args[0])
			}

			encoded, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job that has not finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := pipeline.CancelRecord(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s cancelled\n", record.JobID)
			return nil
		},
	}
}
