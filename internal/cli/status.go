package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cemaco/titlegen/internal/store"
)

// NewStatusCmd creates the "status" command for inspecting the job
// store.
func NewStatusCmd() *cobra.Command {
	var (
		sku       string
		statusStr string
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect per-SKU job state and batch runs",
		Example: `  # Counts by status
  titlegen status

  # One SKU in detail
  titlegen status --sku 123456 --json

  # All errored jobs
  titlegen status --status error`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()

			if sku != "" {
				job, getErr := st.GetJob(ctx, sku)
				if getErr != nil {
					return fmt.Errorf("sku %s: %w", sku, getErr)
				}
				return printJSON(cmd, job)
			}

			if statusStr != "" {
				jobs, listErr := st.ListJobs(ctx, store.Status(statusStr), limit)
				if listErr != nil {
					return listErr
				}
				if asJSON {
					return printJSON(cmd, jobs)
				}
				printJobTable(cmd, jobs)
				return nil
			}

			counts, countErr := st.CountByStatus(ctx)
			if countErr != nil {
				return countErr
			}
			if asJSON {
				return printJSON(cmd, counts)
			}
			for _, status := range []store.Status{store.StatusPending, store.StatusProcessing, store.StatusDone, store.StatusError} {
				cmd.Printf("%-12s %d\n", status, counts[status])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sku, "sku", "", "show one SKU in detail")
	cmd.Flags().StringVar(&statusStr, "status", "", "list jobs with the given status")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of jobs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a table")

	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

func printJobTable(cmd *cobra.Command, jobs []*store.SkuJob) {
	const tabPadding = 2
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, tabPadding, ' ', 0)

	fmt.Fprintln(w, "SKU\tStatus\tAttempts\tLast Run\tTitle / Error")
	for _, j := range jobs {
		detail := j.OptimizedTitle
		if j.Status == store.StatusError {
			detail = j.ErrorMessage
		}
		lastRun := ""
		if !j.LastRunAt.IsZero() {
			lastRun = j.LastRunAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", j.SKU, j.Status, j.AttemptCount, lastRun, detail)
	}
	_ = w.Flush()
}
