package cli

import (
	"github.com/spf13/cobra"

	"github.com/cemaco/titlegen/internal/store"
)

// NewRetryCmd creates the "retry" command: it forces errored jobs back
// to pending so the next run re-admits them even though their input
// fingerprint is unchanged.
func NewRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-queue errored jobs for the next run",
		Example: `  titlegen retry
  titlegen run --input records.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.ResetStatus(cmd.Context(), store.StatusError)
			if err != nil {
				return err
			}
			cmd.Printf("Re-queued %d errored job(s)\n", n)
			return nil
		},
	}
	return cmd
}
