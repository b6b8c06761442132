package cli

import (
	"github.com/spf13/cobra"

	"github.com/cemaco/titlegen/internal/httpapi"
	"github.com/cemaco/titlegen/internal/store"
)

// NewServeCmd creates the "serve" command: the read-only status API
// over the job store.
func NewServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API",
		Long: `Serves job and batch-run state over HTTP for operators and downstream
exporters: /healthz, /jobs, /jobs/{sku}, /runs, /runs/{id}.`,
		Example: `  titlegen serve --listen :8080`,
		RunE: func(_ *cobra.Command, _ []string) error {
			st, err := store.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			return httpapi.Serve(listen, httpapi.NewHandler(st))
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8080", "address to listen on")
	return cmd
}
