package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cemaco/titlegen/internal/controller"
	"github.com/cemaco/titlegen/internal/engine"
	"github.com/cemaco/titlegen/internal/store"
)

// NewRunCmd creates the "run" command: one full controller pass over a
// file of normalized records.
func NewRunCmd() *cobra.Command {
	var (
		inputPath string
		mode      string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a batch of SKU records through the engine",
		Long: `Reads normalized SKU records from a JSON file, admits the ones whose
content changed since the last successful run, and processes them in
chunks. Unchanged records are skipped without an engine call.

The command exits non-zero when any SKU ends the run in error, so
callers can hook alerting on the exit code.`,
		Example: `  # Process an export, default options
  titlegen run --input records.json

  # Compute titles without committing results
  titlegen run --input records.json --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := readRecords(inputPath)
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			client := engine.NewHTTPClient(cfg.EngineURL, cfg.Timeout())
			ctrl, err := controller.New(cfg, st, client)
			if err != nil {
				return err
			}

			opts := engine.Options{Mode: mode, DryRun: dryRun}
			summary, err := ctrl.Run(cmd.Context(), records, opts)
			if summary != nil {
				printSummary(cmd, summary, dryRun)
			}
			if err != nil {
				return err
			}
			if summary.HasFailures() {
				return fmt.Errorf("run finished with %d failed sku(s)", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "JSON file with normalized SKU records (required)")
	cmd.Flags().StringVar(&mode, "mode", "", "engine processing mode (defaults to the configured mode)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute titles but do not commit results")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// readRecords loads the normalized-record handoff file: a JSON array of
// {sku, titulo_origen, marca, categoria} objects.
func readRecords(path string) ([]engine.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input %s: %w", path, err)
	}

	var records []engine.Item
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing input %s: %w", path, err)
	}

	for i, rec := range records {
		if rec.SKU == "" {
			return nil, fmt.Errorf("input %s: record %d has no sku", path, i)
		}
	}
	return records, nil
}

func printSummary(cmd *cobra.Command, s *controller.Summary, dryRun bool) {
	label := "Run"
	if dryRun {
		label = "Dry run"
	}
	cmd.Printf("%s: %d admitted, %d skipped, %d succeeded, %d failed, %d chunk(s)\n",
		label, s.Admitted, s.Skipped, s.Succeeded, s.Failed, len(s.Chunks))
	for _, chunk := range s.Chunks {
		cmd.Printf("  %s  %-9s  ok=%d err=%d\n", chunk.BatchID, chunk.Outcome, chunk.Succeeded, chunk.Failed)
	}
}
