// Package cli implements the titlegen command tree. One file per
// command, constructors returning *cobra.Command, configuration and
// logging wired once in the root's persistent pre-run.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/cemaco/titlegen/internal/config"
	"github.com/cemaco/titlegen/internal/logging"
)

// defaultConfigFile is looked up in the working directory when
// --config is not given.
const defaultConfigFile = "titlegen.yaml"

//nolint:gochecknoglobals // Set once in PersistentPreRunE, read by subcommands.
var cfg *config.Config

// NewRootCmd creates the titlegen root command.
func NewRootCmd() *cobra.Command {
	var (
		configPath string
		dbPath     string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "titlegen",
		Short: "Batch controller for product title rewriting",
		Long: `titlegen orchestrates batch title rewriting: it fingerprints SKU
records, dispatches only changed ones to the title-generation engine in
bounded concurrent chunks with retries, and tracks a durable per-SKU
status plus a per-chunk audit trail in a local SQLite store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded

			if dbPath != "" {
				cfg.DatabasePath = dbPath
			}
			if debug {
				cfg.Logging.Level = "debug"
				cfg.Logging.Format = "console"
				cfg.Logging.File = ""
			}

			return logging.Init(logging.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				File:   cfg.Logging.File,
			})
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return logging.Close()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigFile, "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "override the job store database path")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging on the console")

	cmd.AddCommand(
		NewRunCmd(),
		NewStatusCmd(),
		NewRetryCmd(),
		NewServeCmd(),
		NewConfigCmd(),
	)

	return cmd
}
