// Package cmd provides CLI commands for txningest.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"txn-ingest/pkg/config"
	"txn-ingest/pkg/logging"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configFile string
	envFile    string
	logLevel   string

	cfg    *config.Config
	logger *logging.Logger
}

// newRootCmd builds the command tree. Each call returns independent flag
// state.
func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "txningest",
		Short: "Ingest CSV and XML transaction files and query them",
		Long: `txningest accepts transaction files in CSV or XML, validates every
record, stores each file atomically and serves filtered reads.

Example:
  txningest serve --config config.yaml
  txningest import january.csv february.xml
  txningest query currency USD
  txningest query range 2024-01-01 2024-01-31`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd.Name() == "serve")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", os.Getenv("TXN_CONFIG"), "YAML config file (env TXN_CONFIG)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "env file (default is .env when present)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newQueryCmd(opts))

	return root
}

// load reads the configuration and builds the global logger. Only serve logs
// to the configured outputs; the other commands keep stdout for their results.
func (o *options) load(serving bool) error {
	cfg, err := config.Load(o.configFile, o.envFile)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logConfig := cfg.Log.Logging()
	if !serving {
		logConfig.OutputPaths = []string{"stderr"}
	}
	logger, err := logging.NewLogger(logConfig)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logging.SetGlobal(logger)

	o.cfg = cfg
	o.logger = logger
	return nil
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return newRootCmd().Execute()
}
