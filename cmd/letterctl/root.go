package main

import (
	"github.com/spf13/cobra"

	"letters-backend/internal/bootstrap"
	"letters-backend/internal/shared/config"
)

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "letterctl",
		Short:         "Import scanned sponsorship letters",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newDecodeCmd(opts),
		newImportCmd(opts),
		newSaveCmd(opts),
		newTokenCmd(),
	)
	return cmd
}

// loadConfig reads the environment and forces in-process dispatch; the CLI
// runs imports itself instead of handing them to a worker.
func (o *rootOptions) loadConfig() config.Config {
	cfg := config.Load()
	cfg.QueueBackend = "local"
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg
}

func (o *rootOptions) buildApp() (*bootstrap.App, error) {
	return bootstrap.Build(o.loadConfig())
}
