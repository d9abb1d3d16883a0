// Package main is the entry point for the functions gateway.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/upb/functions-gateway/config"
	"github.com/upb/functions-gateway/internal/observability"
	"go.uber.org/zap"
)

// options are the command line overrides shared by every command
type options struct {
	functionsDir string
	port         int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the CLI. Without a subcommand it serves.
func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "functions-gateway",
		Short:        "Serve handler modules as authenticated POST endpoints",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.functionsDir, "functions-dir", "",
		"directory to discover handler modules in (overrides FUNCTIONS_DIR)")

	serveCmd := newServeCmd(opts)
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd, newRoutesCmd(opts))
	return rootCmd
}

// apply copies the flags that were set onto cfg
func (o *options) apply(cmd *cobra.Command, cfg *config.Config) {
	if o.functionsDir != "" {
		cfg.Functions.Dir = o.functionsDir
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = o.port
	}
}

// initLogger builds the logger from LOG_LEVEL and LOG_FORMAT
func initLogger() (*zap.Logger, error) {
	return observability.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}
