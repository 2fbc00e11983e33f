// Package cli holds the kiosk-scanner commands.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	debug      bool
	simulate   bool
	stderr     io.Writer
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "kiosk-scanner",
		Short:        "Fingerprint capture service for kiosk readers",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.stderr = cmd.ErrOrStderr()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", envOr("KIOSK_CONFIG", "kiosk-scanner.toml"), "config file (TOML, or YAML by extension)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.simulate, "simulate", false, "use the simulated reader instead of the vendor SDK")

	cmd.AddCommand(serveCmd(opts), selftestCmd(opts), captureCmd(opts), codesCmd())
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
