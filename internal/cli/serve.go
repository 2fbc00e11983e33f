package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jtejido/kioskscanner/internal/server"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(opts *rootOptions) *cobra.Command {
	var selftest bool

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the capture API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.stderr = cmd.OutOrStdout()
			deps, err := build(opts, true)
			if err != nil {
				return err
			}
			defer deps.Close()
			log := deps.logs.Logger
			cfg := deps.cfg

			if selftest {
				report, err := deps.svc.SelfTest()
				if err != nil {
					log.Error("selftest.failed", "error", err)
				} else {
					log.Info("selftest.passed",
						"tier", report.Libraries.Tier,
						"device_library", report.Libraries.DevicePath,
						"devices", len(report.Devices))
				}
			}

			srv := server.New(deps.svc, server.Config{
				CORSOrigins: cfg.Server.CORSOrigins,
				APIKey:      cfg.Server.APIKey,
				ReadTimeout: cfg.Server.ReadTimeout,
				AccessLog:   deps.logs.Writer,
				Logger:      log,
				Metrics:     deps.metrics.Handler(),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				if cfg.Server.UseHTTPS {
					errc <- srv.ListenTLS(cfg.Server.Addr(), cfg.Server.CertFile, cfg.Server.KeyFile)
					return
				}
				errc <- srv.Listen(cfg.Server.Addr())
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			log.Info("server.shutdown")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		},
	}

	c.Flags().BoolVar(&selftest, "selftest", false, "resolve the SDK and enumerate readers before serving")
	return c
}
