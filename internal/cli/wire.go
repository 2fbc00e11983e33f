package cli

import (
	"fmt"
	"log/slog"

	"github.com/jtejido/kioskscanner/internal/config"
	"github.com/jtejido/kioskscanner/internal/logging"
	"github.com/jtejido/kioskscanner/internal/metrics"
	"github.com/jtejido/kioskscanner/internal/scanner"
	"github.com/jtejido/kioskscanner/internal/scanner/simulator"
	"github.com/jtejido/kioskscanner/internal/service"
)

// runtimeDeps is everything a command needs, built from the config.
type runtimeDeps struct {
	cfg     *config.Config
	logs    *logging.Logging
	metrics *metrics.Collector
	svc     *service.Service
}

func (d *runtimeDeps) Close() {
	if d.svc != nil {
		d.svc.Close()
	}
	if d.logs != nil {
		_ = d.logs.Close()
	}
}

func build(opts *rootOptions, logFile bool) (*runtimeDeps, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.simulate {
		cfg.Scanner.Simulate = true
	}

	lo := logging.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		BackupCount: cfg.Log.BackupCount,
		Debug:       opts.debug,
		Stdout:      opts.stderr,
	}
	if logFile {
		lo.File = cfg.Log.File
	}
	logs, err := logging.Setup(lo)
	if err != nil {
		return nil, err
	}

	resolver, err := newResolver(cfg, logs.Logger)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	m := metrics.New()
	svc := service.New(resolver, service.Options{
		Timeout:     cfg.Timeout(),
		MaxAttempts: cfg.Scanner.RetryAttempts,
		Grace:       cfg.Scanner.Grace,
		Resolution:  cfg.Scanner.Resolution,
		Template:    cfg.TemplateFormat(),
		Format:      cfg.ImageFormat(),
		HistorySize: cfg.Scanner.HistorySize,
		Logger:      logs.Logger,
		Metrics:     m,
	})
	return &runtimeDeps{cfg: cfg, logs: logs, metrics: m, svc: svc}, nil
}

// newResolver picks the simulated SDK or the system loader with the native
// binding.
func newResolver(cfg *config.Config, log *slog.Logger) (*scanner.Resolver, error) {
	opts := []scanner.Option{scanner.WithLogger(log)}
	if cfg.Scanner.Simulate {
		script, err := simulator.ParseOutcomes(cfg.Scanner.SimScript)
		if err != nil {
			return nil, err
		}
		sdk, err := simulator.New(simulator.Config{
			Script:     script,
			Latency:    cfg.Scanner.SimLatency,
			SampleDir:  cfg.Scanner.SimSampleDir,
			Resolution: cfg.Scanner.Resolution,
		})
		if err != nil {
			return nil, fmt.Errorf("simulator: %w", err)
		}
		log.Warn("scanner.simulated", "script", cfg.Scanner.SimScript)
		return scanner.NewResolver(cfg.LibraryPaths(), sdk, sdk.Bind, opts...), nil
	}
	loader := scanner.SystemLoader{Logger: log}
	return scanner.NewResolver(cfg.LibraryPaths(), loader, scanner.NativeBinder, opts...), nil
}
