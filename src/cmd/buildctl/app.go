package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"buildctl-agent/src/buildserver"
	"buildctl-agent/src/config"
	"buildctl-agent/src/logger"
	"buildctl-agent/src/metrics"
	"buildctl-agent/src/orchestrator"
	"buildctl-agent/src/telemetry"
)

// closeTimeout bounds flushing traces and closing sinks on exit.
const closeTimeout = 10 * time.Second

// app is the wired process: config, sinks, metrics and the orchestrator.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	registry *prometheus.Registry
	sinks    *orchestrator.Sinks
	orch     *orchestrator.Orchestrator
	shutdown telemetry.Shutdown
}

// newApp loads configuration and wires the orchestrator against the build
// server. log receives diagnostics; nil selects a stderr logger honoring --debug.
func newApp(cmd *cobra.Command, opts *rootOptions, log logger.Logger) (*app, error) {
	ctx := cmd.Context()

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.debug {
		cfg.Debug = true
	}
	if log == nil {
		log = logger.NewWriterLogger(cmd.ErrOrStderr(), cfg.Debug)
	}

	shutdown := telemetry.Shutdown(func(context.Context) error { return nil })
	if cfg.OTelEnabled {
		shutdown = telemetry.InitTracer(ctx, "buildctl", os.Stderr, log)
	}

	sinks, err := orchestrator.OpenSinks(ctx, cfg, log)
	if err != nil {
		shutdown(context.WithoutCancel(ctx))
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := buildserver.NewService(cfg.ServerURL, cfg.Token, buildserver.WithTimeout(cfg.RequestTimeout))
	orchOpts := append(sinks.Options(), orchestrator.WithMetrics(metrics.New(registry)))

	return &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		sinks:    sinks,
		orch:     orchestrator.New(svc, log, orchOpts...),
		shutdown: shutdown,
	}, nil
}

// Close flushes traces and closes the sinks, reporting every failure.
func (a *app) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	var result *multierror.Error
	if err := a.sinks.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := a.shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("flush traces: %w", err))
	}
	return result.ErrorOrNil()
}

// withApp runs fn against a wired app and closes it afterwards. A close
// failure is logged, not returned, so it never masks fn's result.
func withApp(cmd *cobra.Command, opts *rootOptions, log logger.Logger, fn func(a *app) error) error {
	a, err := newApp(cmd, opts, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(cmd.Context()); err != nil {
			a.log.Warn("[buildctl] shutdown: %v", err)
		}
	}()
	return fn(a)
}
