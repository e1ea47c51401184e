package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"buildctl-agent/src/api"
	"buildctl-agent/src/logger"
	"buildctl-agent/src/mcp"
	"buildctl-agent/src/orchestrator"
)

// shutdownTimeout bounds draining in-flight API requests.
const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the operations over HTTP",
		Long: `Serves the operations as a JSON API under /api/v1, with /healthz and
Prometheus metrics on /metrics. Downloads are confined to download_root.
Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, logger.NewConsoleLogger(), func(a *app) error {
				if addr == "" {
					addr = a.cfg.HTTPAddr
				}
				return serveHTTP(cmd.Context(), a, addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: http_addr)")
	return cmd
}

// serveHTTP runs the API until ctx is done or the listener fails.
func serveHTTP(ctx context.Context, a *app, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(a.orch, a.registry, a.log, api.WithDownloadRoot(a.cfg.DownloadRoot)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("[Serve] listening on %s (%s mode), downloads under %s", addr, orchestrator.DetectMode(a.cfg), a.cfg.DownloadRoot)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		a.log.Info("[Serve] shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the operations as MCP tools over stdio",
		Long: `Runs a Model Context Protocol server on stdin/stdout so an agent can wait
for builds, list, preview and download files, queue builds and create
workspaces. Diagnostics go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol
			log := logger.NewWriterLogger(cmd.ErrOrStderr(), opts.debug)
			return withApp(cmd, opts, log, func(a *app) error {
				return mcp.NewServer(a.orch, version, a.log).Run()
			})
		},
	}
}
