package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dossier/internal/logging"
	"dossier/internal/server"
)

var (
	serveAddr  string
	serveDrain time.Duration
)

// serveCmd runs the HTTP adapter
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve investigations over HTTP",
	Long: `Starts the HTTP adapter:

  POST /investigate   {"query": "..."} -> {"run_id": "..."}
  GET  /stream/{id}   Server-Sent Events; resumes after Last-Event-ID
  GET  /runs/{id}     run snapshot (live or archived)
  GET  /tools         tool catalog
  GET  /usage         token usage, per run with ?run=

On SIGINT/SIGTERM the server stops accepting work and waits for in-flight
runs up to --drain before cancelling them.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().DurationVar(&serveDrain, "drain", 30*time.Second, "How long to wait for in-flight runs on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.logUsage()

	svc := a.svc
	srv := a.server(server.Config{Addr: cfg.Server.Addr, AllowedOrigin: cfg.Server.AllowedOrigin})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		return svc.Run(gctx, cfg.Events.GetSweepInterval())
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Server("shutting down; draining runs for up to %v", serveDrain)
		drainCtx, cancel := context.WithTimeout(context.Background(), serveDrain)
		defer cancel()
		if err := svc.Shutdown(drainCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
