package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/ylol-app/ylol/internal/adapters/http"
	"github.com/ylol-app/ylol/internal/domain"
	"github.com/ylol-app/ylol/internal/observability"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversation over HTTP",
	Long: `Serve loads the latest session and exposes the conversation over HTTP:
state snapshots, a server-sent event stream, message submission, mode
switches and flushes. Pending messages are flushed on shutdown.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := observability.WithFields("component", "server", "version", version)

	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry, version)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		// exporters may already hold connections
		return errors.Join(err, shutdownTelemetry(context.WithoutCancel(ctx)))
	}
	a.conv.Initialize(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpadapter.NewServer(a.conv, a.store, domain.UserID(cfg.UserID)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("ylol API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return errors.Join(
			srv.Shutdown(sctx),
			a.shutdown(sctx),
			shutdownTelemetry(sctx),
		)
	})

	return g.Wait()
}
