package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/offboardpro/offboardpro/api/bootstrap"
	"github.com/offboardpro/offboardpro/api/config"
	"github.com/offboardpro/offboardpro/api/router"
	"github.com/offboardpro/offboardpro/api/scheduler"
	"github.com/offboardpro/offboardpro/api/store/postgres"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, gRPC health server and reconciliation schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := bootstrap.Ensure(); err != nil {
		return err
	}
	a := bootstrap.Get()
	if pg, ok := a.Store.(*postgres.Store); ok {
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router.New(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	sched := scheduler.New(a.Billing)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Observer.Run(ctx) })
	g.Go(func() error { return a.GRPC.Serve(ctx, ":"+cfg.GRPCPort) })
	g.Go(func() error { return sched.Run(ctx, cfg.ReconcileSchedule) })
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		a.Hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if cerr := a.Store.Close(); cerr != nil {
		slog.Warn("error closing store", "error", cerr)
	}
	return err
}
