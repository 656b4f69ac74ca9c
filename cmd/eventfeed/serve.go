package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/yair/eventfeed/pkg/interfaces"
	"github.com/yair/eventfeed/pkg/logger"
	"github.com/yair/eventfeed/pkg/metrics"
)

func newServeCommand(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			log, err := newLogger(cfg, "stdout")
			if err != nil {
				return err
			}
			defer log.Sync()

			reg := prometheus.NewRegistry()
			m := metrics.New(reg)

			f, err := buildFeed(cfg, log, m)
			if err != nil {
				return err
			}

			handler := interfaces.NewFeedHandler(f.coordinator,
				interfaces.WithHandlerLogger(log),
				interfaces.WithLocation(f.location),
				interfaces.WithPageSize(cfg.Feed.PageSize),
			)
			router := interfaces.NewRouter(handler, m)
			interfaces.LogRoutes(router, log)

			srv := &http.Server{
				Addr:         ":" + cfg.Server.Port,
				Handler:      router,
				ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
				WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("server listening", logger.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("server forced to shutdown", logger.Error(err))
				return err
			}

			log.Info("server stopped")
			return nil
		},
	}
}
