package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newWatchCmd runs the polling loop and the HTTP control server until
// interrupted.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the monitoring loop as a daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, configPath())
			if err != nil {
				return err
			}
			defer a.Close()
			logger := a.Logger()

			if err := a.Orchestrator().Start(ctx); err != nil {
				return err
			}

			httpSrv := a.HTTPServer()
			go func() {
				logger.Info("http server listening", zap.String("addr", httpSrv.Addr))
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", zap.Error(err))
				}
			}()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			select {
			case s := <-sig:
				logger.Info("shutdown signal received", zap.String("signal", s.String()))
			case <-ctx.Done():
			}

			a.Orchestrator().Stop()
			select {
			case <-a.Orchestrator().Done():
			case <-time.After(30 * time.Second):
				logger.Warn("loop did not drain in time, exiting anyway")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown failed", zap.Error(err))
			}
			return nil
		},
	}
}
