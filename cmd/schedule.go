package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/api"
	"github.com/shelfscan/shelfscan/internal/app"
)

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Runs scrapes on a fixed interval and serves the status API",
		Long: `Executes a scrape run immediately, then repeats on the
configured interval until interrupted. While running it serves health
probes, Prometheus metrics, and run/record endpoints over HTTP.`,
		RunE: runScheduleCommand,
	}
}

func runScheduleCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiServer := api.NewServer(a.Store, a.Stats, a.Registry, a.Logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.Logger.Info("status server started", zap.Int("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("status server error", zap.Error(err))
			stop()
		}
	}()

	loopErr := scheduleLoop(ctx, a)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("status server shutdown error", zap.Error(err))
	}

	if loopErr != nil && !errors.Is(loopErr, context.Canceled) {
		return loopErr
	}
	a.Logger.Info("scheduler stopped")
	return nil
}

// scheduleLoop runs immediately, then on every tick. A run abort stops
// the loop; per-item failures inside a run do not.
func scheduleLoop(ctx context.Context, a *app.App) error {
	interval := a.Config.Interval()
	a.Logger.Info("scheduler started", zap.Duration("interval", interval))

	if err := runOnce(ctx, a); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := runOnce(ctx, a); err != nil {
				return err
			}
		}
	}
}

func runOnce(ctx context.Context, a *app.App) error {
	stats, err := executeRun(ctx, a)
	if err != nil {
		return fmt.Errorf("scheduled run failed: %w", err)
	}
	a.Logger.Info("scheduled run finished",
		zap.String("run_id", stats.RunID),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.TotalFailed()),
	)
	return nil
}
