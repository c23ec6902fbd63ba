package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/app"
	"github.com/shelfscan/shelfscan/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Executes one scrape run over the configured targets",
		Long: `Fetches every configured target page once, extracts and
normalizes product records, and upserts them into the store. Prints a
summary and publishes it to the configured broker.`,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	stats, runErr := executeRun(cmd.Context(), a)
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"run %s: %d attempted, %d succeeded (%d created, %d updated, %d unchanged), %d failed\n",
		stats.RunID, stats.Attempted, stats.Succeeded,
		stats.Created, stats.Updated, stats.Unchanged, stats.TotalFailed(),
	)
	return nil
}

// executeRun performs one run, records the stats, and publishes the
// summary. Publish failures are logged, not fatal; the run itself
// already succeeded.
func executeRun(ctx context.Context, a *app.App) (pipeline.RunStats, error) {
	stats, err := a.Runner.Run(ctx, a.Config.Targets)
	a.Stats.Set(stats)
	if err != nil {
		return stats, err
	}

	if id, pubErr := a.Publisher.Publish(ctx, stats); pubErr != nil {
		a.Logger.Warn("publish run summary failed", zap.Error(pubErr))
	} else if id != "" {
		a.Logger.Info("run summary published",
			zap.String("run_id", stats.RunID),
			zap.String("message_id", id),
		)
	}
	return stats, nil
}
