package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/export"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Writes all stored records to a CSV file",
		RunE:  runExportCommand,
	}
	cmd.Flags().StringP("output", "o", "", "output file path (default from config)")
	return cmd
}

func runExportCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	path, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("read output flag: %w", err)
	}
	if path == "" {
		path = a.Config.Export.Path
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}

	rows, err := export.WriteCSV(cmd.Context(), a.Store, f)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close export file: %w", closeErr)
	}
	if err != nil {
		return err
	}

	a.Logger.Info("export finished", zap.String("path", path), zap.Int("rows", rows))
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d records to %s\n", rows, path)
	return nil
}
