package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const (
	messageExportDone   = "Eksport zakończony"
	messageExportFailed = "Nie udało się wyeksportować dziennika"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the whole journal as JSON or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != "json" && format != "csv" {
			return fmt.Errorf("unsupported format %q: use json or csv", format)
		}
		dir, _ := cmd.Flags().GetString("output")

		client, err := newClient()
		if err != nil {
			return err
		}

		path, err := exportJournal(cmd.Context(), client, format, dir)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s\n", messageExportFailed)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %s\n", messageExportDone, path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "json", "export format: json or csv")
	exportCmd.Flags().StringP("output", "o", ".", "directory the export file is written to")
	rootCmd.AddCommand(exportCmd)
}

type exporter interface {
	Export(ctx context.Context, format string) (string, []byte, error)
}

// exportJournal downloads the journal and writes it under dir using the
// file name suggested by the server
func exportJournal(ctx context.Context, client exporter, format, dir string) (string, error) {
	filename, data, err := client.Export(ctx, format)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
