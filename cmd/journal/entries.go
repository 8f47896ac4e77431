package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"journal-relay/domain/persistence"

	"github.com/spf13/cobra"
)

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List journal entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		entries, err := client.ListEntries(cmd.Context())
		if err != nil {
			return err
		}
		printEntries(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(entriesCmd)
}

func printEntries(out io.Writer, entries []persistence.JournalEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "Brak wpisów")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUTWORZONO\tNASTRÓJ")
	for _, e := range entries {
		label := e.MoodLabel
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.CreatedAt.Local().Format(time.DateTime), label)
	}
	w.Flush()
}
