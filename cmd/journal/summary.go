package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Generate and save a summary of the current week",
	Long: `Ask the assistant to summarise every conversation since Monday.
The summary is streamed to the terminal and saved to the journal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		client, err := newClient()
		if err != nil {
			return err
		}
		entryFlag, _ := cmd.Flags().GetString("entry")

		printer := &replyPrinter{out: cmd.OutOrStdout()}
		session, err := openSession(ctx, client, entryFlag, printer, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		if _, err := session.WeeklySummary(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringP("entry", "e", "", "entry the summary exchange is recorded in (default is a new entry)")
	rootCmd.AddCommand(summaryCmd)
}
