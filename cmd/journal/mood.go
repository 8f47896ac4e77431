package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var moodCmd = &cobra.Command{
	Use:   "mood",
	Short: "Show the mood of a journal entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		entryFlag, _ := cmd.Flags().GetString("entry")
		entryID, err := uuid.Parse(entryFlag)
		if err != nil {
			return fmt.Errorf("invalid entry id %q: %w", entryFlag, err)
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		result, err := client.Mood(cmd.Context(), entryID)
		if err != nil {
			return err
		}
		printMood(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	moodCmd.Flags().StringP("entry", "e", "", "entry id")
	moodCmd.MarkFlagRequired("entry")
	rootCmd.AddCommand(moodCmd)
}
