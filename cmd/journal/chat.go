package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"journal-relay/application/conversation"
	"journal-relay/application/mood"
	"journal-relay/domain/chat"
	"journal-relay/infrastructure/relayclient"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const messageEntryFailed = "Błąd tworzenia wpisu"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start or continue a journal conversation",
	Long: `Chat with the journaling assistant. Each line you type is sent as a message.
Type /summary for a weekly summary, /mood for the current mood and /quit to leave.`,
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

		return runChat(ctx, session, printer, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringP("entry", "e", "", "continue an existing entry instead of starting a new one")
	rootCmd.AddCommand(chatCmd)
}

// openSession continues entryFlag when given, otherwise starts a new entry
func openSession(ctx context.Context, client *relayclient.Client, entryFlag string, printer *replyPrinter, errOut io.Writer) (*conversation.Session, error) {
	policy, err := trailingPolicy()
	if err != nil {
		return nil, err
	}

	var entryID uuid.UUID
	if entryFlag != "" {
		if entryID, err = uuid.Parse(entryFlag); err != nil {
			return nil, fmt.Errorf("invalid entry id %q: %w", entryFlag, err)
		}
	} else {
		entry, err := client.CreateEntry(ctx)
		if err != nil {
			fmt.Fprintln(errOut, messageEntryFailed)
			return nil, err
		}
		entryID = entry.ID
	}

	analyzer, err := mood.NewAnalyzer(64)
	if err != nil {
		return nil, err
	}

	session := conversation.NewSession(conversation.Options{
		EntryID:  entryID,
		Streamer: client,
		Store:    client,
		Journal:  client,
		Notifier: consoleNotifier{out: errOut},
		Analyzer: analyzer,
		Policy:   policy,
		Observer: printer,
	})

	if entryFlag != "" {
		if err := session.Load(ctx); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// runChat prints the conversation and sends every input line until EOF or /quit
func runChat(ctx context.Context, session *conversation.Session, printer *replyPrinter, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Wpis %s\n\n", session.EntryID())
	for _, m := range session.Messages() {
		printMessage(out, m)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/mood":
			printMood(out, session.Mood())
			continue
		case "/summary":
			printer.Reset()
			if _, err := session.WeeklySummary(ctx); err == nil {
				fmt.Fprintln(out)
			}
			continue
		}

		printer.Reset()
		err := session.Send(ctx, raw)
		switch {
		case err == nil:
			fmt.Fprintln(out)
		case errors.Is(err, context.Canceled):
			return nil
		}
	}
}

func printMessage(out io.Writer, m chat.Message) {
	if m.Role == chat.RoleUser {
		fmt.Fprintf(out, "> %s\n", m.Content)
		return
	}
	fmt.Fprintf(out, "%s\n\n", m.Content)
}

func printMood(out io.Writer, r mood.Result) {
	fmt.Fprintf(out, "Nastrój: %s (%+d)\n", r.Label, r.Score)
}

// replyPrinter writes only the part of the reply not printed yet
type replyPrinter struct {
	out     io.Writer
	printed string
}

func (p *replyPrinter) OnDelta(cumulative string) {
	fmt.Fprint(p.out, strings.TrimPrefix(cumulative, p.printed))
	p.printed = cumulative
}

// Reset starts a new reply
func (p *replyPrinter) Reset() {
	p.printed = ""
}

type consoleNotifier struct {
	out io.Writer
}

func (n consoleNotifier) Error(message string) {
	fmt.Fprintf(n.out, "✗ %s\n", message)
}

func (n consoleNotifier) Success(message string) {
	fmt.Fprintf(n.out, "✓ %s\n", message)
}
