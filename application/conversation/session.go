// Package conversation drives one journal entry's chat: it streams assistant
// replies, keeps the visible message list and stores completed exchanges.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"journal-relay/application/mood"
	"journal-relay/domain/chat"
	"journal-relay/domain/persistence"
	"journal-relay/infrastructure/sse"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// User-facing texts
const (
	Greeting             = "Cześć! Jestem Twoim asystentem AI journaling. Jak minął Ci dzień? Co czujesz teraz?"
	MessageGenericError  = "Wystąpił błąd"
	MessageLoadFailed    = "Nie udało się załadować wiadomości"
	MessageSaveFailed    = "Nie udało się zapisać wiadomości"
	MessageSummarySaved  = "Podsumowanie tygodnia zapisane"
	MessageSummaryFailed = "Nie udało się wygenerować podsumowania"

	summaryPrompt = "Proszę o zwięzłe cotygodniowe podsumowanie moich rozmów i nastrojów. " +
		"Uwzględnij kluczowe tematy, emocje, postępy oraz sugestie na kolejny tydzień. " +
		"Oto treść z ostatnich 7 dni:\n"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrEmptySummary = errors.New("summary reply is empty")
	ErrNoJournal    = errors.New("journal reader is not configured")
)

// Streamer opens a reply stream for the given conversation
type Streamer interface {
	OpenChat(ctx context.Context, messages []chat.Message) (io.ReadCloser, error)
}

// MessageStore persists completed exchanges of an entry
type MessageStore interface {
	AddMessages(ctx context.Context, entryID uuid.UUID, messages []chat.Message) error
}

// JournalReader gives access to stored entries and summaries
type JournalReader interface {
	ListMessages(ctx context.Context, entryID uuid.UUID) ([]persistence.ConversationMessage, error)
	ListEntriesSince(ctx context.Context, since time.Time) ([]persistence.JournalEntry, error)
	SaveSummary(ctx context.Context, weekStart time.Time, content string) (*persistence.WeeklySummary, error)
}

// Notifier shows short status messages to the user
type Notifier interface {
	Error(message string)
	Success(message string)
}

// MoodAnalyzer scores the user's messages
type MoodAnalyzer interface {
	Analyze(userTexts []string) mood.Result
}

// Options configures a Session. Journal, Notifier, Analyzer and Observer are optional.
type Options struct {
	EntryID  uuid.UUID
	Streamer Streamer
	Store    MessageStore
	Journal  JournalReader
	Notifier Notifier
	Analyzer MoodAnalyzer
	Policy   sse.TrailingPolicy

	// Observer receives the growing assistant reply
	Observer sse.Listener
}

// Session is the client side of one journal entry
type Session struct {
	entryID     uuid.UUID
	streamer    Streamer
	store       MessageStore
	journal     JournalReader
	notifier    Notifier
	analyzer    MoodAnalyzer
	observer    sse.Listener
	reassembler *sse.Reassembler
	now         func() time.Time

	mu       sync.Mutex
	messages []chat.Message
	sending  bool
	mood     mood.Result
}

// NewSession creates a session showing the greeting
func NewSession(opts Options) *Session {
	s := &Session{
		entryID:     opts.EntryID,
		streamer:    opts.Streamer,
		store:       opts.Store,
		journal:     opts.Journal,
		notifier:    opts.Notifier,
		analyzer:    opts.Analyzer,
		observer:    opts.Observer,
		reassembler: sse.NewReassembler(opts.Policy),
		now:         time.Now,
		messages:    []chat.Message{{Role: chat.RoleAssistant, Content: Greeting}},
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	s.refreshMood()
	return s
}

// EntryID returns the entry the session writes to
func (s *Session) EntryID() uuid.UUID {
	return s.entryID
}

// Messages returns a copy of the visible conversation
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.messages...)
}

// Mood returns the mood of the visible user messages
func (s *Session) Mood() mood.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mood
}

// CanSend reports whether no reply is in flight
func (s *Session) CanSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.sending
}

// State exposes the reply stream lifecycle
func (s *Session) State() sse.RequestState {
	return s.reassembler.State()
}

// Load replaces the visible conversation with the stored one, or the greeting
// when the entry has no messages yet.
func (s *Session) Load(ctx context.Context) error {
	if s.journal == nil {
		return ErrNoJournal
	}
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	stored, err := s.journal.ListMessages(ctx, s.entryID)
	if err != nil {
		logrus.WithError(err).WithField("entry_id", s.entryID).Error("Error loading messages")
		s.notifier.Error(MessageLoadFailed)
		return err
	}

	msgs := make([]chat.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, chat.Message{Role: chat.Role(m.Role), Content: m.Content})
	}
	if len(msgs) == 0 {
		msgs = append(msgs, chat.Message{Role: chat.RoleAssistant, Content: Greeting})
	}

	s.mu.Lock()
	s.messages = msgs
	s.mu.Unlock()
	s.refreshMood()
	return nil
}

// Send shows the user's message right away, streams the reply into one
// growing assistant message and stores both once the stream has finished.
// On failure the optimistic message is withdrawn and nothing is stored.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	history, base := s.prepare(chat.Message{Role: chat.RoleUser, Content: text}, true)
	if _, err := s.exchange(ctx, history, base); err != nil {
		s.notifier.Error(userMessage(err))
		return err
	}
	return nil
}

// WeeklySummary asks the assistant to summarise the current week (Monday
// onwards) and saves the reply as the week's summary.
func (s *Session) WeeklySummary(ctx context.Context) (string, error) {
	if s.journal == nil {
		return "", ErrNoJournal
	}
	if err := s.acquire(); err != nil {
		return "", err
	}
	defer s.release()

	content, err := s.summarise(ctx)
	if err != nil {
		logrus.WithError(err).WithField("entry_id", s.entryID).Error("Weekly summary failed")
		s.notifier.Error(MessageSummaryFailed)
		return "", err
	}

	s.notifier.Success(MessageSummarySaved)
	return content, nil
}

func (s *Session) summarise(ctx context.Context) (string, error) {
	weekStart := StartOfWeek(s.now())

	text, err := s.collectWeek(ctx, weekStart)
	if err != nil {
		return "", err
	}

	history, base := s.prepare(chat.Message{Role: chat.RoleUser, Content: summaryPrompt + text}, false)
	content, err := s.exchange(ctx, history, base)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptySummary
	}

	if _, err := s.journal.SaveSummary(ctx, weekStart, content); err != nil {
		return "", fmt.Errorf("save summary: %w", err)
	}
	return content, nil
}

func (s *Session) collectWeek(ctx context.Context, weekStart time.Time) (string, error) {
	entries, err := s.journal.ListEntriesSince(ctx, weekStart)
	if err != nil {
		return "", fmt.Errorf("list entries: %w", err)
	}

	var b strings.Builder
	for _, e := range entries {
		msgs, err := s.journal.ListMessages(ctx, e.ID)
		if err != nil {
			return "", fmt.Errorf("list messages of %s: %w", e.ID, err)
		}
		for _, m := range msgs {
			fmt.Fprintf(&b, "\n[%s] %s", m.Role, m.Content)
		}
	}
	return b.String(), nil
}

// exchange streams a reply to history. base is the length the visible list is
// restored to when the exchange fails.
func (s *Session) exchange(ctx context.Context, history []chat.Message, base int) (string, error) {
	prompt := history[len(history)-1]
	replyAt := -1

	open := func(ctx context.Context) (io.ReadCloser, error) {
		return s.streamer.OpenChat(ctx, history)
	}
	onDelta := sse.ListenerFunc(func(cumulative string) {
		s.mu.Lock()
		if replyAt < 0 {
			s.messages = append(s.messages, chat.Message{Role: chat.RoleAssistant, Content: cumulative})
			replyAt = len(s.messages) - 1
		} else {
			s.messages[replyAt].Content = cumulative
		}
		s.mu.Unlock()

		if s.observer != nil {
			s.observer.OnDelta(cumulative)
		}
	})

	content, err := s.reassembler.Stream(ctx, open, onDelta)
	if err != nil {
		s.mu.Lock()
		s.messages = s.messages[:base]
		s.mu.Unlock()
		return "", err
	}

	if content == "" {
		return "", nil
	}

	exchange := []chat.Message{prompt, {Role: chat.RoleAssistant, Content: content}}
	if err := s.store.AddMessages(ctx, s.entryID, exchange); err != nil {
		logrus.WithError(err).WithField("entry_id", s.entryID).Warn("Failed to store messages")
		s.notifier.Error(MessageSaveFailed)
	}
	s.refreshMood()
	return content, nil
}

// prepare returns the conversation to send and the current visible length.
// A visible prompt is appended to the list immediately.
func (s *Session) prepare(prompt chat.Message, visible bool) ([]chat.Message, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := len(s.messages)
	history := make([]chat.Message, 0, base+1)
	history = append(history, s.messages...)
	history = append(history, prompt)
	if visible {
		s.messages = append(s.messages, prompt)
	}
	return history, base
}

func (s *Session) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return sse.ErrBusy
	}
	s.sending = true
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.sending = false
	s.mu.Unlock()
}

func (s *Session) refreshMood() {
	if s.analyzer == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var texts []string
	for _, m := range s.messages {
		if m.Role == chat.RoleUser {
			texts = append(texts, m.Content)
		}
	}
	s.mood = s.analyzer.Analyze(texts)
}

// StartOfWeek returns Monday 00:00 of the week containing t, in t's location
func StartOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}

// userFacing is implemented by errors that carry their own display text
type userFacing interface {
	UserMessage() string
}

func userMessage(err error) string {
	var uf userFacing
	if errors.As(err, &uf) {
		if msg := uf.UserMessage(); msg != "" {
			return msg
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MessageGenericError
}

type nopNotifier struct{}

func (nopNotifier) Error(string)   {}
func (nopNotifier) Success(string) {}
