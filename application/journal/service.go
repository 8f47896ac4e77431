package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"journal-relay/application/mood"
	"journal-relay/domain/persistence"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrInvalidInput marks a request the caller must fix
var ErrInvalidInput = errors.New("invalid input")

const maxMessagesPerBatch = 100

// MoodAnalyzer scores user messages
type MoodAnalyzer interface {
	Analyze(userTexts []string) mood.Result
}

// MoodScheduler queues an asynchronous mood update for an entry
type MoodScheduler interface {
	ScheduleRecompute(ctx context.Context, entryID uuid.UUID) error
}

// NewMessage is one row to append to an entry's conversation
type NewMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Service implements the journal use cases on top of the repositories
type Service struct {
	entries   persistence.EntryRepository
	messages  persistence.MessageRepository
	summaries persistence.SummaryRepository
	tx        persistence.TransactionManager
	analyzer  MoodAnalyzer
	scheduler MoodScheduler
}

// NewService creates a journal service. When scheduler is nil, mood is
// recomputed synchronously after each message insert.
func NewService(
	entries persistence.EntryRepository,
	messages persistence.MessageRepository,
	summaries persistence.SummaryRepository,
	tx persistence.TransactionManager,
	analyzer MoodAnalyzer,
	scheduler MoodScheduler,
) *Service {
	return &Service{
		entries:   entries,
		messages:  messages,
		summaries: summaries,
		tx:        tx,
		analyzer:  analyzer,
		scheduler: scheduler,
	}
}

// CreateEntry starts a new journal entry for the user
func (s *Service) CreateEntry(ctx context.Context, userID uuid.UUID) (*persistence.JournalEntry, error) {
	entry := &persistence.JournalEntry{UserID: userID}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries returns the user's entries newest first, or oldest first from since when given
func (s *Service) ListEntries(ctx context.Context, userID uuid.UUID, since *time.Time) ([]*persistence.JournalEntry, error) {
	if since != nil {
		return s.entries.ListSince(ctx, userID, *since)
	}
	return s.entries.ListByUser(ctx, userID)
}

// ListMessages returns the conversation of an entry owned by the user
func (s *Service) ListMessages(ctx context.Context, userID, entryID uuid.UUID) ([]*persistence.ConversationMessage, error) {
	if _, err := s.entries.FindForUser(ctx, userID, entryID); err != nil {
		return nil, err
	}
	return s.messages.ListByEntry(ctx, entryID)
}

// AddMessages appends rows to an entry in one transaction and triggers a mood update
func (s *Service) AddMessages(ctx context.Context, userID, entryID uuid.UUID, msgs []NewMessage) ([]*persistence.ConversationMessage, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: messages must not be empty", ErrInvalidInput)
	}
	if len(msgs) > maxMessagesPerBatch {
		return nil, fmt.Errorf("%w: too many messages: %d (max %d)", ErrInvalidInput, len(msgs), maxMessagesPerBatch)
	}

	rows := make([]*persistence.ConversationMessage, 0, len(msgs))
	for i, m := range msgs {
		if m.Role != "user" && m.Role != "assistant" {
			return nil, fmt.Errorf("%w: message %d: role must be user or assistant", ErrInvalidInput, i)
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, fmt.Errorf("%w: message %d: content cannot be empty", ErrInvalidInput, i)
		}
		rows = append(rows, &persistence.ConversationMessage{EntryID: entryID, Role: m.Role, Content: m.Content})
	}

	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.entries.FindForUser(txCtx, userID, entryID); err != nil {
			return err
		}
		return s.messages.CreateBatch(txCtx, rows)
	})
	if err != nil {
		return nil, err
	}

	s.refreshMood(ctx, entryID)
	return rows, nil
}

func (s *Service) refreshMood(ctx context.Context, entryID uuid.UUID) {
	if s.scheduler != nil {
		err := s.scheduler.ScheduleRecompute(ctx, entryID)
		if err == nil {
			return
		}
		logrus.WithError(err).WithField("entry_id", entryID).Warn("Could not queue mood update, computing inline")
	}

	result, err := s.computeMood(ctx, entryID)
	if err != nil {
		logrus.WithError(err).WithField("entry_id", entryID).Error("Failed to compute mood")
		return
	}
	if err := s.entries.UpdateMood(ctx, entryID, result.Label, result.Score); err != nil {
		logrus.WithError(err).WithField("entry_id", entryID).Error("Failed to store mood")
	}
}

// Mood returns the stored mood of an entry, computing it when none is stored yet
func (s *Service) Mood(ctx context.Context, userID, entryID uuid.UUID) (mood.Result, error) {
	entry, err := s.entries.FindForUser(ctx, userID, entryID)
	if err != nil {
		return mood.Result{}, err
	}
	if entry.MoodLabel != "" {
		return mood.Result{Label: entry.MoodLabel, Score: entry.MoodScore}, nil
	}
	return s.computeMood(ctx, entryID)
}

func (s *Service) computeMood(ctx context.Context, entryID uuid.UUID) (mood.Result, error) {
	msgs, err := s.messages.ListByEntry(ctx, entryID)
	if err != nil {
		return mood.Result{}, err
	}
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "user" {
			texts = append(texts, m.Content)
		}
	}
	return s.analyzer.Analyze(texts), nil
}

// SaveSummary stores a weekly summary for the user
func (s *Service) SaveSummary(ctx context.Context, userID uuid.UUID, weekStart time.Time, content string) (*persistence.WeeklySummary, error) {
	if weekStart.IsZero() {
		return nil, fmt.Errorf("%w: week_start is required", ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content cannot be empty", ErrInvalidInput)
	}

	summary := &persistence.WeeklySummary{
		UserID:    userID,
		WeekStart: weekStart.UTC(),
		Content:   content,
	}
	if err := s.summaries.Create(ctx, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// ListSummaries returns the user's summaries, latest week first
func (s *Service) ListSummaries(ctx context.Context, userID uuid.UUID) ([]*persistence.WeeklySummary, error) {
	return s.summaries.ListByUser(ctx, userID)
}
