package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist or is not visible to the caller
var ErrNotFound = errors.New("record not found")

// EntryRepository defines operations on journal entries
type EntryRepository interface {
	Create(ctx context.Context, entry *JournalEntry) error
	FindForUser(ctx context.Context, userID, id uuid.UUID) (*JournalEntry, error)

	// ListByUser returns entries newest first
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*JournalEntry, error)

	// ListSince returns entries created at or after since, oldest first
	ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*JournalEntry, error)

	UpdateMood(ctx context.Context, id uuid.UUID, label string, score int) error
}

// MessageRepository defines operations on conversation messages
type MessageRepository interface {
	// CreateBatch inserts all messages in one statement, preserving order
	CreateBatch(ctx context.Context, messages []*ConversationMessage) error

	// ListByEntry returns messages in ascending creation order
	ListByEntry(ctx context.Context, entryID uuid.UUID) ([]*ConversationMessage, error)
}

// SummaryRepository defines operations on weekly summaries
type SummaryRepository interface {
	Create(ctx context.Context, summary *WeeklySummary) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*WeeklySummary, error)
}

// EventProcessor defines the interface for processing persistence events asynchronously
type EventProcessor interface {
	// Start begins processing events from the channel
	Start(ctx context.Context) error

	// Stop gracefully shuts down the event processor
	Stop() error

	// ProcessEvent sends an event to be processed asynchronously
	ProcessEvent(event any) error

	// Health returns the health status of the processor
	Health() ProcessorHealth
}

// ProcessorHealth represents the health status of the event processor
type ProcessorHealth struct {
	IsRunning      bool  `json:"is_running"`
	QueueSize      int   `json:"queue_size"`
	ProcessedCount int64 `json:"processed_count"`
	ErrorCount     int64 `json:"error_count"`

	// LastProcessedAt is the start time until the first event succeeds
	LastProcessedAt time.Time `json:"last_processed_at"`
}

// DatabaseManager defines the interface for database management operations
type DatabaseManager interface {
	// Connect establishes database connection
	Connect(ctx context.Context, driver, dsn string) error

	// Close closes the database connection
	Close() error

	// Migrate runs database migrations
	Migrate() error

	// Health checks database connectivity
	Health(ctx context.Context) error

	// GetRepositories returns initialized repositories
	GetRepositories() (EntryRepository, MessageRepository, SummaryRepository)
}

// TransactionManager defines interface for database transactions
type TransactionManager interface {
	// WithTransaction executes a function within a database transaction
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
