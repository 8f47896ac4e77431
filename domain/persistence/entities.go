package persistence

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JournalEntry groups one journaling session of a user
type JournalEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	MoodLabel string    `gorm:"type:varchar(16)" json:"mood_label,omitempty"`
	MoodScore int       `gorm:"default:0" json:"mood_score"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// Relations
	Messages []ConversationMessage `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE" json:"-"`
}

// ConversationMessage stores one user or assistant turn of an entry
type ConversationMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	EntryID   uuid.UUID `gorm:"type:uuid;not null;index" json:"entry_id"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// WeeklySummary stores an assistant-generated summary of one week
type WeeklySummary struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	WeekStart time.Time `gorm:"not null" json:"week_start"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeCreate hook for JournalEntry
func (e *JournalEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// BeforeCreate hook for ConversationMessage
func (m *ConversationMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// BeforeCreate hook for WeeklySummary
func (s *WeeklySummary) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for JournalEntry
func (JournalEntry) TableName() string {
	return "journal_entries"
}

// TableName returns the table name for ConversationMessage
func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

// TableName returns the table name for WeeklySummary
func (WeeklySummary) TableName() string {
	return "weekly_summaries"
}

// PersistenceEvent represents events that can be processed asynchronously
type PersistenceEvent[T any] struct {
	Type EventType `json:"type"`
	Data T         `json:"data"`
}

// EventType represents the type of persistence event
type EventType string

const (
	EventTypeRecomputeMood EventType = "recompute_mood"
)

// RecomputeMoodEvent asks the processor to re-score the mood of an entry
type RecomputeMoodEvent struct {
	EntryID uuid.UUID `json:"entry_id"`
}
