package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"journal-relay/domain/persistence"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EntryRepository implements persistence.EntryRepository
type EntryRepository struct {
	db *gorm.DB
}

// NewEntryRepository creates a new journal entry repository
func NewEntryRepository(db *gorm.DB) persistence.EntryRepository {
	return &EntryRepository{db: db}
}

// Create creates a new journal entry
func (r *EntryRepository) Create(ctx context.Context, entry *persistence.JournalEntry) error {
	db := dbFromContext(ctx, r.db)
	if err := db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create journal entry: %w", err)
	}
	return nil
}

// FindForUser finds a journal entry owned by userID
func (r *EntryRepository) FindForUser(ctx context.Context, userID, id uuid.UUID) (*persistence.JournalEntry, error) {
	db := dbFromContext(ctx, r.db)
	var entry persistence.JournalEntry
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("journal entry %s: %w", id, persistence.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find journal entry: %w", err)
	}
	return &entry, nil
}

// ListByUser lists the user's entries newest first
func (r *EntryRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*persistence.JournalEntry, error) {
	db := dbFromContext(ctx, r.db)
	var entries []*persistence.JournalEntry
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	return entries, nil
}

// ListSince lists the user's entries created at or after since, oldest first
func (r *EntryRepository) ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*persistence.JournalEntry, error) {
	db := dbFromContext(ctx, r.db)
	var entries []*persistence.JournalEntry
	if err := db.Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list journal entries since %s: %w", since.Format(time.RFC3339), err)
	}
	return entries, nil
}

// UpdateMood stores the latest mood analysis on the entry
func (r *EntryRepository) UpdateMood(ctx context.Context, id uuid.UUID, label string, score int) error {
	db := dbFromContext(ctx, r.db)
	result := db.Model(&persistence.JournalEntry{}).Where("id = ?", id).Updates(map[string]interface{}{
		"mood_label": label,
		"mood_score": score,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update entry mood: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("journal entry %s: %w", id, persistence.ErrNotFound)
	}
	return nil
}
