package persistence

import (
	"context"
	"fmt"

	"journal-relay/domain/persistence"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SummaryRepository implements persistence.SummaryRepository
type SummaryRepository struct {
	db *gorm.DB
}

// NewSummaryRepository creates a new weekly summary repository
func NewSummaryRepository(db *gorm.DB) persistence.SummaryRepository {
	return &SummaryRepository{db: db}
}

// Create stores a weekly summary
func (r *SummaryRepository) Create(ctx context.Context, summary *persistence.WeeklySummary) error {
	db := dbFromContext(ctx, r.db)
	if err := db.Create(summary).Error; err != nil {
		return fmt.Errorf("failed to create weekly summary: %w", err)
	}
	return nil
}

// ListByUser lists the user's summaries, most recent week first
func (r *SummaryRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*persistence.WeeklySummary, error) {
	db := dbFromContext(ctx, r.db)
	var summaries []*persistence.WeeklySummary
	if err := db.Where("user_id = ?", userID).
		Order("week_start DESC").
		Order("created_at DESC").
		Find(&summaries).Error; err != nil {
		return nil, fmt.Errorf("failed to list weekly summaries: %w", err)
	}
	return summaries, nil
}
