package persistence

import (
	"context"
	"fmt"
	"time"

	"journal-relay/domain/persistence"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageRepository implements persistence.MessageRepository
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new conversation message repository
func NewMessageRepository(db *gorm.DB) persistence.MessageRepository {
	return &MessageRepository{db: db}
}

// CreateBatch inserts the messages in one statement. Rows without a timestamp get
// strictly increasing ones so replay order matches insertion order.
func (r *MessageRepository) CreateBatch(ctx context.Context, messages []*persistence.ConversationMessage) error {
	if len(messages) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for i, m := range messages {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
	}

	db := dbFromContext(ctx, r.db)
	if err := db.Create(&messages).Error; err != nil {
		return fmt.Errorf("failed to create conversation messages: %w", err)
	}
	return nil
}

// ListByEntry lists an entry's messages in conversation order
func (r *MessageRepository) ListByEntry(ctx context.Context, entryID uuid.UUID) ([]*persistence.ConversationMessage, error) {
	db := dbFromContext(ctx, r.db)
	var messages []*persistence.ConversationMessage
	if err := db.Where("entry_id = ?", entryID).Order("created_at ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversation messages: %w", err)
	}
	return messages, nil
}
