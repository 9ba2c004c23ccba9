package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// MessageStorage implements the append-only conversation log on Badger
type MessageStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMessageStorage creates a new MessageStorage instance
func NewMessageStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MessageStorage {
	return &MessageStorage{
		db:     db,
		logger: logger,
	}
}

func (s *MessageStorage) Append(ctx context.Context, msg *models.ConversationMessage) error {
	if err := s.db.Store().Insert(msg.ID, msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *MessageStorage) ListByJob(ctx context.Context, jobID uint64, limit int) ([]*models.ConversationMessage, error) {
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var msgs []models.ConversationMessage
	if err := s.db.Store().Find(&msgs, query); err != nil {
		return nil, fmt.Errorf("failed to list messages for job %d: %w", jobID, err)
	}

	result := make([]*models.ConversationMessage, len(msgs))
	for i := range msgs {
		result[i] = &msgs[i]
	}
	return result, nil
}

func (s *MessageStorage) DeleteByJob(ctx context.Context, jobID uint64) error {
	if err := s.db.Store().DeleteMatching(&models.ConversationMessage{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete messages for job %d: %w", jobID, err)
	}
	return nil
}
