package models

import (
	"time"

	"github.com/google/uuid"
)

// Message roles and types for the per-job conversation log.
const (
	MessageRoleUser   = "user"
	MessageRoleSystem = "system"

	MessageTypeText   = "text"
	MessageTypeStatus = "status"
	MessageTypeEvent  = "event"
)

// ConversationMessage is one entry in a job's append-only message log.
type ConversationMessage struct {
	ID          string    `json:"id" badgerhold:"key"`
	JobID       uint64    `json:"job_id" badgerhold:"index"`
	Role        string    `json:"role"`
	MessageType string    `json:"message_type"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewConversationMessage appends-ready message with a fresh ID.
func NewConversationMessage(jobID uint64, role, messageType, content string) *ConversationMessage {
	return &ConversationMessage{
		ID:          uuid.New().String(),
		JobID:       jobID,
		Role:        role,
		MessageType: messageType,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
}
