// Package domain contains core concepts of the conversation messaging system.
// This file defines Message records and related rules.
// Messages are immutable once persisted.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConversationID keys a conversation and its derived room.
type ConversationID string

// Message represents an immutable chat record. ID and CreatedAt are
// assigned by the message store at persistence time; store assignment
// order is the authoritative delivery order for a conversation.
type Message struct {
	ID             uuid.UUID
	ConversationID ConversationID
	SenderID       string
	Content        string
	CreatedAt      time.Time
}
