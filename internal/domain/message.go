package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType distinguishes the payload carried by a message.
type MessageType string

const (
	MessageTypeText       MessageType = "text"
	MessageTypeAttachment MessageType = "attachment"
	MessageTypeSystem     MessageType = "system"
)

// optimisticPrefix marks locally generated placeholder ids. Server-assigned
// ids never carry this prefix, so the two id spaces cannot collide.
const optimisticPrefix = "optimistic:"

// Attachment describes a file referenced by a message. The file contents
// live elsewhere; the engine only tracks the reference.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Mime string `json:"mime,omitempty"`
}

// Message is a single conversation message. Within a conversation messages
// are totally ordered by (CreatedAt, ID), and a store never holds two
// entries with the same server id.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"createdAt"`
	Type           MessageType  `json:"type"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// NewOptimisticID generates a placeholder id for a message that has not yet
// been confirmed by the server.
func NewOptimisticID() string {
	return optimisticPrefix + uuid.NewString()
}

// IsOptimistic reports whether the message carries a locally generated
// placeholder id rather than a server-assigned one.
func (m Message) IsOptimistic() bool {
	return strings.HasPrefix(m.ID, optimisticPrefix)
}

// Before reports whether m sorts ahead of other in the conversation's total
// order. Ties on CreatedAt are broken by id so the order is deterministic
// regardless of network arrival order.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
