package domain

import (
	"encoding/json"
	"time"
)

// Push event payloads. Each one corresponds to a single conversation-scoped
// topic on the bus; decoding happens once at the ingestion boundary so the
// handlers only ever see the canonical shapes.

// TypingEvent signals that a user is typing. Absence of typing is never
// signalled explicitly; it is expressed purely through TTL expiry.
type TypingEvent struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

// ReceiptUpdate is a single delivery/read annotation for one message.
type ReceiptUpdate struct {
	MessageID   string     `json:"messageId"`
	UserID      string     `json:"userId"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

// ReceiptUpdateEvent carries a batch of receipt updates. The wire format
// historically had two shapes: the canonical {"updates": [...]} and a legacy
// {"messageId": ..., "receipts": [...]} where the message id lived outside
// the rows. UnmarshalJSON normalizes both into Updates so nothing downstream
// has to sniff shapes.
type ReceiptUpdateEvent struct {
	Updates []ReceiptUpdate `json:"updates"`
}

func (e *ReceiptUpdateEvent) UnmarshalJSON(data []byte) error {
	var wire struct {
		Updates   []ReceiptUpdate `json:"updates"`
		MessageID string          `json:"messageId"`
		Receipts  []struct {
			UserID      string     `json:"userId"`
			DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
			ReadAt      *time.Time `json:"readAt,omitempty"`
		} `json:"receipts"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	e.Updates = wire.Updates
	if len(wire.Updates) == 0 && wire.MessageID != "" {
		for _, r := range wire.Receipts {
			e.Updates = append(e.Updates, ReceiptUpdate{
				MessageID:   wire.MessageID,
				UserID:      r.UserID,
				DeliveredAt: r.DeliveredAt,
				ReadAt:      r.ReadAt,
			})
		}
	}
	return nil
}

// ReactionEntry is the wire form of one emoji aggregate on a message.
type ReactionEntry struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	UserIDs []string `json:"userIds"`
}

// ReactionUpdateEvent replaces the full reaction state of one message with
// the server's authoritative aggregates.
type ReactionUpdateEvent struct {
	MessageID string          `json:"messageId"`
	Reactions []ReactionEntry `json:"reactions"`
}

// ConversationReadEvent advances a participant's conversation-level read
// pointer.
type ConversationReadEvent struct {
	UserID     string    `json:"userId"`
	LastReadAt time.Time `json:"lastReadAt"`
}

// MembershipEvent mirrors the three channel-membership signals: a completed
// subscription delivering the full roster, a member joining, and a member
// leaving. Exactly one of Members (roster) or UserID (add/remove) is set.
type MembershipEvent struct {
	Members []string `json:"members,omitempty"`
	UserID  string   `json:"userId,omitempty"`
}
