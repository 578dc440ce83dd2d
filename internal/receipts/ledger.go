// Package receipts tracks per-message, per-user delivery/read state for one
// conversation and derives per-message status from the conversation-level
// read pointers.
package receipts

import (
	"log/slog"
	"time"

	"github.com/estiakahmed98/chatsync/internal/domain"
)

// MessageIndex is the subset of the message store the ledger needs: enough
// to check that a message exists and who authored it when.
type MessageIndex interface {
	Get(id string) (domain.Message, bool)
	Messages() []domain.Message
}

// Status is the derived delivery state of a self-authored message.
type Status struct {
	Kind  StatusKind
	Count int
}

// StatusKind orders the three delivery states; read outranks delivered
// outranks sent.
type StatusKind int

const (
	StatusSent StatusKind = iota
	StatusDelivered
	StatusRead
)

func (k StatusKind) String() string {
	switch k {
	case StatusRead:
		return "read"
	case StatusDelivered:
		return "delivered"
	default:
		return "sent"
	}
}

// Ledger is the receipt state for one conversation. It is owned by a single
// SyncController; the controller serializes all access.
type Ledger struct {
	index    MessageIndex
	receipts map[string]map[string]*domain.Receipt // messageID -> userID -> receipt
	pointers map[string]domain.ReadPointer         // userID -> read pointer
	logger   *slog.Logger
}

// NewLedger creates an empty ledger backed by the given message index.
func NewLedger(conversationID string, index MessageIndex) *Ledger {
	return &Ledger{
		index:    index,
		receipts: make(map[string]map[string]*domain.Receipt),
		pointers: make(map[string]domain.ReadPointer),
		logger:   slog.Default().With("component", "receipt_ledger", "conversation_id", conversationID),
	}
}

// ApplyUpdates merges a batch of receipt updates. Each update takes the
// later-or-existing value per timestamp field, so the result is the same in
// any arrival order and duplicates are harmless. Updates for unknown message
// ids are dropped silently; receipts are best-effort annotations.
func (l *Ledger) ApplyUpdates(updates []domain.ReceiptUpdate) {
	for _, u := range updates {
		if _, ok := l.index.Get(u.MessageID); !ok {
			l.logger.Debug("Dropping receipt for unknown message", "message_id", u.MessageID)
			continue
		}
		l.merge(u.MessageID, domain.Receipt{
			MessageID:   u.MessageID,
			UserID:      u.UserID,
			DeliveredAt: u.DeliveredAt,
			ReadAt:      u.ReadAt,
		})
	}
}

// RecordSelf synthesizes the immediate self-delivered, self-read receipt for
// a locally authored message.
func (l *Ledger) RecordSelf(messageID, selfID string, at time.Time) {
	t := at
	l.merge(messageID, domain.Receipt{
		MessageID:   messageID,
		UserID:      selfID,
		DeliveredAt: &t,
		ReadAt:      &t,
	})
}

// Rename moves receipts from an optimistic placeholder id to the confirmed
// server id during reconciliation.
func (l *Ledger) Rename(oldID, newID string) {
	rows, ok := l.receipts[oldID]
	if !ok {
		return
	}
	delete(l.receipts, oldID)
	for _, r := range rows {
		r.MessageID = newID
		l.merge(newID, *r)
	}
}

// Forget drops all receipts for a message, used when an optimistic
// placeholder is discarded after a failed send.
func (l *Ledger) Forget(messageID string) {
	delete(l.receipts, messageID)
}

// ApplyConversationRead advances a participant's read pointer and backfills a
// read receipt for every message authored by any other user with CreatedAt at
// or before the pointer. Existing later receipts are never regressed.
// Messages that enter the store after the pointer event are still covered:
// StatusFor consults the pointer map directly, so no re-backfill is needed.
func (l *Ledger) ApplyConversationRead(userID string, lastReadAt time.Time) {
	existing, ok := l.pointers[userID]
	if ok && !lastReadAt.After(existing.LastReadAt) {
		return
	}
	l.pointers[userID] = domain.ReadPointer{UserID: userID, LastReadAt: lastReadAt}

	t := lastReadAt
	for _, m := range l.index.Messages() {
		if m.SenderID == userID || m.CreatedAt.After(lastReadAt) {
			continue
		}
		l.merge(m.ID, domain.Receipt{
			MessageID: m.ID,
			UserID:    userID,
			ReadAt:    &t,
		})
	}
}

// Receipt returns the receipt for a (message, user) pair, if present.
func (l *Ledger) Receipt(messageID, userID string) (domain.Receipt, bool) {
	if rows, ok := l.receipts[messageID]; ok {
		if r, ok := rows[userID]; ok {
			return *r, true
		}
	}
	return domain.Receipt{}, false
}

// Pointer returns a participant's conversation read pointer, if present.
func (l *Ledger) Pointer(userID string) (domain.ReadPointer, bool) {
	p, ok := l.pointers[userID]
	return p, ok
}

// StatusFor computes the delivery status of a message authored by selfID.
// Counts exclude the author; read takes precedence over delivered over sent.
// Messages authored by others have no meaningful status and report sent/0.
func (l *Ledger) StatusFor(msg domain.Message, selfID string) Status {
	if msg.SenderID != selfID {
		return Status{Kind: StatusSent}
	}

	readers := make(map[string]bool)
	deliveredCount := 0
	for userID, r := range l.receipts[msg.ID] {
		if userID == selfID {
			continue
		}
		if r.Read() {
			readers[userID] = true
		}
		if r.Delivered() {
			deliveredCount++
		}
	}
	// The read pointer covers this message even when no explicit receipt row
	// was materialized, e.g. for messages paginated in after the pointer event.
	for userID, p := range l.pointers {
		if userID == selfID || readers[userID] {
			continue
		}
		if !msg.CreatedAt.After(p.LastReadAt) {
			readers[userID] = true
		}
	}

	switch {
	case len(readers) > 0:
		return Status{Kind: StatusRead, Count: len(readers)}
	case deliveredCount > 0:
		return Status{Kind: StatusDelivered, Count: deliveredCount}
	default:
		return Status{Kind: StatusSent}
	}
}

func (l *Ledger) merge(messageID string, update domain.Receipt) {
	rows, ok := l.receipts[messageID]
	if !ok {
		rows = make(map[string]*domain.Receipt)
		l.receipts[messageID] = rows
	}
	if r, ok := rows[update.UserID]; ok {
		r.Merge(update)
		return
	}
	row := update
	rows[update.UserID] = &row
}
