// Package messages holds the ordered, deduplicated message collection for a
// single conversation, including reconciliation of optimistic placeholders
// with their authoritative server echoes.
package messages

import (
	"log/slog"
	"sort"
	"time"

	"github.com/estiakahmed98/chatsync/internal/domain"
)

// DefaultReconcileWindow is how far apart an optimistic placeholder and its
// server echo may be timestamped and still be considered the same message.
// Wide enough to absorb network latency, tight enough not to swallow a rapid
// second message with identical content.
const DefaultReconcileWindow = 8 * time.Second

// Store is the ordered message collection for one conversation. It is owned
// by a single SyncController; the controller serializes all access.
type Store struct {
	conversationID  string
	msgs            []domain.Message
	ids             map[string]bool
	reconcileWindow time.Duration
	logger          *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithReconcileWindow overrides the optimistic-match window.
func WithReconcileWindow(d time.Duration) Option {
	return func(s *Store) {
		s.reconcileWindow = d
	}
}

// NewStore creates an empty store for one conversation.
func NewStore(conversationID string, opts ...Option) *Store {
	s := &Store{
		conversationID:  conversationID,
		ids:             make(map[string]bool),
		reconcileWindow: DefaultReconcileWindow,
		logger:          slog.Default().With("component", "message_store", "conversation_id", conversationID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetInitial replaces the store contents with the initial page. Any
// optimistic placeholders already present survive the reset so an in-flight
// send is not lost by a reload.
func (s *Store) SetInitial(msgs []domain.Message) {
	placeholders := make([]domain.Message, 0)
	for _, m := range s.msgs {
		if m.IsOptimistic() {
			placeholders = append(placeholders, m)
		}
	}

	s.msgs = s.msgs[:0]
	s.ids = make(map[string]bool, len(msgs))
	for _, m := range msgs {
		s.insert(m)
	}
	for _, p := range placeholders {
		s.insert(p)
	}
}

// PrependOlder merges an older history page into the store, skipping any
// message whose id is already present. It returns the number of messages
// actually added so a view can compensate its scroll offset.
func (s *Store) PrependOlder(msgs []domain.Message) int {
	added := 0
	for _, m := range msgs {
		if s.ids[m.ID] {
			continue
		}
		s.insert(m)
		added++
	}
	return added
}

// AppendResult describes what AppendIncoming did with a message.
type AppendResult struct {
	// Added is true when the message entered the store (it was not a duplicate).
	Added bool
	// ReplacedPlaceholder holds the optimistic id that was reconciled away,
	// if any.
	ReplacedPlaceholder string
}

// AppendIncoming applies an authoritative message from the server. If an
// optimistic placeholder matches (same sender, content, and type, timestamped
// within the reconcile window), the placeholder is removed and the server
// message takes its place in sort order. At most one placeholder is consumed
// per incoming message. A message whose id is already present is ignored.
func (s *Store) AppendIncoming(msg domain.Message) AppendResult {
	if s.ids[msg.ID] {
		return AppendResult{}
	}

	result := AppendResult{Added: true}
	if idx := s.findPlaceholder(msg); idx >= 0 {
		result.ReplacedPlaceholder = s.msgs[idx].ID
		s.removeAt(idx)
		s.logger.Debug("Reconciled optimistic message",
			"placeholder_id", result.ReplacedPlaceholder,
			"server_id", msg.ID)
	}

	s.insert(msg)
	return result
}

// InsertOptimistic synthesizes a placeholder for a locally authored message
// and inserts it at its sort position (the tail, since it is the newest).
// The caller is responsible for the matching self receipt.
func (s *Store) InsertOptimistic(senderID, content string, msgType domain.MessageType, attachments []domain.Attachment, createdAt time.Time) domain.Message {
	msg := domain.Message{
		ID:             domain.NewOptimisticID(),
		ConversationID: s.conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      createdAt,
		Type:           msgType,
		Attachments:    attachments,
	}
	s.insert(msg)
	return msg
}

// DiscardOptimistic removes a placeholder after a failed send. It reports
// whether the placeholder was present.
func (s *Store) DiscardOptimistic(placeholderID string) bool {
	for i, m := range s.msgs {
		if m.ID == placeholderID && m.IsOptimistic() {
			s.removeAt(i)
			return true
		}
	}
	return false
}

// Messages returns a copy of the ordered message list.
func (s *Store) Messages() []domain.Message {
	out := make([]domain.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Get looks a message up by id.
func (s *Store) Get(id string) (domain.Message, bool) {
	for _, m := range s.msgs {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}

// Contains reports whether a message id is present.
func (s *Store) Contains(id string) bool {
	return s.ids[id]
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	return len(s.msgs)
}

// Latest returns the newest message, if any.
func (s *Store) Latest() (domain.Message, bool) {
	if len(s.msgs) == 0 {
		return domain.Message{}, false
	}
	return s.msgs[len(s.msgs)-1], true
}

// findPlaceholder returns the index of the first optimistic placeholder the
// incoming server message can reconcile, or -1.
func (s *Store) findPlaceholder(msg domain.Message) int {
	for i, m := range s.msgs {
		if !m.IsOptimistic() {
			continue
		}
		if m.SenderID != msg.SenderID || m.Content != msg.Content || m.Type != msg.Type {
			continue
		}
		delta := msg.CreatedAt.Sub(m.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= s.reconcileWindow {
			return i
		}
	}
	return -1
}

// insert places a message at its position in the (CreatedAt, ID) total order.
func (s *Store) insert(msg domain.Message) {
	idx := sort.Search(len(s.msgs), func(i int) bool {
		return msg.Before(s.msgs[i])
	})
	s.msgs = append(s.msgs, domain.Message{})
	copy(s.msgs[idx+1:], s.msgs[idx:])
	s.msgs[idx] = msg
	s.ids[msg.ID] = true
}

func (s *Store) removeAt(i int) {
	delete(s.ids, s.msgs[i].ID)
	s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
}
