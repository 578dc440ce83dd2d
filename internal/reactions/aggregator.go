// Package reactions maintains per-message emoji aggregates with optimistic
// local toggles corrected by authoritative server reconciliation.
package reactions

import (
	"log/slog"
	"sort"

	"github.com/estiakahmed98/chatsync/internal/domain"
)

// Aggregator is the reaction state for one conversation. It is owned by a
// single SyncController; the controller serializes all access.
type Aggregator struct {
	byMessage map[string]map[string]*domain.ReactionAggregate // messageID -> emoji -> aggregate
	logger    *slog.Logger
}

// NewAggregator creates an empty aggregator.
func NewAggregator(conversationID string) *Aggregator {
	return &Aggregator{
		byMessage: make(map[string]map[string]*domain.ReactionAggregate),
		logger:    slog.Default().With("component", "reaction_aggregator", "conversation_id", conversationID),
	}
}

// ToggleLocal optimistically flips the user's membership in the emoji's
// reactor set before the server confirms. A first reaction creates the
// aggregate; a removal that empties the set deletes it. It reports whether
// the user is a reactor after the toggle.
func (a *Aggregator) ToggleLocal(messageID, emoji, userID string) bool {
	emojis, ok := a.byMessage[messageID]
	if !ok {
		emojis = make(map[string]*domain.ReactionAggregate)
		a.byMessage[messageID] = emojis
	}

	agg, ok := emojis[emoji]
	if !ok {
		created := domain.NewReactionAggregate(messageID, emoji, []string{userID})
		emojis[emoji] = &created
		return true
	}

	if agg.Has(userID) {
		delete(agg.ReactorIDs, userID)
		if agg.Count() == 0 {
			delete(emojis, emoji)
			if len(emojis) == 0 {
				delete(a.byMessage, messageID)
			}
		}
		return false
	}

	agg.ReactorIDs[userID] = true
	return true
}

// RevertLocal undoes a failed optimistic toggle. Toggle is self-inverse, so
// reverting is just toggling again.
func (a *Aggregator) RevertLocal(messageID, emoji, userID string) {
	a.ToggleLocal(messageID, emoji, userID)
}

// Reconcile replaces all aggregates for a message with the server's
// authoritative list. This is the only path that can correct an optimistic
// mistake, such as a concurrent toggle from a second device.
func (a *Aggregator) Reconcile(messageID string, authoritative []domain.ReactionEntry) {
	delete(a.byMessage, messageID)
	if len(authoritative) == 0 {
		return
	}

	emojis := make(map[string]*domain.ReactionAggregate, len(authoritative))
	for _, entry := range authoritative {
		if len(entry.UserIDs) == 0 {
			continue
		}
		agg := domain.NewReactionAggregate(messageID, entry.Emoji, entry.UserIDs)
		emojis[entry.Emoji] = &agg
	}
	if len(emojis) > 0 {
		a.byMessage[messageID] = emojis
	}
}

// Forget drops all aggregates for a message, used when an optimistic
// placeholder is discarded.
func (a *Aggregator) Forget(messageID string) {
	delete(a.byMessage, messageID)
}

// Rename moves aggregates from an optimistic placeholder id to the confirmed
// server id during reconciliation.
func (a *Aggregator) Rename(oldID, newID string) {
	emojis, ok := a.byMessage[oldID]
	if !ok {
		return
	}
	delete(a.byMessage, oldID)
	for _, agg := range emojis {
		agg.MessageID = newID
	}
	a.byMessage[newID] = emojis
}

// For returns the aggregates for a message in stable emoji order.
func (a *Aggregator) For(messageID string) []domain.ReactionAggregate {
	emojis, ok := a.byMessage[messageID]
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(emojis))
	for emoji := range emojis {
		keys = append(keys, emoji)
	}
	sort.Strings(keys)

	out := make([]domain.ReactionAggregate, 0, len(keys))
	for _, emoji := range keys {
		out = append(out, *emojis[emoji])
	}
	return out
}
