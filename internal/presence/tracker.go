// Package presence maintains the set of users currently subscribed to a
// conversation's live channel. Membership is transport-derived, not business
// data: it mirrors subscription/member events and nothing else.
package presence

import (
	"log/slog"
	"sort"
)

// Tracker is the online-member set for one conversation. Presence is
// last-write-wins per user id; no ordering is assumed between add and remove
// events beyond causal delivery on the same channel. The tracker is owned by
// a single SyncController, which serializes access.
type Tracker struct {
	online map[string]bool
	logger *slog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(conversationID string) *Tracker {
	return &Tracker{
		online: make(map[string]bool),
		logger: slog.Default().With("component", "presence_tracker", "conversation_id", conversationID),
	}
}

// SetAll replaces the whole roster, mirroring a successful channel
// subscription that delivers the full member list.
func (t *Tracker) SetAll(memberIDs []string) {
	t.online = make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		t.online[id] = true
	}
	t.logger.Debug("Roster replaced", "count", len(t.online))
}

// Add marks a member online. Adding an already-online member is a no-op.
func (t *Tracker) Add(id string) {
	t.online[id] = true
}

// Remove marks a member offline. Removing an unknown member is a no-op.
func (t *Tracker) Remove(id string) {
	delete(t.online, id)
}

// IsOnline reports whether a user is currently subscribed.
func (t *Tracker) IsOnline(id string) bool {
	return t.online[id]
}

// Online returns the online user ids in a stable order.
func (t *Tracker) Online() []string {
	ids := make([]string, 0, len(t.online))
	for id := range t.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of online members.
func (t *Tracker) Count() int {
	return len(t.online)
}
