package domain

import "sort"

// ReactionAggregate is the grouped view of one emoji on one message: the set
// of users who reacted with it. An aggregate with an empty reactor set is
// removed rather than retained at zero.
type ReactionAggregate struct {
	MessageID  string          `json:"messageId"`
	Emoji      string          `json:"emoji"`
	ReactorIDs map[string]bool `json:"-"`
}

// NewReactionAggregate builds an aggregate from an explicit reactor list,
// deduplicating ids.
func NewReactionAggregate(messageID, emoji string, reactorIDs []string) ReactionAggregate {
	agg := ReactionAggregate{
		MessageID:  messageID,
		Emoji:      emoji,
		ReactorIDs: make(map[string]bool, len(reactorIDs)),
	}
	for _, id := range reactorIDs {
		agg.ReactorIDs[id] = true
	}
	return agg
}

// Count is the number of distinct reactors.
func (a ReactionAggregate) Count() int {
	return len(a.ReactorIDs)
}

// Has reports whether the user is in the reactor set.
func (a ReactionAggregate) Has(userID string) bool {
	return a.ReactorIDs[userID]
}

// Reactors returns the reactor ids in a stable order.
func (a ReactionAggregate) Reactors() []string {
	ids := make([]string, 0, len(a.ReactorIDs))
	for id := range a.ReactorIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
