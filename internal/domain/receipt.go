package domain

import "time"

// Receipt records one user's delivery/read acknowledgment of one message.
// At most one receipt exists per (MessageID, UserID). Timestamps only ever
// advance: once DeliveredAt or ReadAt is set it is never cleared or moved
// earlier, and a set ReadAt implies the message counts as delivered.
type Receipt struct {
	MessageID   string     `json:"messageId"`
	UserID      string     `json:"userId"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

// Merge folds an update into the receipt, taking the later-or-existing value
// for each timestamp field. Updates may arrive in any order relative to
// their own timestamps; the merge rule, not arrival order, enforces
// monotonicity. It reports whether anything changed.
func (r *Receipt) Merge(update Receipt) bool {
	changed := false
	if later(update.DeliveredAt, r.DeliveredAt) {
		r.DeliveredAt = update.DeliveredAt
		changed = true
	}
	if later(update.ReadAt, r.ReadAt) {
		r.ReadAt = update.ReadAt
		changed = true
	}
	return changed
}

// Delivered reports whether the message reached the user. A read receipt
// implies delivery even when no explicit delivered timestamp was recorded.
func (r Receipt) Delivered() bool {
	return r.DeliveredAt != nil || r.ReadAt != nil
}

// Read reports whether the user has read the message.
func (r Receipt) Read() bool {
	return r.ReadAt != nil
}

func later(candidate, existing *time.Time) bool {
	if candidate == nil {
		return false
	}
	return existing == nil || candidate.After(*existing)
}

// ReadPointer is a conversation-level high-water mark: every message with
// CreatedAt at or before LastReadAt counts as read by the user, even when no
// explicit receipt row exists yet.
type ReadPointer struct {
	UserID     string    `json:"userId"`
	LastReadAt time.Time `json:"lastReadAt"`
}
