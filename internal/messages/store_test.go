package messages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estiakahmed98/chatsync/internal/domain"
)

func msg(id, sender, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:             id,
		ConversationID: "conv1",
		SenderID:       sender,
		Content:        content,
		CreatedAt:      at,
		Type:           domain.MessageTypeText,
	}
}

func TestStore_AppendIncomingIsIdempotent(t *testing.T) {
	store := NewStore("conv1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := store.AppendIncoming(msg("m1", "alice", "hello", base))
	assert.True(t, first.Added)

	again := store.AppendIncoming(msg("m1", "alice", "hello", base))
	assert.False(t, again.Added)
	assert.Equal(t, 1, store.Len())
}

func TestStore_OrderingByTimestampThenID(t *testing.T) {
	store := NewStore("conv1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.AppendIncoming(msg("m3", "alice", "c", base.Add(2*time.Second)))
	store.AppendIncoming(msg("m1", "alice", "a", base))
	store.AppendIncoming(msg("mB", "bob", "tie", base.Add(time.Second)))
	store.AppendIncoming(msg("mA", "carol", "tie", base.Add(time.Second)))

	got := store.Messages()
	require.Len(t, got, 4)
	assert.Equal(t, []string{"m1", "mA", "mB", "m3"}, []string{got[0].ID, got[1].ID, got[2].ID, got[3].ID})
}

func TestStore_OptimisticReconciliation(t *testing.T) {
	store := NewStore("conv1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	placeholder := store.InsertOptimistic("alice", "hello", domain.MessageTypeText, nil, base)
	require.True(t, placeholder.IsOptimistic())
	assert.Equal(t, 1, store.Len())

	echo := msg("srv1", "alice", "hello", base.Add(2*time.Second))
	result := store.AppendIncoming(echo)

	assert.True(t, result.Added)
	assert.Equal(t, placeholder.ID, result.ReplacedPlaceholder)
	assert.Equal(t, 1, store.Len())
	assert.False(t, store.Contains(placeholder.ID))
	assert.True(t, store.Contains("srv1"))
}

func TestStore_ReconciliationRespectsWindow(t *testing.T) {
	store := NewStore("conv1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	placeholder := store.InsertOptimistic("alice", "hello", domain.MessageTypeText, nil, base)

	// Same sender and content, but timestamped outside the window: this is
	// a distinct message and must not consume the placeholder.
	echo := msg("srv1", "alice", "hello", base.Add(DefaultReconcileWindow+time.Second))
	result := store.AppendIncoming(echo)

	assert.True(t, result.Added)
	assert.Empty(t, result.ReplacedPlaceholder)
	assert.Equal(t, 2, store.Len())
	assert.True(t, store.Contains(placeholder.ID))
}

func TestStore_ReconciliationWindowBoundaryInclusive(t *testing.T) {
	store := NewStore("conv1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	placeholder := store.InsertOptimistic("alice", "hello", domain.MessageTypeText, nil, base)

	// Exactly at the window edge the echo still matches the placeholder.
	echo := msg("srv1", "alice", "hello", base.Add(DefaultReconcileWindow))
	result := store.AppendIncoming(echo)

	assert.True(t, result.Added)
	assert.Equal(t, placeholder.ID, result.ReplacedPlaceholder)
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.Contains("srv1"))
}

func TestStore_ReconciliationSkipsMismatchedContent(t *testing.T) {
	store := NewStore("conv1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.InsertOptimistic("alice", "hello", domain.MessageTypeText, nil, base)
	result := store.AppendIncoming(msg("srv1", "alice", "different", base.Add(time.Second)))

	assert.True(t, result.Added)
	assert.Empty(t, result.ReplacedPlaceholder)
	assert.Equal(t, 2, store.Len())
}

func TestStore_AtMostOnePlaceholderConsumed(t *testing.T) {
	store := NewStore("conv1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	p1 := store.InsertOptimistic("alice", "hi", domain.MessageTypeText, nil, base)
	p2 := store.InsertOptimistic("alice", "hi", domain.MessageTypeText, nil, base.Add(time.Second))

	result := store.AppendIncoming(msg("srv1", "alice", "hi", base.Add(2*time.Second)))

	assert.Equal(t, p1.ID, result.ReplacedPlaceholder)
	assert.Equal(t, 2, store.Len())
	assert.True(t, store.Contains(p2.ID))
}

func TestStore_DiscardOptimistic(t *testing.T) {
	store := NewStore("conv1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	placeholder := store.InsertOptimistic("alice", "oops", domain.MessageTypeText, nil, base)
	assert.True(t, store.DiscardOptimistic(placeholder.ID))
	assert.Equal(t, 0, store.Len())

	// Discarding again, or discarding a server message, is a no-op.
	assert.False(t, store.DiscardOptimistic(placeholder.ID))
	store.AppendIncoming(msg("srv1", "alice", "kept", base))
	assert.False(t, store.DiscardOptimistic("srv1"))
	assert.Equal(t, 1, store.Len())
}

func TestStore_SetInitialKeepsPlaceholders(t *testing.T) {
	store := NewStore("conv1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.AppendIncoming(msg("old", "bob", "stale", base.Add(-time.Hour)))
	placeholder := store.InsertOptimistic("alice", "in flight", domain.MessageTypeText, nil, base)

	store.SetInitial([]domain.Message{
		msg("m1", "bob", "a", base.Add(-2*time.Minute)),
		msg("m2", "bob", "b", base.Add(-time.Minute)),
	})

	assert.Equal(t, 3, store.Len())
	assert.False(t, store.Contains("old"))
	assert.True(t, store.Contains(placeholder.ID))

	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, placeholder.ID, latest.ID)
}

func TestStore_PrependOlderSkipsDuplicates(t *testing.T) {
	store := NewStore("conv1")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store.SetInitial([]domain.Message{msg("m3", "bob", "c", base)})

	added := store.PrependOlder([]domain.Message{
		msg("m1", "bob", "a", base.Add(-2*time.Minute)),
		msg("m2", "bob", "b", base.Add(-time.Minute)),
		msg("m3", "bob", "c", base),
	})

	assert.Equal(t, 2, added)
	got := store.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m3", got[2].ID)
}
