package typing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRegistry(clock *fakeClock) *Registry {
	return NewRegistry("conv1", WithClock(clock.Now))
}

func TestRegistry_SignalExpiresAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := newTestRegistry(clock)

	reg.Signal("bob", "Bob")

	// Visible two seconds in, gone one second later.
	clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"Bob"}, reg.ActiveTypers("alice"))

	clock.Advance(time.Second)
	assert.Empty(t, reg.ActiveTypers("alice"))
}

func TestRegistry_RepeatSignalExtendsExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := newTestRegistry(clock)

	reg.Signal("bob", "Bob")
	clock.Advance(2 * time.Second)
	reg.Signal("bob", "Bob")

	// Past the original expiry but within the renewed one.
	clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"Bob"}, reg.ActiveTypers("alice"))
}

func TestRegistry_ExcludesSelf(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := newTestRegistry(clock)

	reg.Signal("alice", "Alice")
	reg.Signal("bob", "Bob")

	assert.Equal(t, []string{"Alice"}, reg.ActiveTypers("bob"))
}

func TestRegistry_OrderedByFirstSeen(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := newTestRegistry(clock)

	reg.Signal("carol", "Carol")
	clock.Advance(100 * time.Millisecond)
	reg.Signal("bob", "Bob")
	clock.Advance(100 * time.Millisecond)
	// Re-signalling carol must not move her to the back.
	reg.Signal("carol", "Carol")

	assert.Equal(t, []string{"Carol", "Bob"}, reg.ActiveTypers(""))
}

func TestRegistry_SweepPrunesExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := newTestRegistry(clock)

	reg.Signal("bob", "Bob")
	clock.Advance(DefaultTTL + time.Millisecond)
	reg.sweep()

	reg.mu.Lock()
	defer reg.mu.Unlock()
	assert.Empty(t, reg.entries)
}

func TestRegistry_FallsBackToUserID(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := newTestRegistry(clock)

	reg.Signal("bob", "")
	assert.Equal(t, []string{"bob"}, reg.ActiveTypers(""))
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  string
	}{
		{"nobody", nil, ""},
		{"one", []string{"Bob"}, "Bob is typing..."},
		{"two", []string{"Bob", "Carol"}, "Bob and Carol are typing..."},
		{"many", []string{"Bob", "Carol", "Dave", "Erin"}, "Bob, Carol and 2 others are typing..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.names))
		})
	}
}
