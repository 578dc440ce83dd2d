package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_RosterTransitions(t *testing.T) {
	tracker := NewTracker("conv1")

	tracker.SetAll([]string{"alice", "bob"})
	assert.Equal(t, []string{"alice", "bob"}, tracker.Online())
	assert.True(t, tracker.IsOnline("alice"))
	assert.False(t, tracker.IsOnline("carol"))

	tracker.Add("carol")
	assert.Equal(t, 3, tracker.Count())

	tracker.Remove("alice")
	assert.Equal(t, []string{"bob", "carol"}, tracker.Online())

	// A fresh roster replaces everything, it does not merge.
	tracker.SetAll([]string{"dave"})
	assert.Equal(t, []string{"dave"}, tracker.Online())
}

func TestTracker_AddRemoveAreIdempotent(t *testing.T) {
	tracker := NewTracker("conv1")

	tracker.Add("alice")
	tracker.Add("alice")
	assert.Equal(t, 1, tracker.Count())

	tracker.Remove("alice")
	tracker.Remove("alice")
	tracker.Remove("never-seen")
	assert.Equal(t, 0, tracker.Count())
}
