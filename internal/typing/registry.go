// Package typing keeps short-lived typing signals for one conversation.
// Signals are never persisted and never explicitly cleared; absence is
// expressed purely through TTL expiry.
package typing

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a typing signal stays visible after the last ping.
	DefaultTTL = 2500 * time.Millisecond

	// DefaultSweepInterval is how often expired entries are pruned.
	DefaultSweepInterval = 800 * time.Millisecond
)

type entry struct {
	userID    string
	name      string
	expiresAt time.Time
	firstSeen time.Time
}

// Registry is the typing state for one conversation. The sweep runs on its
// own goroutine, so unlike the other state components the registry guards
// its map with a mutex.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL overrides the signal lifetime.
func WithTTL(d time.Duration) Option {
	return func(r *Registry) {
		r.ttl = d
	}
}

// WithSweepInterval overrides the prune tick.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) {
		r.sweepInterval = d
	}
}

// WithClock injects a time source, used by tests to step through TTL
// boundaries deterministically.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a registry for one conversation.
func NewRegistry(conversationID string, opts ...Option) *Registry {
	r := &Registry{
		entries:       make(map[string]*entry),
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           func() time.Time { return time.Now().UTC() },
		stop:          make(chan struct{}),
		logger:        slog.Default().With("component", "typing_registry", "conversation_id", conversationID),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the periodic sweep. Stop must be called to release it.
func (r *Registry) Start() {
	go func() {
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweep goroutine.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Signal records a typing ping for a user, overwriting any existing entry.
// The last signal wins: each ping pushes the expiry out by the full TTL.
func (r *Registry) Signal(userID, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if e, ok := r.entries[userID]; ok {
		e.expiresAt = now.Add(r.ttl)
		if displayName != "" {
			e.name = displayName
		}
		return
	}
	r.entries[userID] = &entry{
		userID:    userID,
		name:      displayName,
		expiresAt: now.Add(r.ttl),
		firstSeen: now,
	}
}

// ActiveTypers returns the display names of users whose signal has not
// expired, excluding the given user, ordered by when they started typing.
// Entries past their TTL are filtered out even if the sweep has not run yet.
func (r *Registry) ActiveTypers(excludeUserID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	active := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.userID == excludeUserID || !e.expiresAt.After(now) {
			continue
		}
		active = append(active, e)
	}

	sort.Slice(active, func(i, j int) bool {
		if !active[i].firstSeen.Equal(active[j].firstSeen) {
			return active[i].firstSeen.Before(active[j].firstSeen)
		}
		return active[i].userID < active[j].userID
	})

	names := make([]string, len(active))
	for i, e := range active {
		if e.name != "" {
			names[i] = e.name
		} else {
			names[i] = e.userID
		}
	}
	return names
}

// Summarize renders the presentation hint for a set of typers: the first two
// are named, the remainder is counted.
func Summarize(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing...", names[0])
	case 2:
		return fmt.Sprintf("%s and %s are typing...", names[0], names[1])
	default:
		return fmt.Sprintf("%s, %s and %d others are typing...", names[0], names[1], len(names)-2)
	}
}

// sweep removes entries whose expiry has passed.
func (r *Registry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for userID, e := range r.entries {
		if !e.expiresAt.After(now) {
			delete(r.entries, userID)
		}
	}
}
