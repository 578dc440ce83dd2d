// Package syncer orchestrates the conversation sync engine: it owns the
// message store, receipt ledger, reaction aggregator, presence tracker, and
// typing registry for one conversation, feeds them from push events, and
// issues the outbound calls that keep the server in agreement.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/estiakahmed98/chatsync/internal/domain"
	"github.com/estiakahmed98/chatsync/internal/gateway"
	"github.com/estiakahmed98/chatsync/internal/messages"
	"github.com/estiakahmed98/chatsync/internal/presence"
	"github.com/estiakahmed98/chatsync/internal/pubsub"
	"github.com/estiakahmed98/chatsync/internal/reactions"
	"github.com/estiakahmed98/chatsync/internal/receipts"
	"github.com/estiakahmed98/chatsync/internal/topics"
	"github.com/estiakahmed98/chatsync/internal/typing"
)

// State is the conversation lifecycle. Sub-operations within Ready
// (paginating, sending, reacting) are transient and not mutually exclusive,
// so they are not states.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "idle"
	}
}

const (
	// DefaultPageSize is how many messages one history page carries.
	DefaultPageSize = 50

	// DefaultTypingPingInterval bounds outbound typing traffic: at most one
	// signal per interval of local keystroke activity, debounced by the
	// last-sent timestamp rather than a resetting timer.
	DefaultTypingPingInterval = 1200 * time.Millisecond
)

// Controller is the per-conversation orchestrator. All state mutation runs
// under one mutex so handlers, timer ticks, and user actions apply one at a
// time; the lock is never held across outbound I/O, and between the start
// and completion of a call the local state stays consistent and readable
// (optimistic values stand in for unconfirmed data).
type Controller struct {
	mu sync.Mutex

	conversationID string
	selfID         string
	selfName       string

	store    *messages.Store
	ledger   *receipts.Ledger
	reacts   *reactions.Aggregator
	presence *presence.Tracker
	typing   *typing.Registry

	api        gateway.API
	subscriber pubsub.Subscriber
	logger     *slog.Logger

	state          State
	nextCursor     string
	pageSize       int
	typingInterval time.Duration
	lastTypingPing time.Time
	readPending    bool
	now            func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithPageSize overrides the history page size.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		c.pageSize = n
	}
}

// WithTypingPingInterval overrides the outbound typing rate limit.
func WithTypingPingInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.typingInterval = d
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithReconcileWindow overrides the optimistic-match window of the
// underlying message store.
func WithReconcileWindow(d time.Duration) Option {
	return func(c *Controller) {
		c.store = messages.NewStore(c.conversationID, messages.WithReconcileWindow(d))
		c.ledger = receipts.NewLedger(c.conversationID, c.store)
	}
}

// WithTypingRegistry replaces the typing registry, letting tests inject a
// deterministic clock into it.
func WithTypingRegistry(r *typing.Registry) Option {
	return func(c *Controller) {
		c.typing = r
	}
}

// NewController wires a controller and its owned state components for one
// conversation. The components are exclusive to this controller; no
// cross-conversation sharing of mutable state.
func NewController(conversationID, selfID, selfName string, api gateway.API, subscriber pubsub.Subscriber, opts ...Option) *Controller {
	c := &Controller{
		conversationID: conversationID,
		selfID:         selfID,
		selfName:       selfName,
		api:            api,
		subscriber:     subscriber,
		logger:         slog.Default().With("component", "sync_controller", "conversation_id", conversationID),
		state:          StateIdle,
		pageSize:       DefaultPageSize,
		typingInterval: DefaultTypingPingInterval,
		now:            func() time.Time { return time.Now().UTC() },
	}
	c.store = messages.NewStore(conversationID)
	c.ledger = receipts.NewLedger(conversationID, c.store)
	c.reacts = reactions.NewAggregator(conversationID)
	c.presence = presence.NewTracker(conversationID)
	c.typing = typing.NewRegistry(conversationID)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to the conversation's push topics and launches the typing
// sweep. Stop releases them.
func (c *Controller) Start(ctx context.Context) error {
	subs := []struct {
		topic   string
		handler pubsub.Handler
	}{
		{topics.MessageNew(c.conversationID).Name(), c.handleMessageNew},
		{topics.Typing(c.conversationID).Name(), c.handleTyping},
		{topics.ReceiptUpdate(c.conversationID).Name(), c.handleReceiptUpdate},
		{topics.ReactionUpdate(c.conversationID).Name(), c.handleReactionUpdate},
		{topics.ConversationRead(c.conversationID).Name(), c.handleConversationRead},
		{topics.MemberRoster(c.conversationID).Name(), c.handleMemberRoster},
		{topics.MemberAdded(c.conversationID).Name(), c.handleMemberAdded},
		{topics.MemberRemoved(c.conversationID).Name(), c.handleMemberRemoved},
	}
	for _, s := range subs {
		if err := c.subscriber.Subscribe(ctx, s.topic, s.handler); err != nil {
			return err
		}
	}

	c.typing.Start()
	return nil
}

// Stop shuts down the controller's background work.
func (c *Controller) Stop() {
	c.typing.Stop()
}

// LoadInitial fetches the most recent page and transitions to Ready. It is a
// no-op when the conversation is already loading or loaded. On success a
// read acknowledgment for the now-visible messages is scheduled.
func (c *Controller) LoadInitial(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.state = StateLoading
	c.mu.Unlock()

	page, err := c.api.FetchMessages(ctx, c.conversationID, c.pageSize, "")
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.store.SetInitial(page.Messages)
	c.nextCursor = page.NextCursor
	c.state = StateReady
	c.readPending = true
	c.mu.Unlock()

	c.flushRead(ctx)
	return nil
}

// PrependResult tells the presentation layer how a pagination round changed
// the store, so it can compensate the scroll offset for the prepended rows.
type PrependResult struct {
	Added   int
	HasMore bool
}

// LoadOlder fetches the page behind the current cursor and prepends it.
// Without a cursor (history exhausted, or initial load not done) it is a
// no-op. A failed fetch leaves the store and cursor untouched. A stale
// result arriving late is still safe to apply because prepending
// deduplicates by id.
func (c *Controller) LoadOlder(ctx context.Context) (PrependResult, error) {
	c.mu.Lock()
	if c.state != StateReady || c.nextCursor == "" {
		c.mu.Unlock()
		return PrependResult{}, nil
	}
	cursor := c.nextCursor
	c.mu.Unlock()

	page, err := c.api.FetchMessages(ctx, c.conversationID, c.pageSize, cursor)
	if err != nil {
		return PrependResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	added := c.store.PrependOlder(page.Messages)
	// Only advance the cursor if this response continues the current page
	// chain; a late response for an already-consumed cursor must not rewind.
	if c.nextCursor == cursor {
		c.nextCursor = page.NextCursor
	}
	return PrependResult{Added: added, HasMore: c.nextCursor != ""}, nil
}

// Send inserts an optimistic message with its self receipt synchronously, so
// the sender sees instant feedback, then issues the outbound create. On
// failure the placeholder is rolled back and the error surfaced. The
// authoritative echo later replaces the placeholder via reconciliation.
func (c *Controller) Send(ctx context.Context, msgType domain.MessageType, content string, attachments []domain.Attachment) (domain.Message, error) {
	c.mu.Lock()
	optimistic := c.store.InsertOptimistic(c.selfID, content, msgType, attachments, c.now())
	c.ledger.RecordSelf(optimistic.ID, c.selfID, optimistic.CreatedAt)
	c.mu.Unlock()

	if err := c.api.CreateMessage(ctx, c.conversationID, msgType, content); err != nil {
		c.mu.Lock()
		c.store.DiscardOptimistic(optimistic.ID)
		c.ledger.Forget(optimistic.ID)
		c.reacts.Forget(optimistic.ID)
		c.mu.Unlock()
		c.logger.Warn("Send failed, optimistic message discarded", "placeholder_id", optimistic.ID, "error", err)
		return domain.Message{}, err
	}
	return optimistic, nil
}

// ToggleReaction optimistically flips the local aggregate, then issues the
// outbound toggle. On failure the flip is reverted (toggle is self-inverse);
// reconciliation would correct it as well.
func (c *Controller) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	c.mu.Lock()
	c.reacts.ToggleLocal(messageID, emoji, c.selfID)
	c.mu.Unlock()

	if err := c.api.ToggleReaction(ctx, c.conversationID, messageID, emoji); err != nil {
		c.mu.Lock()
		c.reacts.RevertLocal(messageID, emoji, c.selfID)
		c.mu.Unlock()
		c.logger.Warn("Reaction toggle failed, reverted", "message_id", messageID, "emoji", emoji, "error", err)
		return err
	}
	return nil
}

// TypingPing reports local keystroke activity. At most one outbound signal
// per interval leaves the engine; the rest are absorbed here.
func (c *Controller) TypingPing(ctx context.Context) error {
	c.mu.Lock()
	now := c.now()
	if now.Sub(c.lastTypingPing) < c.typingInterval {
		c.mu.Unlock()
		return nil
	}
	c.lastTypingPing = now
	c.mu.Unlock()

	if err := c.api.TypingPing(ctx, c.conversationID); err != nil {
		c.logger.Debug("Typing ping failed", "error", err)
		return err
	}
	return nil
}

// MarkViewed records that the conversation became (or stayed) visible and
// flushes the pending read acknowledgment, if any. The acknowledgment is
// debounced to once per view-change, not once per message.
func (c *Controller) MarkViewed(ctx context.Context) {
	c.flushRead(ctx)
}

// Search proxies a content search through the gateway. Results never mutate
// the store.
func (c *Controller) Search(ctx context.Context, query string, take int, cursor string) (gateway.SearchPage, error) {
	return c.api.Search(ctx, c.conversationID, query, take, cursor)
}

// AddParticipant adds a user to the conversation; the membership push event
// updates presence when it lands.
func (c *Controller) AddParticipant(ctx context.Context, userID string) error {
	return c.api.AddParticipant(ctx, c.conversationID, userID)
}

// RemoveParticipant removes a user from the conversation.
func (c *Controller) RemoveParticipant(ctx context.Context, userID string) error {
	return c.api.RemoveParticipant(ctx, c.conversationID, userID)
}

// --- push event handlers ---

func (c *Controller) handleMessageNew(ctx context.Context, msg pubsub.Message) error {
	incoming, err := pubsub.Decode(topics.MessageNew(c.conversationID), msg)
	if err != nil {
		c.logger.Error("Malformed message:new payload", "error", err)
		return err
	}

	c.mu.Lock()
	result := c.store.AppendIncoming(incoming)
	if result.ReplacedPlaceholder != "" {
		c.ledger.Rename(result.ReplacedPlaceholder, incoming.ID)
		c.reacts.Rename(result.ReplacedPlaceholder, incoming.ID)
	}
	fromOther := result.Added && incoming.SenderID != c.selfID
	if fromOther && c.state == StateReady {
		c.readPending = true
	}
	c.mu.Unlock()

	// Every inbound message from another user is acknowledged as delivered.
	// Best effort: a failure is dropped and the next qualifying event retries.
	if fromOther {
		if err := c.api.MarkDelivered(ctx, c.conversationID, incoming.ID); err != nil {
			c.logger.Debug("Delivered ack failed", "message_id", incoming.ID, "error", err)
		}
	}
	return nil
}

func (c *Controller) handleTyping(ctx context.Context, msg pubsub.Message) error {
	event, err := pubsub.Decode(topics.Typing(c.conversationID), msg)
	if err != nil {
		c.logger.Error("Malformed typing payload", "error", err)
		return err
	}
	if event.UserID == c.selfID {
		return nil
	}
	c.typing.Signal(event.UserID, event.Name)
	return nil
}

func (c *Controller) handleReceiptUpdate(ctx context.Context, msg pubsub.Message) error {
	event, err := pubsub.Decode(topics.ReceiptUpdate(c.conversationID), msg)
	if err != nil {
		c.logger.Error("Malformed receipt:update payload", "error", err)
		return err
	}
	c.mu.Lock()
	c.ledger.ApplyUpdates(event.Updates)
	c.mu.Unlock()
	return nil
}

func (c *Controller) handleReactionUpdate(ctx context.Context, msg pubsub.Message) error {
	event, err := pubsub.Decode(topics.ReactionUpdate(c.conversationID), msg)
	if err != nil {
		c.logger.Error("Malformed reaction:update payload", "error", err)
		return err
	}
	c.mu.Lock()
	c.reacts.Reconcile(event.MessageID, event.Reactions)
	c.mu.Unlock()
	return nil
}

func (c *Controller) handleConversationRead(ctx context.Context, msg pubsub.Message) error {
	event, err := pubsub.Decode(topics.ConversationRead(c.conversationID), msg)
	if err != nil {
		c.logger.Error("Malformed conversation:read payload", "error", err)
		return err
	}
	c.mu.Lock()
	c.ledger.ApplyConversationRead(event.UserID, event.LastReadAt)
	c.mu.Unlock()
	return nil
}

func (c *Controller) handleMemberRoster(ctx context.Context, msg pubsub.Message) error {
	event, err := pubsub.Decode(topics.MemberRoster(c.conversationID), msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.presence.SetAll(event.Members)
	c.mu.Unlock()
	return nil
}

func (c *Controller) handleMemberAdded(ctx context.Context, msg pubsub.Message) error {
	event, err := pubsub.Decode(topics.MemberAdded(c.conversationID), msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.presence.Add(event.UserID)
	c.mu.Unlock()
	return nil
}

func (c *Controller) handleMemberRemoved(ctx context.Context, msg pubsub.Message) error {
	event, err := pubsub.Decode(topics.MemberRemoved(c.conversationID), msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.presence.Remove(event.UserID)
	c.mu.Unlock()
	return nil
}

// --- read-side accessors for the presentation layer ---

// State returns the conversation lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// NextCursor returns the cursor for older history, empty when exhausted.
func (c *Controller) NextCursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextCursor
}

// Messages returns the ordered message snapshot.
func (c *Controller) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Messages()
}

// StatusFor derives the delivery status of a self-authored message.
func (c *Controller) StatusFor(msg domain.Message) receipts.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.StatusFor(msg, c.selfID)
}

// Reactions returns the aggregates for a message in stable order.
func (c *Controller) Reactions(messageID string) []domain.ReactionAggregate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reacts.For(messageID)
}

// OnlineUsers returns the conversation's current presence set.
func (c *Controller) OnlineUsers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence.Online()
}

// ActiveTypers returns the display names of other users currently typing.
func (c *Controller) ActiveTypers() []string {
	return c.typing.ActiveTypers(c.selfID)
}

// flushRead issues the debounced conversation-read acknowledgment when one
// is pending.
func (c *Controller) flushRead(ctx context.Context) {
	c.mu.Lock()
	if !c.readPending {
		c.mu.Unlock()
		return
	}
	c.readPending = false
	c.mu.Unlock()

	if err := c.api.MarkConversationRead(ctx, c.conversationID); err != nil {
		c.logger.Debug("Read ack failed", "error", err)
	}
}
