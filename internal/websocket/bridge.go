// Package websocket bridges conversation push events from the message bus to
// connected WebSocket clients. Each client subscribes to exactly one
// conversation; the bridge relays every topic scoped to that conversation and
// emits the membership events that presence tracking consumes.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/estiakahmed98/chatsync/internal/domain"
	"github.com/estiakahmed98/chatsync/internal/pubsub"
	"github.com/estiakahmed98/chatsync/internal/topics"
)

// Frame is the wire envelope pushed to clients: the bus topic and its raw
// payload, leaving decoding to the consumer.
type Frame struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a single connected WebSocket client.
type Client struct {
	// ID is unique per connection; a user can hold several (tabs, devices).
	ID string
	// UserID identifies the authenticated user behind the connection.
	UserID string
	// ConversationID is the conversation this connection subscribed to.
	ConversationID string

	conn   *websocket.Conn
	send   chan []byte
	bridge *Bridge
}

// Bridge manages all WebSocket connections and relays bus events to them.
type Bridge struct {
	publisher  pubsub.Publisher
	subscriber pubsub.Subscriber

	// clients groups connections by conversation id.
	clients map[string]map[*Client]bool

	// relays holds the cancel func for each conversation's bus subscription,
	// started with the first client and stopped with the last.
	relays map[string]context.CancelFunc

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// NewBridge initializes a new Bridge, ready to handle connections.
func NewBridge(pub pubsub.Publisher, sub pubsub.Subscriber) *Bridge {
	return &Bridge{
		publisher:  pub,
		subscriber: sub,
		clients:    make(map[string]map[*Client]bool),
		relays:     make(map[string]context.CancelFunc),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the main bridge goroutine for managing client lifecycle.
func (b *Bridge) Run() {
	slog.Info("WebSocket bridge runner started.")
	for {
		select {
		case client := <-b.register:
			b.addClient(client)
		case client := <-b.unregister:
			b.removeClient(client)
		}
	}
}

func (b *Bridge) addClient(client *Client) {
	conversationID := client.ConversationID

	b.mu.Lock()
	if b.clients[conversationID] == nil {
		b.clients[conversationID] = make(map[*Client]bool)
	}
	first := len(b.clients[conversationID]) == 0
	b.clients[conversationID][client] = true
	roster := b.rosterLocked(conversationID)
	b.mu.Unlock()

	if first {
		b.startRelay(conversationID)
	}
	slog.Info("Client registered", "userID", client.UserID, "conversationID", conversationID)

	// The roster confirms the subscription to the new client; member.added
	// tells everyone else. Both are idempotent on the consuming side, so the
	// overlap with existing clients is harmless.
	ctx := context.Background()
	publish(ctx, b.publisher, topics.MemberRoster(conversationID), domain.MembershipEvent{
		Members: roster,
		UserID:  client.UserID,
	})
	publish(ctx, b.publisher, topics.MemberAdded(conversationID), domain.MembershipEvent{UserID: client.UserID})
}

func (b *Bridge) removeClient(client *Client) {
	conversationID := client.ConversationID

	b.mu.Lock()
	conns, ok := b.clients[conversationID]
	if !ok || !conns[client] {
		b.mu.Unlock()
		return
	}
	delete(conns, client)
	close(client.send)

	userGone := true
	for c := range conns {
		if c.UserID == client.UserID {
			userGone = false
			break
		}
	}
	last := len(conns) == 0
	if last {
		delete(b.clients, conversationID)
	}
	b.mu.Unlock()

	if last {
		b.stopRelay(conversationID)
	}
	slog.Info("Client unregistered", "userID", client.UserID, "conversationID", conversationID)

	if userGone {
		publish(context.Background(), b.publisher, topics.MemberRemoved(conversationID), domain.MembershipEvent{UserID: client.UserID})
	}
}

// rosterLocked returns the distinct online user ids for a conversation.
// Callers must hold b.mu.
func (b *Bridge) rosterLocked(conversationID string) []string {
	seen := make(map[string]bool)
	for c := range b.clients[conversationID] {
		seen[c.UserID] = true
	}
	roster := make([]string, 0, len(seen))
	for id := range seen {
		roster = append(roster, id)
	}
	sort.Strings(roster)
	return roster
}

// startRelay subscribes to every topic of the conversation and fans each bus
// message out to the conversation's clients as a Frame.
func (b *Bridge) startRelay(conversationID string) {
	ctx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	b.relays[conversationID] = cancel
	b.mu.Unlock()

	for _, topic := range topics.All(conversationID) {
		if err := b.subscriber.Subscribe(ctx, topic, func(_ context.Context, msg pubsub.Message) error {
			frame, err := json.Marshal(Frame{Topic: msg.Topic, Payload: msg.Payload})
			if err != nil {
				return err
			}
			b.fanOut(conversationID, frame)
			return nil
		}); err != nil {
			slog.Error("Failed to subscribe relay topic", "topic", topic, "error", err)
		}
	}
}

func (b *Bridge) stopRelay(conversationID string) {
	b.mu.Lock()
	cancel, ok := b.relays[conversationID]
	if ok {
		delete(b.relays, conversationID)
	}
	b.mu.Unlock()

	if ok {
		cancel()
	}
}

func (b *Bridge) fanOut(conversationID string, frame []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients[conversationID] {
		select {
		case client.send <- frame:
		default:
			// Drop the frame if the client's send buffer is full; the client
			// recovers on its next fetch.
			slog.Warn("Client send channel full, dropping frame", "userID", client.UserID)
		}
	}
}

// NewClient wraps an accepted connection for the given user and conversation
// and hands it to the bridge. Callers start the pumps via Serve.
func (b *Bridge) NewClient(conn *websocket.Conn, userID, conversationID string) *Client {
	client := &Client{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		conn:           conn,
		send:           make(chan []byte, 256),
		bridge:         b,
	}
	b.register <- client
	return client
}

// Serve runs the client's read and write pumps until the connection drops.
func (c *Client) Serve() {
	go c.writePump()
	c.readPump()
}

// readPump drains the connection until it closes. The socket is push-only;
// clients talk to the system through the HTTP API.
func (c *Client) readPump() {
	defer func() {
		c.bridge.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "Client disconnected")
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				slog.Info("WebSocket closed normally by client", "userID", c.UserID)
			} else {
				slog.Error("WebSocket read error", "userID", c.UserID, "error", err)
			}
			return
		}
	}
}

// writePump pumps frames from the client's send channel to the connection.
func (c *Client) writePump() {
	defer func() {
		c.conn.Close(websocket.StatusNormalClosure, "Server-side cleanup")
	}()

	for frame := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			slog.Error("WebSocket write error", "userID", c.UserID, "error", err)
			return
		}
	}
}

func publish[T any](ctx context.Context, p pubsub.Publisher, event pubsub.Event[T], payload T) {
	if err := pubsub.Publish(ctx, p, event, payload); err != nil {
		slog.Error("Failed to publish membership event", "topic", event.Name(), "error", err)
	}
}
