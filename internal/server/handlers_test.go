package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estiakahmed98/chatsync/internal/config"
	"github.com/estiakahmed98/chatsync/internal/domain"
	"github.com/estiakahmed98/chatsync/internal/history"
	"github.com/estiakahmed98/chatsync/internal/pubsub"
)

// mockPublisher implements pubsub.Publisher for testing
type mockPublisher struct {
	messages []pubsub.Message
	mu       sync.Mutex
}

func (m *mockPublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) getMessages() []pubsub.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]pubsub.Message, len(m.messages))
	copy(result, m.messages)
	return result
}

// mockStore implements Store with canned responses.
type mockStore struct {
	message      *domain.Message
	page         history.Page
	entries      []domain.ReactionEntry
	participants []string

	toggled []string
	added   []string
	removed []string
}

func (m *mockStore) CreateMessage(ctx context.Context, conversationID, senderID string, msgType domain.MessageType, content string, attachments []domain.Attachment) (domain.Message, error) {
	return domain.Message{
		ID:             "srv1",
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Type:           msgType,
		Attachments:    attachments,
	}, nil
}

func (m *mockStore) GetMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	return m.message, nil
}

func (m *mockStore) ListPage(ctx context.Context, conversationID string, take int, cursor string) (history.Page, error) {
	return m.page, nil
}

func (m *mockStore) Search(ctx context.Context, conversationID, q string, take int, cursor string) (history.Page, error) {
	return m.page, nil
}

func (m *mockStore) MergeReceipt(ctx context.Context, messageID, userID string, deliveredAt, readAt *time.Time) (domain.ReceiptUpdate, error) {
	return domain.ReceiptUpdate{MessageID: messageID, UserID: userID, DeliveredAt: deliveredAt, ReadAt: readAt}, nil
}

func (m *mockStore) AdvanceReadPointer(ctx context.Context, conversationID, userID string, at time.Time) (time.Time, error) {
	return at, nil
}

func (m *mockStore) ToggleReaction(ctx context.Context, messageID, userID, emoji string) ([]domain.ReactionEntry, error) {
	m.toggled = append(m.toggled, messageID+"/"+emoji)
	return m.entries, nil
}

func (m *mockStore) AddParticipant(ctx context.Context, conversationID, userID string) error {
	m.added = append(m.added, userID)
	return nil
}

func (m *mockStore) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	m.removed = append(m.removed, userID)
	return nil
}

func (m *mockStore) Participants(ctx context.Context, conversationID string) ([]string, error) {
	return m.participants, nil
}

func newTestServer(store *mockStore) (*Server, *mockPublisher) {
	publisher := &mockPublisher{}
	cfg := &config.Config{HTTPAddr: ":0", PageSize: 50}
	s := New(cfg, store, publisher)
	s.RegisterRoutes()
	return s, publisher
}

func doRequest(s *Server, method, target, body, userID string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	s.E.ServeHTTP(rec, req)
	return rec
}

func TestServer_RequiresUserIdentity(t *testing.T) {
	s, _ := newTestServer(&mockStore{})

	rec := doRequest(s, http.MethodGet, "/api/conversations/conv1/messages", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_ListMessages(t *testing.T) {
	store := &mockStore{page: history.Page{
		Messages:   []domain.Message{{ID: "m1", ConversationID: "conv1"}},
		NextCursor: "c1",
	}}
	s, _ := newTestServer(store)

	rec := doRequest(s, http.MethodGet, "/api/conversations/conv1/messages?take=10", "", "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "c1", resp.NextCursor)
}

func TestServer_CreateMessagePublishesEcho(t *testing.T) {
	s, publisher := newTestServer(&mockStore{})

	rec := doRequest(s, http.MethodPost, "/api/conversations/conv1/messages",
		`{"type":"text","content":"hello"}`, "alice")
	require.Equal(t, http.StatusAccepted, rec.Code)

	msgs := publisher.getMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "chat.conversation.conv1.message.new", msgs[0].Topic)

	var echoed domain.Message
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &echoed))
	assert.Equal(t, "srv1", echoed.ID)
	assert.Equal(t, "alice", echoed.SenderID)
	assert.Equal(t, "hello", echoed.Content)
}

func TestServer_CreateMessageValidation(t *testing.T) {
	s, publisher := newTestServer(&mockStore{})

	rec := doRequest(s, http.MethodPost, "/api/conversations/conv1/messages",
		`{"type":"bogus","content":"hello"}`, "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/conversations/conv1/messages",
		`{"type":"text"}`, "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, publisher.getMessages())
}

func TestServer_MarkDelivered(t *testing.T) {
	store := &mockStore{message: &domain.Message{ID: "m1", ConversationID: "conv1", SenderID: "bob"}}
	s, publisher := newTestServer(store)

	rec := doRequest(s, http.MethodPost, "/api/conversations/conv1/messages/m1/delivered", "", "alice")
	require.Equal(t, http.StatusNoContent, rec.Code)

	msgs := publisher.getMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "chat.conversation.conv1.receipt.update", msgs[0].Topic)

	var event domain.ReceiptUpdateEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &event))
	require.Len(t, event.Updates, 1)
	assert.Equal(t, "m1", event.Updates[0].MessageID)
	assert.Equal(t, "alice", event.Updates[0].UserID)
	assert.NotNil(t, event.Updates[0].DeliveredAt)
}

func TestServer_MarkDeliveredUnknownMessageIsSilent(t *testing.T) {
	s, publisher := newTestServer(&mockStore{})

	rec := doRequest(s, http.MethodPost, "/api/conversations/conv1/messages/ghost/delivered", "", "alice")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, publisher.getMessages())
}

func TestServer_MarkConversationRead(t *testing.T) {
	s, publisher := newTestServer(&mockStore{})

	rec := doRequest(s, http.MethodPost, "/api/conversations/conv1/read", "", "alice")
	require.Equal(t, http.StatusNoContent, rec.Code)

	msgs := publisher.getMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "chat.conversation.conv1.read", msgs[0].Topic)

	var event domain.ConversationReadEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &event))
	assert.Equal(t, "alice", event.UserID)
	assert.False(t, event.LastReadAt.IsZero())
}

func TestServer_ToggleReaction(t *testing.T) {
	store := &mockStore{entries: []domain.ReactionEntry{{Emoji: "👍", Count: 1, UserIDs: []string{"alice"}}}}
	s, publisher := newTestServer(store)

	rec := doRequest(s, http.MethodPost, "/api/conversations/conv1/messages/m1/reactions",
		`{"emoji":"👍"}`, "alice")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"m1/👍"}, store.toggled)

	msgs := publisher.getMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "chat.conversation.conv1.reaction.update", msgs[0].Topic)

	var event domain.ReactionUpdateEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &event))
	assert.Equal(t, "m1", event.MessageID)
	require.Len(t, event.Reactions, 1)
}

func TestServer_TypingPing(t *testing.T) {
	s, publisher := newTestServer(&mockStore{})

	rec := doRequest(s, http.MethodPost, "/api/conversations/conv1/typing", "", "alice")
	require.Equal(t, http.StatusNoContent, rec.Code)

	msgs := publisher.getMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "chat.conversation.conv1.typing", msgs[0].Topic)

	var event domain.TypingEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &event))
	assert.Equal(t, "alice", event.UserID)
}

func TestServer_SearchRequiresQuery(t *testing.T) {
	s, _ := newTestServer(&mockStore{})

	rec := doRequest(s, http.MethodGet, "/api/conversations/conv1/search", "", "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/conversations/conv1/search?q=needle", "", "alice")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Participants(t *testing.T) {
	store := &mockStore{}
	s, publisher := newTestServer(store)

	rec := doRequest(s, http.MethodPost, "/api/conversations/conv1/participants",
		`{"userId":"bob"}`, "alice")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"bob"}, store.added)

	rec = doRequest(s, http.MethodDelete, "/api/conversations/conv1/participants/bob", "", "alice")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"bob"}, store.removed)

	msgs := publisher.getMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "chat.conversation.conv1.member.added", msgs[0].Topic)
	assert.Equal(t, "chat.conversation.conv1.member.removed", msgs[1].Topic)
}
