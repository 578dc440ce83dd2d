// Package gateway is the outbound half of the sync contract: plain JSON
// request/response calls to the conversation API. None of them carry
// idempotency keys because every inbound handler is already idempotent with
// respect to duplicate delivery.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/estiakahmed98/chatsync/internal/domain"
)

// Page is one slice of conversation history plus the cursor for the next
// (older) slice. An empty NextCursor means history is exhausted.
type Page struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// SearchPage is one slice of search results plus the continuation cursor.
type SearchPage struct {
	Results    []domain.Message `json:"results"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// API is the full outbound call surface the SyncController depends on.
type API interface {
	FetchMessages(ctx context.Context, conversationID string, take int, cursor string) (Page, error)
	CreateMessage(ctx context.Context, conversationID string, msgType domain.MessageType, content string) error
	MarkDelivered(ctx context.Context, conversationID, messageID string) error
	MarkConversationRead(ctx context.Context, conversationID string) error
	ToggleReaction(ctx context.Context, conversationID, messageID, emoji string) error
	TypingPing(ctx context.Context, conversationID string) error
	Search(ctx context.Context, conversationID, query string, take int, cursor string) (SearchPage, error)
	AddParticipant(ctx context.Context, conversationID, userID string) error
	RemoveParticipant(ctx context.Context, conversationID, userID string) error
}

// Client is the HTTP implementation of API. Authentication is out of scope
// here; the client identifies its user with a header the server-side session
// layer is expected to have validated upstream.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// NewClient creates a gateway client for one user.
func NewClient(baseURL, userID string) *Client {
	return &Client{
		baseURL:    baseURL,
		userID:     userID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchMessages retrieves the newest page when cursor is empty, or the page
// older than the cursor otherwise.
func (c *Client) FetchMessages(ctx context.Context, conversationID string, take int, cursor string) (Page, error) {
	q := url.Values{"take": {strconv.Itoa(take)}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var page Page
	if err := c.do(ctx, http.MethodGet, c.path("conversations", conversationID, "messages")+"?"+q.Encode(), nil, &page); err != nil {
		return Page{}, &FetchError{Op: "messages", Err: err}
	}
	return page, nil
}

// CreateMessage posts a new message. Fire-and-forget: the authoritative echo
// arrives later via push.
func (c *Client) CreateMessage(ctx context.Context, conversationID string, msgType domain.MessageType, content string) error {
	body := map[string]string{"type": string(msgType), "content": content}
	if err := c.do(ctx, http.MethodPost, c.path("conversations", conversationID, "messages"), body, nil); err != nil {
		return &SendError{Err: err}
	}
	return nil
}

// MarkDelivered acknowledges delivery of a single message.
func (c *Client) MarkDelivered(ctx context.Context, conversationID, messageID string) error {
	if err := c.do(ctx, http.MethodPost, c.path("conversations", conversationID, "messages", messageID, "delivered"), nil, nil); err != nil {
		return &AckError{Op: "delivered", Err: err}
	}
	return nil
}

// MarkConversationRead advances the caller's read pointer to now.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	if err := c.do(ctx, http.MethodPost, c.path("conversations", conversationID, "read"), nil, nil); err != nil {
		return &AckError{Op: "read", Err: err}
	}
	return nil
}

// ToggleReaction flips the caller's reaction on a message.
func (c *Client) ToggleReaction(ctx context.Context, conversationID, messageID, emoji string) error {
	body := map[string]string{"emoji": emoji}
	if err := c.do(ctx, http.MethodPost, c.path("conversations", conversationID, "messages", messageID, "reactions"), body, nil); err != nil {
		return &ReactionError{Err: err}
	}
	return nil
}

// TypingPing signals that the caller is typing.
func (c *Client) TypingPing(ctx context.Context, conversationID string) error {
	if err := c.do(ctx, http.MethodPost, c.path("conversations", conversationID, "typing"), nil, nil); err != nil {
		return &AckError{Op: "typing", Err: err}
	}
	return nil
}

// Search queries message content with cursor continuation.
func (c *Client) Search(ctx context.Context, conversationID, query string, take int, cursor string) (SearchPage, error) {
	q := url.Values{"q": {query}, "take": {strconv.Itoa(take)}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var page SearchPage
	if err := c.do(ctx, http.MethodGet, c.path("conversations", conversationID, "search")+"?"+q.Encode(), nil, &page); err != nil {
		return SearchPage{}, &FetchError{Op: "search", Err: err}
	}
	return page, nil
}

// AddParticipant adds a user to the conversation.
func (c *Client) AddParticipant(ctx context.Context, conversationID, userID string) error {
	body := map[string]string{"userId": userID}
	return c.do(ctx, http.MethodPost, c.path("conversations", conversationID, "participants"), body, nil)
}

// RemoveParticipant removes a user from the conversation.
func (c *Client) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	return c.do(ctx, http.MethodDelete, c.path("conversations", conversationID, "participants", userID), nil, nil)
}

func (c *Client) path(parts ...string) string {
	p := c.baseURL + "/api"
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-User-ID", c.userID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, rawURL, resp.StatusCode, snippet)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
