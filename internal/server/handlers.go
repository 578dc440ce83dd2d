package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/estiakahmed98/chatsync/internal/domain"
	"github.com/estiakahmed98/chatsync/internal/history"
	"github.com/estiakahmed98/chatsync/internal/pubsub"
	"github.com/estiakahmed98/chatsync/internal/topics"
)

// Store is the persistence surface the handlers depend on. history.Store is
// the production implementation; tests substitute their own.
type Store interface {
	CreateMessage(ctx context.Context, conversationID, senderID string, msgType domain.MessageType, content string, attachments []domain.Attachment) (domain.Message, error)
	GetMessage(ctx context.Context, messageID string) (*domain.Message, error)
	ListPage(ctx context.Context, conversationID string, take int, cursor string) (history.Page, error)
	Search(ctx context.Context, conversationID, q string, take int, cursor string) (history.Page, error)
	MergeReceipt(ctx context.Context, messageID, userID string, deliveredAt, readAt *time.Time) (domain.ReceiptUpdate, error)
	AdvanceReadPointer(ctx context.Context, conversationID, userID string, at time.Time) (time.Time, error)
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) ([]domain.ReactionEntry, error)
	AddParticipant(ctx context.Context, conversationID, userID string) error
	RemoveParticipant(ctx context.Context, conversationID, userID string) error
	Participants(ctx context.Context, conversationID string) ([]string, error)
}

// CreateMessageRequest is the DTO for posting a message.
type CreateMessageRequest struct {
	Type        string              `json:"type" validate:"required,oneof=text attachment system"`
	Content     string              `json:"content" validate:"required"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

// ToggleReactionRequest is the DTO for flipping a reaction.
type ToggleReactionRequest struct {
	Emoji string `json:"emoji" validate:"required"`
}

// AddParticipantRequest is the DTO for adding a conversation member.
type AddParticipantRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type pageResponse struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

type searchResponse struct {
	Results    []domain.Message `json:"results"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ListMessages serves one history page: the newest messages without a
// cursor, the page behind the cursor with one.
func (s *Server) ListMessages(c echo.Context) error {
	if _, err := requireUser(c); err != nil {
		return err
	}
	conversationID := c.Param("id")
	take := queryInt(c, "take", s.cfg.PageSize)

	page, err := s.store.ListPage(c.Request().Context(), conversationID, take, c.QueryParam("cursor"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pageResponse{Messages: page.Messages, NextCursor: page.NextCursor})
}

// CreateMessage persists a message and pushes the authoritative echo to the
// conversation topic. The HTTP response is deliberately thin: senders learn
// the server id from the push event like everyone else.
func (s *Server) CreateMessage(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	conversationID := c.Param("id")

	var req CreateMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	msg, err := s.store.CreateMessage(c.Request().Context(), conversationID, userID, domain.MessageType(req.Type), req.Content, req.Attachments)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store message")
	}

	publish(c.Request().Context(), s.publisher, topics.MessageNew(conversationID), msg)
	return c.JSON(http.StatusAccepted, map[string]string{"id": msg.ID})
}

// MarkDelivered merges a delivery receipt and pushes the updated row.
// Unknown message ids are dropped silently; receipts are best-effort.
func (s *Server) MarkDelivered(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	conversationID := c.Param("id")
	messageID := c.Param("messageID")

	msg, err := s.store.GetMessage(c.Request().Context(), messageID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to look up message")
	}
	if msg == nil || msg.ConversationID != conversationID {
		return c.NoContent(http.StatusNoContent)
	}

	now := time.Now().UTC()
	update, err := s.store.MergeReceipt(c.Request().Context(), messageID, userID, &now, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record receipt")
	}

	publish(c.Request().Context(), s.publisher, topics.ReceiptUpdate(conversationID), domain.ReceiptUpdateEvent{Updates: []domain.ReceiptUpdate{update}})
	return c.NoContent(http.StatusNoContent)
}

// MarkConversationRead advances the caller's read pointer to now and pushes
// the conversation:read event.
func (s *Server) MarkConversationRead(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	conversationID := c.Param("id")

	effective, err := s.store.AdvanceReadPointer(c.Request().Context(), conversationID, userID, time.Now().UTC())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to advance read pointer")
	}

	publish(c.Request().Context(), s.publisher, topics.ConversationRead(conversationID), domain.ConversationReadEvent{
		UserID:     userID,
		LastReadAt: effective,
	})
	return c.NoContent(http.StatusNoContent)
}

// ToggleReaction flips the caller's reaction and pushes the authoritative
// aggregates for the message.
func (s *Server) ToggleReaction(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	conversationID := c.Param("id")
	messageID := c.Param("messageID")

	var req ToggleReactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	entries, err := s.store.ToggleReaction(c.Request().Context(), messageID, userID, req.Emoji)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to toggle reaction")
	}

	publish(c.Request().Context(), s.publisher, topics.ReactionUpdate(conversationID), domain.ReactionUpdateEvent{
		MessageID: messageID,
		Reactions: entries,
	})
	return c.NoContent(http.StatusNoContent)
}

// TypingPing pushes a typing signal. Nothing is persisted; the signal exists
// only until its TTL runs out on the consumers.
func (s *Server) TypingPing(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}
	conversationID := c.Param("id")

	publish(c.Request().Context(), s.publisher, topics.Typing(conversationID), domain.TypingEvent{
		UserID: userID,
		Name:   c.Request().Header.Get("X-User-Name"),
	})
	return c.NoContent(http.StatusNoContent)
}

// SearchMessages serves cursor-paginated content search.
func (s *Server) SearchMessages(c echo.Context) error {
	if _, err := requireUser(c); err != nil {
		return err
	}
	conversationID := c.Param("id")
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing query")
	}

	page, err := s.store.Search(c.Request().Context(), conversationID, q, queryInt(c, "take", 20), c.QueryParam("cursor"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, searchResponse{Results: page.Messages, NextCursor: page.NextCursor})
}

// AddParticipant records membership and pushes member.added.
func (s *Server) AddParticipant(c echo.Context) error {
	if _, err := requireUser(c); err != nil {
		return err
	}
	conversationID := c.Param("id")

	var req AddParticipantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := s.store.AddParticipant(c.Request().Context(), conversationID, req.UserID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to add participant")
	}

	publish(c.Request().Context(), s.publisher, topics.MemberAdded(conversationID), domain.MembershipEvent{UserID: req.UserID})
	return c.NoContent(http.StatusNoContent)
}

// RemoveParticipant removes membership and pushes member.removed.
func (s *Server) RemoveParticipant(c echo.Context) error {
	if _, err := requireUser(c); err != nil {
		return err
	}
	conversationID := c.Param("id")
	userID := c.Param("userID")

	if err := s.store.RemoveParticipant(c.Request().Context(), conversationID, userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to remove participant")
	}

	publish(c.Request().Context(), s.publisher, topics.MemberRemoved(conversationID), domain.MembershipEvent{UserID: userID})
	return c.NoContent(http.StatusNoContent)
}

// publish pushes a typed event, logging rather than failing the request when
// the bus rejects it: the write already happened, and every consumer can
// recover from a missed event on its next fetch.
func publish[T any](ctx context.Context, p pubsub.Publisher, event pubsub.Event[T], payload T) {
	if err := pubsub.Publish(ctx, p, event, payload); err != nil {
		slog.Error("Failed to publish push event", "topic", event.Name(), "error", err)
	}
}

func queryInt(c echo.Context, name string, fallback int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
