// Package history is the authoritative conversation store behind the API:
// cursor-paginated message history, monotonic receipt rows, read pointers,
// and reaction aggregation.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/estiakahmed98/chatsync/internal/database"
	"github.com/estiakahmed98/chatsync/internal/domain"
)

// messageRow is the stored form of a message. Timestamps are kept as
// fixed-width strings (TimeLayout) so string order equals time order.
type messageRow struct {
	MessageID      string              `json:"message_id"`
	ConversationID string              `json:"conversation_id"`
	SenderID       string              `json:"sender_id"`
	Content        string              `json:"content"`
	CreatedAt      string              `json:"created_at"`
	Type           string              `json:"type"`
	Attachments    []domain.Attachment `json:"attachments,omitempty"`
}

type receiptRow struct {
	MessageID   string `json:"message_id"`
	UserID      string `json:"user_id"`
	DeliveredAt string `json:"delivered_at,omitempty"`
	ReadAt      string `json:"read_at,omitempty"`
}

type reactionRow struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

type pointerRow struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	LastReadAt     string `json:"last_read_at"`
}

type participantRow struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// Page is one history slice plus the continuation cursor for older messages.
type Page struct {
	Messages   []domain.Message
	NextCursor string
}

// cursorPredicate continues a newest-first scan strictly past the cursor
// position in (created_at, message_id) order. Timestamps are fixed-width
// strings, so the string comparison is a time comparison.
const cursorPredicate = " AND (created_at < $cursor_at OR (created_at = $cursor_at AND message_id < $cursor_id))"

// pageFromRows assembles a Page from a newest-first row window fetched with
// one extra row. The extra row signals another page; the continuation cursor
// points at the oldest returned message.
func pageFromRows(rows []messageRow, take int, oldestFirst bool) (Page, error) {
	hasMore := len(rows) > take
	if hasMore {
		rows = rows[:take]
	}

	msgs := make([]domain.Message, len(rows))
	for i, row := range rows {
		msg, err := rowToMessage(row)
		if err != nil {
			return Page{}, err
		}
		if oldestFirst {
			msgs[len(rows)-1-i] = msg
		} else {
			msgs[i] = msg
		}
	}

	page := Page{Messages: msgs}
	if hasMore && len(msgs) > 0 {
		oldest := msgs[0]
		if !oldestFirst {
			oldest = msgs[len(msgs)-1]
		}
		page.NextCursor = Cursor{CreatedAt: oldest.CreatedAt, ID: oldest.ID}.Encode()
	}
	return page, nil
}

// Store handles database operations for conversation history.
type Store struct {
	db     *surrealdb.DB
	ns     string
	dbName string
}

// NewStore creates a new Store instance.
func NewStore(db *surrealdb.DB, ns, dbName string) *Store {
	return &Store{db: db, ns: ns, dbName: dbName}
}

func (s *Store) use(ctx context.Context) error {
	if err := s.db.Use(ctx, s.ns, s.dbName); err != nil {
		return fmt.Errorf("failed to set database scope: %w", err)
	}
	return nil
}

// CreateMessage persists a new message with a server-assigned id and
// timestamp and returns it.
func (s *Store) CreateMessage(ctx context.Context, conversationID, senderID string, msgType domain.MessageType, content string, attachments []domain.Attachment) (domain.Message, error) {
	if err := s.use(ctx); err != nil {
		return domain.Message{}, err
	}

	row := messageRow{
		MessageID:      uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now().UTC().Format(TimeLayout),
		Type:           string(msgType),
		Attachments:    attachments,
	}

	query := `CREATE message CONTENT {
		message_id: $message_id,
		conversation_id: $conversation_id,
		sender_id: $sender_id,
		content: $content,
		created_at: $created_at,
		type: $type,
		attachments: $attachments
	}`
	params := map[string]any{
		"message_id":      row.MessageID,
		"conversation_id": row.ConversationID,
		"sender_id":       row.SenderID,
		"content":         row.Content,
		"created_at":      row.CreatedAt,
		"type":            row.Type,
		"attachments":     row.Attachments,
	}
	if err := database.Execute(ctx, s.db, query, params); err != nil {
		return domain.Message{}, fmt.Errorf("failed to create message: %w", err)
	}

	return rowToMessage(row)
}

// GetMessage fetches one message by its server id.
func (s *Store) GetMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	if err := s.use(ctx); err != nil {
		return nil, err
	}

	query := "SELECT * FROM message WHERE message_id = $message_id"
	row, err := database.QueryOne[messageRow](ctx, s.db, query, map[string]any{"message_id": messageID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	msg, err := rowToMessage(*row)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListPage returns the newest `take` messages when cursor is empty, or the
// `take` messages strictly older than the cursor position otherwise. The
// result is ordered oldest-first; NextCursor is empty when history is
// exhausted.
func (s *Store) ListPage(ctx context.Context, conversationID string, take int, cursor string) (Page, error) {
	if err := s.use(ctx); err != nil {
		return Page{}, err
	}
	if take <= 0 {
		take = 50
	}

	query := "SELECT * FROM message WHERE conversation_id = $conversation_id"
	params := map[string]any{
		"conversation_id": conversationID,
		// One extra row decides whether another page exists.
		"limit": take + 1,
	}

	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		query += cursorPredicate
		params["cursor_at"] = c.CreatedAt.UTC().Format(TimeLayout)
		params["cursor_id"] = c.ID
	}

	query += " ORDER BY created_at DESC, message_id DESC LIMIT $limit"

	rows, err := database.Query[messageRow](ctx, s.db, query, params)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return pageFromRows(rows, take, true)
}

// Search returns messages whose content matches the query, newest first,
// with the same cursor continuation scheme as ListPage.
func (s *Store) Search(ctx context.Context, conversationID, q string, take int, cursor string) (Page, error) {
	if err := s.use(ctx); err != nil {
		return Page{}, err
	}
	if take <= 0 {
		take = 20
	}

	query := "SELECT * FROM message WHERE conversation_id = $conversation_id AND content CONTAINS $q"
	params := map[string]any{
		"conversation_id": conversationID,
		"q":               q,
		"limit":           take + 1,
	}
	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		query += cursorPredicate
		params["cursor_at"] = c.CreatedAt.UTC().Format(TimeLayout)
		params["cursor_id"] = c.ID
	}
	query += " ORDER BY created_at DESC, message_id DESC LIMIT $limit"

	rows, err := database.Query[messageRow](ctx, s.db, query, params)
	if err != nil {
		return Page{}, fmt.Errorf("failed to search messages: %w", err)
	}
	return pageFromRows(rows, take, false)
}

// mergeReceiptQuery upserts the receipt row addressed by its deterministic
// record id. Each timestamp field takes the later of the stored and incoming
// value, so concurrent writers never clobber each other's half of the merge.
// Unset fields ride as the empty string, which any real timestamp outranks.
const mergeReceiptQuery = `UPDATE type::thing("receipt", $key) SET
	message_id = $message_id,
	user_id = $user_id,
	delivered_at = IF delivered_at > $delivered_at THEN delivered_at ELSE $delivered_at END,
	read_at = IF read_at > $read_at THEN read_at ELSE $read_at END`

// receiptMergeParams binds one (message, user) receipt write. Timestamps are
// fixed-width strings so the statement's string comparison is a time
// comparison.
func receiptMergeParams(messageID, userID string, deliveredAt, readAt *time.Time) map[string]any {
	return map[string]any{
		"key":          messageID + "|" + userID,
		"message_id":   messageID,
		"user_id":      userID,
		"delivered_at": formatTimePtr(deliveredAt),
		"read_at":      formatTimePtr(readAt),
	}
}

// MergeReceipt folds a delivery/read annotation into the receipt row for
// (messageID, userID), creating it if absent. Existing timestamps are only
// ever advanced, never regressed, regardless of arrival order; the merge runs
// as a single statement so the guarantee holds under concurrent handlers.
func (s *Store) MergeReceipt(ctx context.Context, messageID, userID string, deliveredAt, readAt *time.Time) (domain.ReceiptUpdate, error) {
	if err := s.use(ctx); err != nil {
		return domain.ReceiptUpdate{}, err
	}

	row, err := database.QueryOne[receiptRow](ctx, s.db, mergeReceiptQuery,
		receiptMergeParams(messageID, userID, deliveredAt, readAt))
	if err != nil {
		return domain.ReceiptUpdate{}, fmt.Errorf("failed to merge receipt: %w", err)
	}
	if row == nil {
		return domain.ReceiptUpdate{}, fmt.Errorf("receipt merge for %s returned no row", messageID)
	}

	return domain.ReceiptUpdate{
		MessageID:   messageID,
		UserID:      userID,
		DeliveredAt: parseTimePtr(row.DeliveredAt),
		ReadAt:      parseTimePtr(row.ReadAt),
	}, nil
}

// AdvanceReadPointer moves a participant's conversation read pointer to `at`
// if that is later than the stored value, and reports the effective pointer.
func (s *Store) AdvanceReadPointer(ctx context.Context, conversationID, userID string, at time.Time) (time.Time, error) {
	if err := s.use(ctx); err != nil {
		return time.Time{}, err
	}

	query := "SELECT * FROM read_pointer WHERE conversation_id = $conversation_id AND user_id = $user_id"
	params := map[string]any{"conversation_id": conversationID, "user_id": userID}
	existing, err := database.QueryOne[pointerRow](ctx, s.db, query, params)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch read pointer: %w", err)
	}

	effective := at.UTC()
	if existing != nil {
		if prev := parseTimePtr(existing.LastReadAt); prev != nil && prev.After(effective) {
			return *prev, nil
		}
	}

	writeParams := map[string]any{
		"conversation_id": conversationID,
		"user_id":         userID,
		"last_read_at":    effective.Format(TimeLayout),
	}
	var writeQuery string
	if existing == nil {
		writeQuery = `CREATE read_pointer CONTENT {
			conversation_id: $conversation_id,
			user_id: $user_id,
			last_read_at: $last_read_at
		}`
	} else {
		writeQuery = `UPDATE read_pointer SET last_read_at = $last_read_at
			WHERE conversation_id = $conversation_id AND user_id = $user_id`
	}
	if err := database.Execute(ctx, s.db, writeQuery, writeParams); err != nil {
		return time.Time{}, fmt.Errorf("failed to write read pointer: %w", err)
	}
	return effective, nil
}

// ToggleReaction flips the user's reaction row for (messageID, emoji) and
// returns the resulting aggregates for the message.
func (s *Store) ToggleReaction(ctx context.Context, messageID, userID, emoji string) ([]domain.ReactionEntry, error) {
	if err := s.use(ctx); err != nil {
		return nil, err
	}

	params := map[string]any{"message_id": messageID, "user_id": userID, "emoji": emoji}
	query := "SELECT * FROM reaction WHERE message_id = $message_id AND user_id = $user_id AND emoji = $emoji"
	existing, err := database.QueryOne[reactionRow](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reaction: %w", err)
	}

	if existing != nil {
		err = database.Execute(ctx, s.db,
			"DELETE reaction WHERE message_id = $message_id AND user_id = $user_id AND emoji = $emoji", params)
	} else {
		err = database.Execute(ctx, s.db,
			"CREATE reaction CONTENT { message_id: $message_id, user_id: $user_id, emoji: $emoji }", params)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle reaction: %w", err)
	}

	return s.ReactionsFor(ctx, messageID)
}

// ReactionsFor aggregates the reaction rows of one message into wire entries,
// in stable emoji order.
func (s *Store) ReactionsFor(ctx context.Context, messageID string) ([]domain.ReactionEntry, error) {
	if err := s.use(ctx); err != nil {
		return nil, err
	}

	rows, err := database.Query[reactionRow](ctx, s.db,
		"SELECT * FROM reaction WHERE message_id = $message_id", map[string]any{"message_id": messageID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reactions: %w", err)
	}

	byEmoji := make(map[string][]string)
	for _, row := range rows {
		byEmoji[row.Emoji] = append(byEmoji[row.Emoji], row.UserID)
	}

	emojis := make([]string, 0, len(byEmoji))
	for emoji := range byEmoji {
		emojis = append(emojis, emoji)
	}
	sort.Strings(emojis)

	entries := make([]domain.ReactionEntry, 0, len(emojis))
	for _, emoji := range emojis {
		users := byEmoji[emoji]
		sort.Strings(users)
		entries = append(entries, domain.ReactionEntry{
			Emoji:   emoji,
			Count:   len(users),
			UserIDs: users,
		})
	}
	return entries, nil
}

// AddParticipant records conversation membership; adding twice is a no-op.
func (s *Store) AddParticipant(ctx context.Context, conversationID, userID string) error {
	if err := s.use(ctx); err != nil {
		return err
	}

	params := map[string]any{"conversation_id": conversationID, "user_id": userID}
	existing, err := database.QueryOne[participantRow](ctx, s.db,
		"SELECT * FROM participant WHERE conversation_id = $conversation_id AND user_id = $user_id", params)
	if err != nil {
		return fmt.Errorf("failed to fetch participant: %w", err)
	}
	if existing != nil {
		return nil
	}
	return database.Execute(ctx, s.db,
		"CREATE participant CONTENT { conversation_id: $conversation_id, user_id: $user_id }", params)
}

// RemoveParticipant deletes conversation membership.
func (s *Store) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	if err := s.use(ctx); err != nil {
		return err
	}
	return database.Execute(ctx, s.db,
		"DELETE participant WHERE conversation_id = $conversation_id AND user_id = $user_id",
		map[string]any{"conversation_id": conversationID, "user_id": userID})
}

// Participants lists the members of a conversation.
func (s *Store) Participants(ctx context.Context, conversationID string) ([]string, error) {
	if err := s.use(ctx); err != nil {
		return nil, err
	}
	rows, err := database.Query[participantRow](ctx, s.db,
		"SELECT * FROM participant WHERE conversation_id = $conversation_id",
		map[string]any{"conversation_id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch participants: %w", err)
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.UserID
	}
	sort.Strings(ids)
	return ids, nil
}

func rowToMessage(row messageRow) (domain.Message, error) {
	createdAt, err := time.Parse(TimeLayout, row.CreatedAt)
	if err != nil {
		return domain.Message{}, fmt.Errorf("malformed stored timestamp %q: %w", row.CreatedAt, err)
	}
	return domain.Message{
		ID:             row.MessageID,
		ConversationID: row.ConversationID,
		SenderID:       row.SenderID,
		Content:        row.Content,
		CreatedAt:      createdAt,
		Type:           domain.MessageType(row.Type),
		Attachments:    row.Attachments,
	}, nil
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}
