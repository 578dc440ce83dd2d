package history

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the fixed-width timestamp encoding used for stored rows and
// cursors. Unlike RFC3339Nano it never trims trailing zeros, so string order
// matches time order and ORDER BY stays correct.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Cursor is the opaque pagination boundary: the (createdAt, id) position of
// the oldest message already delivered. Pages continue strictly behind it,
// which is what guarantees no gap and no duplicate across consecutive pages.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode renders the cursor as an opaque token.
func (c Cursor) Encode() string {
	raw := c.CreatedAt.UTC().Format(TimeLayout) + "|" + c.ID
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Encode.
func DecodeCursor(token string) (Cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("malformed cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return Cursor{}, fmt.Errorf("malformed cursor: missing id")
	}
	ts, err := time.Parse(TimeLayout, parts[0])
	if err != nil {
		return Cursor{}, fmt.Errorf("malformed cursor timestamp: %w", err)
	}
	return Cursor{CreatedAt: ts, ID: parts[1]}, nil
}
