package history

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(id string, at time.Time) messageRow {
	return messageRow{
		MessageID:      id,
		ConversationID: "conv1",
		SenderID:       "alice",
		Content:        "msg " + id,
		CreatedAt:      at.UTC().Format(TimeLayout),
		Type:           "text",
	}
}

// queryWindow evaluates the ListPage/Search statement over an in-memory
// table: newest-first (created_at, message_id) order, the cursorPredicate
// continuation, and the take+1 limit.
func queryWindow(t *testing.T, table []messageRow, cursor string, take int) []messageRow {
	t.Helper()

	rows := append([]messageRow(nil), table...)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt != rows[j].CreatedAt {
			return rows[i].CreatedAt > rows[j].CreatedAt
		}
		return rows[i].MessageID > rows[j].MessageID
	})

	if cursor != "" {
		c, err := DecodeCursor(cursor)
		require.NoError(t, err)
		at := c.CreatedAt.UTC().Format(TimeLayout)
		kept := rows[:0]
		for _, r := range rows {
			if r.CreatedAt < at || (r.CreatedAt == at && r.MessageID < c.ID) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	if len(rows) > take+1 {
		rows = rows[:take+1]
	}
	return rows
}

func TestPagesStitchWithoutGapsOrDuplicates(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tie := base.Add(4 * time.Minute)

	// m5 and m6 share a timestamp, and the first page boundary falls
	// between them, so continuation must tie-break on message id.
	table := []messageRow{
		row("m1", base),
		row("m2", base.Add(time.Minute)),
		row("m3", base.Add(2*time.Minute)),
		row("m4", base.Add(3*time.Minute)),
		row("m5", tie),
		row("m6", tie),
		row("m7", base.Add(5*time.Minute)),
	}

	const take = 2
	var got []string
	cursor := ""
	for pages := 0; ; pages++ {
		require.Less(t, pages, len(table), "pagination did not terminate")

		page, err := pageFromRows(queryWindow(t, table, cursor, take), take, true)
		require.NoError(t, err)

		ids := make([]string, len(page.Messages))
		for i, m := range page.Messages {
			ids[i] = m.ID
		}
		// Pages walk backwards through history; newer pages sit after.
		got = append(ids, got...)

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7"}, got)
}

func TestPageFromRowsLastPageHasNoCursor(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []messageRow{row("m2", base.Add(time.Minute)), row("m1", base)}

	page, err := pageFromRows(rows, 5, true)
	require.NoError(t, err)

	assert.Len(t, page.Messages, 2)
	assert.Empty(t, page.NextCursor)
}

func TestPageFromRowsNewestFirstKeepsOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	table := make([]messageRow, 0, 4)
	for i := range 4 {
		table = append(table, row(fmt.Sprintf("m%d", i+1), base.Add(time.Duration(i)*time.Minute)))
	}

	page, err := pageFromRows(queryWindow(t, table, "", 3), 3, false)
	require.NoError(t, err)

	require.Len(t, page.Messages, 3)
	assert.Equal(t, "m4", page.Messages[0].ID)
	assert.Equal(t, "m2", page.Messages[2].ID)

	// The continuation cursor points at the oldest returned result.
	c, err := DecodeCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "m2", c.ID)
}

func TestPageFromRowsRejectsMalformedTimestamp(t *testing.T) {
	bad := row("m1", time.Now())
	bad.CreatedAt = "yesterday"

	_, err := pageFromRows([]messageRow{bad}, 1, true)
	assert.Error(t, err)
}

func TestReceiptMergeParams(t *testing.T) {
	earlier := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Second)

	params := receiptMergeParams("m1", "bob", &earlier, nil)
	assert.Equal(t, "m1|bob", params["key"])
	assert.Equal(t, earlier.Format(TimeLayout), params["delivered_at"])
	assert.Equal(t, "", params["read_at"])

	// The merge statement compares timestamps as strings. Fixed-width
	// formatting keeps string order equal to time order, and the empty
	// string (field unset) ranks below any real timestamp.
	assert.Less(t, formatTimePtr(&earlier), formatTimePtr(&later))
	assert.Less(t, "", formatTimePtr(&earlier))
}
