package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", Sequence: 7})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cursor.Sequence)
	assert.Equal(t, "42", cursor.ID)

	_, err = DecodeCursor("not-base64!!")
	assert.Error(t, err)
}

func TestBuildCursorPageInfoTrimsExtraRow(t *testing.T) {
	type row struct{ seq int64 }
	data := []*row{{seq: 5}, {seq: 4}, {seq: 3}}

	page, info := BuildCursorPageInfo(data, 2, func(r *row) string {
		token, _ := EncodeCursor(Cursor{Sequence: r.seq})
		return token
	})

	assert.Len(t, page, 2)
	assert.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cursor.Sequence)

	page, info = BuildCursorPageInfo(data, 10, func(r *row) string { return "x" })
	assert.Len(t, page, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestNormalizeSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, NormalizeSize(0))
	assert.Equal(t, MaxPageSize, NormalizeSize(10_000))
	assert.Equal(t, 20, NormalizeSize(20))
}
