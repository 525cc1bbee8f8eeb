package deltasync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/embarque/internal/recordstore"
)

func rowAt(ts string) recordstore.Row {
	r := recordstore.Row{"cpf": "x"}
	if ts != "" {
		r[TimeField] = ts
	}
	return r
}

func TestFilterSinceEmptyCursorReturnsEverything(t *testing.T) {
	rows := []recordstore.Row{
		rowAt("2025-12-01T10:00:00.000Z"),
		rowAt(""), // even rows without a timestamp
		rowAt("not-a-date"),
	}
	out := FilterSince("pessoas", rows, "")
	assert.Len(t, out, 3)
}

func TestFilterSinceStrictlyAfter(t *testing.T) {
	rows := []recordstore.Row{
		rowAt("2025-12-01T10:00:00.000Z"),
		rowAt("2025-12-01T10:00:01.000Z"),
		rowAt("2025-12-01T09:59:59.000Z"),
	}
	out := FilterSince("pessoas", rows, "2025-12-01T10:00:00.000Z")
	require.Len(t, out, 1)
	assert.Equal(t, "2025-12-01T10:00:01.000Z", out[0].String(TimeField))
}

func TestFilterSinceExcludesMalformedRowsWhenCursorGiven(t *testing.T) {
	rows := []recordstore.Row{
		rowAt(""),
		rowAt("garbage"),
		rowAt("2025-12-01T12:00:00.000Z"),
	}
	out := FilterSince("pessoas", rows, "2025-12-01T00:00:00.000Z")
	require.Len(t, out, 1)
	assert.Equal(t, "2025-12-01T12:00:00.000Z", out[0].String(TimeField))
}

func TestFilterSinceUnparseableCursorReturnsFullListing(t *testing.T) {
	rows := []recordstore.Row{
		rowAt("2025-12-01T10:00:00.000Z"),
		rowAt(""),
	}
	out := FilterSince("pessoas", rows, "yesterday")
	assert.Len(t, out, 2)
}

func TestParseTimeAcceptsLegacyLayouts(t *testing.T) {
	for _, s := range []string{
		"2025-12-01T10:00:00.000Z",
		"2025-12-01T10:00:00Z",
		"2025-12-01T10:00:00",
		"2025-12-01",
	} {
		_, ok := ParseTime(s)
		assert.True(t, ok, "should parse %q", s)
	}
	_, ok := ParseTime("01/12/2025")
	assert.False(t, ok)
}

func TestStampOverride(t *testing.T) {
	r := recordstore.Row{}
	Stamp(r, "2025-12-01T10:00:00.000Z")
	assert.Equal(t, "2025-12-01T10:00:00.000Z", r.String(TimeField))

	r2 := recordstore.Row{}
	Stamp(r2, "")
	_, ok := ParseTime(r2.String(TimeField))
	assert.True(t, ok)
}

func TestChangedSinceWithEmptyCursorIsFullListing(t *testing.T) {
	ctx := context.Background()
	store := recordstore.NewMemoryStore()
	require.NoError(t, store.AppendRow(ctx, "pessoas", rowAt("2025-12-01T10:00:00.000Z")))
	require.NoError(t, store.AppendRow(ctx, "pessoas", rowAt("2025-12-02T10:00:00.000Z")))

	ix := NewIndex(store)

	all, err := ix.ChangedSince(ctx, "pessoas", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := ix.ChangedSince(ctx, "pessoas", "2025-12-01T12:00:00.000Z")
	require.NoError(t, err)
	assert.Len(t, some, 1)
}

// A client advancing its cursor to the server timestamp of each
// response never misses a row that changed afterwards.
func TestCursorAdvanceSeesLaterChanges(t *testing.T) {
	ctx := context.Background()
	store := recordstore.NewMemoryStore()
	ix := NewIndex(store)

	require.NoError(t, store.AppendRow(ctx, "pessoas", rowAt("2025-12-01T10:00:00.000Z")))

	first, err := ix.ChangedSince(ctx, "pessoas", "")
	require.NoError(t, err)
	require.Len(t, first, 1)
	cursor := first[0].String(TimeField)

	require.NoError(t, store.AppendRow(ctx, "pessoas", rowAt("2025-12-01T10:00:05.000Z")))

	second, err := ix.ChangedSince(ctx, "pessoas", cursor)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "2025-12-01T10:00:05.000Z", second[0].String(TimeField))
}
