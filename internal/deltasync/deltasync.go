// Package deltasync filters collections by a client-held cursor over the
// updated_at field. The index keeps no state of its own: it is a pure
// filter over a full listing, so redundant calls are harmless.
package deltasync

import (
	"context"
	"log/slog"
	"time"

	"github.com/your-org/embarque/internal/recordstore"
)

// TimeField is the row field carrying the last-modified timestamp.
const TimeField = "updated_at"

// Layout is the canonical timestamp format written on every mutation.
const Layout = "2006-01-02T15:04:05.000Z"

var parseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Now returns the current UTC time in the canonical layout.
func Now() string {
	return time.Now().UTC().Format(Layout)
}

// ParseTime parses a stored timestamp, accepting the handful of formats
// legacy rows carry.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Stamp sets the row's updated_at. An override is intended for
// offline-originated entries replaying their original capture time;
// when empty a fresh server timestamp is used.
func Stamp(row recordstore.Row, override string) {
	if override != "" {
		row[TimeField] = override
		return
	}
	row[TimeField] = Now()
}

// FilterSince returns the rows whose updated_at parses and is strictly
// after the cursor. Rows with a missing or unparseable timestamp never
// match a supplied cursor, so malformed legacy rows cannot resurrect as
// new; each one is logged. An empty cursor returns everything.
func FilterSince(collection string, rows []recordstore.Row, since string) []recordstore.Row {
	if since == "" {
		return rows
	}

	cursor, ok := ParseTime(since)
	if !ok {
		slog.Warn("unparseable sync cursor, returning full listing", "collection", collection, "since", since)
		return rows
	}

	var out []recordstore.Row
	for _, r := range rows {
		raw := r.String(TimeField)
		if raw == "" {
			slog.Warn("row missing updated_at, excluded from delta", "collection", collection)
			continue
		}
		t, ok := ParseTime(raw)
		if !ok {
			slog.Warn("row with unparseable updated_at, excluded from delta", "collection", collection, "updated_at", raw)
			continue
		}
		if t.After(cursor) {
			out = append(out, r)
		}
	}
	return out
}

// Index answers changed-since queries against the record store.
type Index struct {
	store recordstore.Store
}

func NewIndex(store recordstore.Store) Index {
	return Index{store: store}
}

// ChangedSince lists a collection and applies the cursor filter. With an
// empty cursor this degenerates to a full listing.
func (ix Index) ChangedSince(ctx context.Context, collection, since string) ([]recordstore.Row, error) {
	rows, err := ix.store.ListAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	return FilterSince(collection, rows, since), nil
}
