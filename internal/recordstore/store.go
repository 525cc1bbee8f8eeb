package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Row is one record of a collection, as stored in the backing table.
// Values are JSON-typed: string, float64, bool, []any, map[string]any.
type Row map[string]any

// Predicate selects rows for bulk deletion.
type Predicate func(Row) bool

// Store is the single shared access path to the backing record table.
// There are no cross-collection transactions and no compare-and-swap:
// UpsertByKey is a scan-then-write, so concurrent same-key writers can
// lose updates. Callers needing atomic-looking multi-collection effects
// must accept partial failure and compensate through the event log.
type Store interface {
	// ListAll returns every row of a collection in append order.
	ListAll(ctx context.Context, collection string) ([]Row, error)

	// FindByKey returns the first row whose keyField equals key, or nil.
	FindByKey(ctx context.Context, collection, keyField, key string) (Row, error)

	// UpsertByKey overwrites only the fields named in patch on the row
	// matching key, creating the row when absent. Reports whether a new
	// row was created.
	UpsertByKey(ctx context.Context, collection, keyField, key string, patch Row) (bool, error)

	// AppendRow always creates a new row, duplicates included.
	AppendRow(ctx context.Context, collection string, row Row) error

	// DeleteRowsWhere removes every row matched by the predicate,
	// deleting in descending row order, and returns the count removed.
	// On error the count covers rows removed before the failure.
	DeleteRowsWhere(ctx context.Context, collection string, match Predicate) (int, error)

	Ping(ctx context.Context) error
}

// EmbeddingMatch is one result of a similarity search.
type EmbeddingMatch struct {
	CPF   string  `json:"cpf"`
	Score float32 `json:"score"`
}

// EmbeddingSearcher maintains a per-person embedding index next to the
// record table and answers nearest-neighbour queries over it.
type EmbeddingSearcher interface {
	IndexEmbedding(ctx context.Context, cpf string, embedding []float32) error
	SearchEmbeddings(ctx context.Context, embedding []float32, threshold float64, limit int) ([]EmbeddingMatch, error)
}

// BulkError reports a bulk mutation that failed part-way through.
// Done counts the mutations completed before the failure; there is no
// rollback against this store.
type BulkError struct {
	Done int
	Err  error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("bulk operation failed after %d mutation(s): %v", e.Done, e.Err)
}

func (e *BulkError) Unwrap() error { return e.Err }

// String returns the field as a trimmed string, whatever its JSON type.
func (r Row) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// Float returns the field as a float64, or 0 when absent or non-numeric.
func (r Row) Float(field string) float64 {
	switch t := r[field].(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Encode converts a model value to a Row via its JSON representation.
func Encode(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return row, nil
}

// Decode converts a Row back to a model value via its JSON representation.
func Decode[T any](r Row) (T, error) {
	var out T
	data, err := json.Marshal(r)
	if err != nil {
		return out, fmt.Errorf("decode row: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode row: %w", err)
	}
	return out, nil
}
