package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/your-org/embarque/internal/models"
)

// MemoryStore is an in-process Store with the same contract as the
// Postgres one. Used by tests and single-node deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Row
	embeddings  map[string][]float32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]Row),
		embeddings:  make(map[string][]float32),
	}
}

// normalize round-trips the row through JSON so stored value types match
// what the Postgres store hands back (float64 numbers, []any slices).
func normalize(row Row) (Row, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("normalize row: %w", err)
	}
	var out Row
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize row: %w", err)
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Reads hand out deep copies and updates replace the stored map
// wholesale, so a row obtained earlier never shares memory with a
// later write. Handing out the live maps would let a handler's JSON
// marshal race an upsert on the same map.
func (s *MemoryStore) ListAll(ctx context.Context, collection string) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.collections[collection]
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		cp, err := normalize(r)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *MemoryStore) FindByKey(ctx context.Context, collection, keyField, key string) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.collections[collection] {
		if r.String(keyField) == key {
			return normalize(r)
		}
	}
	return nil, nil
}

func (s *MemoryStore) UpsertByKey(ctx context.Context, collection, keyField, key string, patch Row) (bool, error) {
	patch, err := normalize(patch)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.collections[collection]
	for i, r := range rows {
		if r.String(keyField) == key {
			merged := make(Row, len(r)+len(patch))
			for k, v := range r {
				merged[k] = v
			}
			for k, v := range patch {
				merged[k] = v
			}
			rows[i] = merged
			return false, nil
		}
	}

	merged := Row{keyField: key}
	for k, v := range patch {
		merged[k] = v
	}
	s.collections[collection] = append(rows, merged)
	return true, nil
}

func (s *MemoryStore) AppendRow(ctx context.Context, collection string, row Row) error {
	row, err := normalize(row)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], row)
	return nil
}

func (s *MemoryStore) DeleteRowsWhere(ctx context.Context, collection string, match Predicate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.collections[collection]
	var targets []int
	for i, r := range rows {
		if match(r) {
			targets = append(targets, i)
		}
	}

	// Descending index order so earlier indices stay valid.
	for i := len(targets) - 1; i >= 0; i-- {
		idx := targets[i]
		if collection == models.CollectionPeople {
			if cpf := rows[idx].String("cpf"); cpf != "" {
				delete(s.embeddings, cpf)
			}
		}
		rows = append(rows[:idx], rows[idx+1:]...)
	}
	s.collections[collection] = rows
	return len(targets), nil
}

func (s *MemoryStore) IndexEmbedding(ctx context.Context, cpf string, embedding []float32) error {
	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[cpf] = vec
	return nil
}

func (s *MemoryStore) SearchEmbeddings(ctx context.Context, embedding []float32, threshold float64, limit int) ([]EmbeddingMatch, error) {
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []EmbeddingMatch
	for cpf, vec := range s.embeddings {
		score := cosineSimilarity(embedding, vec)
		if float64(score) >= threshold {
			matches = append(matches, EmbeddingMatch{CPF: cpf, Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
