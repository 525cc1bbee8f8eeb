package recordstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/embarque/internal/config"
	"github.com/your-org/embarque/internal/models"
)

// PostgresStore keeps every collection in a single records table of
// jsonb documents, plus a pgvector side index for person embeddings.
// Operations stay single-statement (or scan-then-write) on purpose:
// the adapter contract offers no transactions.
type PostgresStore struct {
	pool         *pgxpool.Pool
	embeddingDim int
}

func NewPostgresStore(cfg config.DatabaseConfig, embeddingDim int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, embeddingDim: embeddingDim}, nil
}

// EnsureSchema creates the records table and the embedding index table
// if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS records (
			seq BIGSERIAL PRIMARY KEY,
			collection TEXT NOT NULL,
			doc JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS records_collection_idx ON records (collection, seq)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS person_embeddings (
			cpf TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL
		)`, s.embeddingDim),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ListAll(ctx context.Context, collection string) ([]Row, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM records WHERE collection = $1 ORDER BY seq`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", collection, err)
		}
		var r Row
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("unmarshal %s row: %w", collection, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindByKey(ctx context.Context, collection, keyField, key string) (Row, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM records WHERE collection = $1 AND doc->>$2 = $3 ORDER BY seq LIMIT 1`,
		collection, keyField, key,
	).Scan(&doc)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find %s by %s: %w", collection, keyField, err)
	}
	var r Row
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("unmarshal %s row: %w", collection, err)
	}
	return r, nil
}

// UpsertByKey is a scan-then-write, not compare-and-swap: two concurrent
// writers for the same key can interleave and the later write wins.
func (s *PostgresStore) UpsertByKey(ctx context.Context, collection, keyField, key string, patch Row) (bool, error) {
	var seq int64
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT seq, doc FROM records WHERE collection = $1 AND doc->>$2 = $3 ORDER BY seq LIMIT 1`,
		collection, keyField, key,
	).Scan(&seq, &doc)

	if err == pgx.ErrNoRows {
		merged := Row{keyField: key}
		for k, v := range patch {
			merged[k] = v
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return false, fmt.Errorf("marshal %s row: %w", collection, err)
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO records (collection, doc) VALUES ($1, $2)`, collection, data); err != nil {
			return false, fmt.Errorf("insert %s row: %w", collection, err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("find %s by %s: %w", collection, keyField, err)
	}

	var existing Row
	if err := json.Unmarshal(doc, &existing); err != nil {
		return false, fmt.Errorf("unmarshal %s row: %w", collection, err)
	}
	for k, v := range patch {
		existing[k] = v
	}
	data, err := json.Marshal(existing)
	if err != nil {
		return false, fmt.Errorf("marshal %s row: %w", collection, err)
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE records SET doc = $1 WHERE seq = $2`, data, seq); err != nil {
		return false, fmt.Errorf("update %s row: %w", collection, err)
	}
	return false, nil
}

func (s *PostgresStore) AppendRow(ctx context.Context, collection string, row Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal %s row: %w", collection, err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO records (collection, doc) VALUES ($1, $2)`, collection, data); err != nil {
		return fmt.Errorf("append %s row: %w", collection, err)
	}
	return nil
}

func (s *PostgresStore) DeleteRowsWhere(ctx context.Context, collection string, match Predicate) (int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, doc FROM records WHERE collection = $1 ORDER BY seq`, collection)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", collection, err)
	}

	type target struct {
		seq int64
		cpf string
	}
	var targets []target
	for rows.Next() {
		var seq int64
		var doc []byte
		if err := rows.Scan(&seq, &doc); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan %s row: %w", collection, err)
		}
		var r Row
		if err := json.Unmarshal(doc, &r); err != nil {
			rows.Close()
			return 0, fmt.Errorf("unmarshal %s row: %w", collection, err)
		}
		if match(r) {
			targets = append(targets, target{seq: seq, cpf: r.String("cpf")})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	// Delete in descending row order, one row per statement.
	deleted := 0
	for i := len(targets) - 1; i >= 0; i-- {
		t := targets[i]
		if _, err := s.pool.Exec(ctx, `DELETE FROM records WHERE seq = $1`, t.seq); err != nil {
			return deleted, &BulkError{Done: deleted, Err: fmt.Errorf("delete %s row: %w", collection, err)}
		}
		if collection == models.CollectionPeople && t.cpf != "" {
			if _, err := s.pool.Exec(ctx,
				`DELETE FROM person_embeddings WHERE cpf = $1`, t.cpf); err != nil {
				return deleted + 1, &BulkError{Done: deleted + 1, Err: fmt.Errorf("delete embedding: %w", err)}
			}
		}
		deleted++
	}
	return deleted, nil
}

func (s *PostgresStore) IndexEmbedding(ctx context.Context, cpf string, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO person_embeddings (cpf, embedding) VALUES ($1, $2)
		 ON CONFLICT (cpf) DO UPDATE SET embedding = EXCLUDED.embedding`,
		cpf, vec)
	if err != nil {
		return fmt.Errorf("index embedding for %s: %w", cpf, err)
	}
	return nil
}

// SearchEmbeddings returns the closest persons by cosine similarity.
func (s *PostgresStore) SearchEmbeddings(ctx context.Context, embedding []float32, threshold float64, limit int) ([]EmbeddingMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx,
		`SELECT cpf, 1 - (embedding <=> $1) AS score
		 FROM person_embeddings
		 WHERE 1 - (embedding <=> $1) >= $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}
	defer rows.Close()

	var matches []EmbeddingMatch
	for rows.Next() {
		var m EmbeddingMatch
		if err := rows.Scan(&m.CPF, &m.Score); err != nil {
			return nil, fmt.Errorf("scan embedding match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
