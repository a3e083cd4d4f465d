package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
)

// PgVectorStore keeps vectors in PostgreSQL with the pgvector extension.
type PgVectorStore struct {
	db        *sql.DB
	dimension int
}

// NewPgVectorStore connects and creates the table and hnsw index if missing.
func NewPgVectorStore(dsn string, dimension int) (*PgVectorStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PgVectorStore{db: db, dimension: dimension}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

var _ VectorStore = (*PgVectorStore)(nil)

func (s *PgVectorStore) migrate() error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pdf_chunks (
			namespace TEXT NOT NULL,
			id TEXT NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (namespace, id)
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_pdf_chunks_embedding ON pdf_chunks USING hnsw (embedding vector_cosine_ops)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := checkDimensions(s.dimension, records); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pdf_chunks (namespace, id, text, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (namespace, id) DO UPDATE SET
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding,
				updated_at = NOW()
		`, namespace, r.ID, r.Metadata.Text, pgvector.NewVector(r.Values))
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func (s *PgVectorStore) Query(ctx context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]Match, error) {
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, ErrDimensionMismatch
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, 1 - (embedding <=> $1) AS score
		FROM pdf_chunks
		WHERE namespace = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(vector), namespace, topK)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m     Match
			text  string
			score float64
		)
		if err := rows.Scan(&m.ID, &text, &score); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		m.Score = float32(score)
		if includeMetadata {
			m.Metadata.Text = text
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *PgVectorStore) Close() error {
	return s.db.Close()
}
