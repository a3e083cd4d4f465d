package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"gwi.com/pdf-qa/internal/utils"
)

// SQLiteStore keeps vectors in a local SQLite file and ranks them by cosine
// similarity in process.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
}

func NewSQLiteStore(dataSourceName string, dimension int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, dimension: dimension}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

var _ VectorStore = (*SQLiteStore)(nil)

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS vectors (
        namespace TEXT NOT NULL,
        id TEXT NOT NULL,
        text TEXT NOT NULL,
        embedding_json TEXT NOT NULL, -- JSON array of float32
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (namespace, id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Upsert writes all records in one transaction, replacing rows with the same id.
func (s *SQLiteStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := checkDimensions(s.dimension, records); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO vectors (namespace, id, text, embedding_json, updated_at)
        VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT (namespace, id) DO UPDATE SET
            text = excluded.text,
            embedding_json = excluded.embedding_json,
            updated_at = excluded.updated_at
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare vector upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		embeddingBytes, err := json.Marshal(r.Values)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding for %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, namespace, r.ID, r.Metadata.Text, string(embeddingBytes)); err != nil {
			return fmt.Errorf("failed to execute vector upsert for %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, text, embedding_json FROM vectors WHERE namespace = ? ORDER BY id", namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var (
		ids        []string
		texts      []string
		embeddings [][]float32
	)
	for rows.Next() {
		var id, text, embeddingJSON string
		if err := rows.Scan(&id, &text, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan vector row: %w", err)
		}
		var embedding []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
			log.Printf("Warning: failed to unmarshal embedding for %s/%s: %v. Skipping.", namespace, id, err)
			continue
		}
		ids = append(ids, id)
		texts = append(texts, text)
		embeddings = append(embeddings, embedding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vector rows: %w", err)
	}

	ranked := utils.TopKByCosine(vector, embeddings, topK)
	matches := make([]Match, 0, len(ranked))
	for _, r := range ranked {
		m := Match{ID: ids[r.Index], Score: r.Score}
		if includeMetadata {
			m.Metadata.Text = texts[r.Index]
		}
		matches = append(matches, m)
	}
	return matches, nil
}
