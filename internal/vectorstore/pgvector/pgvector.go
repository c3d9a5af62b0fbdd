package pgvector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"docqa-rag/internal/models"
	"docqa-rag/internal/vectorstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a vector index backed by PostgreSQL with the pgvector extension.
// The chunks table is configured for cosine distance (vector_cosine_ops), so
// the <=> operator yields distances in [0, 2].
type Store struct {
	Pool      *pgxpool.Pool
	dimension int
}

var _ vectorstore.Store = (*Store)(nil)

// New connects to the database and verifies the connection.
func New(ctx context.Context, connStr string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{Pool: pool, dimension: dimension}, nil
}

// Initialize creates the chunks table and its indices if they do not exist
// yet. Running it against an existing schema is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err = s.Pool.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS chunks (
            id TEXT PRIMARY KEY,
            document_id TEXT NOT NULL,
            filename TEXT NOT NULL,
            file_type TEXT NOT NULL,
            chunk_index INTEGER NOT NULL,
            chunk_start INTEGER NOT NULL,
            upload_time TIMESTAMPTZ NOT NULL,
            content TEXT NOT NULL,
            embedding vector(%d) NOT NULL
        )
    `, s.dimension))
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chunks_document_id_idx ON chunks (document_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create document id index: %w", err)
	}

	return nil
}

// Upsert inserts or overwrites chunk entries by id.
func (s *Store) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	for _, entry := range entries {
		if len(entry.Embedding) != s.dimension {
			return fmt.Errorf("entry %s has dimension %d, store expects %d",
				entry.ID, len(entry.Embedding), s.dimension)
		}

		_, err := s.Pool.Exec(ctx, `
            INSERT INTO chunks (
                id, document_id, filename, file_type,
                chunk_index, chunk_start, upload_time, content, embedding
            )
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::vector)
            ON CONFLICT (id) DO UPDATE SET
                document_id = EXCLUDED.document_id,
                filename = EXCLUDED.filename,
                file_type = EXCLUDED.file_type,
                chunk_index = EXCLUDED.chunk_index,
                chunk_start = EXCLUDED.chunk_start,
                upload_time = EXCLUDED.upload_time,
                content = EXCLUDED.content,
                embedding = EXCLUDED.embedding
        `,
			entry.ID,
			entry.Metadata.DocumentID,
			entry.Metadata.Filename,
			string(entry.Metadata.FileType),
			entry.Metadata.ChunkIndex,
			entry.Metadata.ChunkStart,
			entry.Metadata.UploadTime,
			entry.Content,
			vectorLiteral(entry.Embedding))
		if err != nil {
			return fmt.Errorf("failed to store chunk %s: %w", entry.ID, err)
		}
	}
	return nil
}

// Query finds the k nearest chunks by cosine distance.
func (s *Store) Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]vectorstore.Result, error) {
	var rows pgx.Rows
	var err error

	if docID, ok := filter["document_id"]; ok {
		rows, err = s.Pool.Query(ctx, `
			SELECT id, content, document_id, filename, file_type,
			       chunk_index, chunk_start, upload_time,
			       embedding <=> $1::vector AS distance
			FROM chunks
			WHERE document_id = $2
			ORDER BY distance
			LIMIT $3
		`, vectorLiteral(embedding), docID, k)
	} else {
		rows, err = s.Pool.Query(ctx, `
			SELECT id, content, document_id, filename, file_type,
			       chunk_index, chunk_start, upload_time,
			       embedding <=> $1::vector AS distance
			FROM chunks
			ORDER BY distance
			LIMIT $2
		`, vectorLiteral(embedding), k)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query similar chunks: %w", err)
	}
	defer rows.Close()

	var results []vectorstore.Result
	for rows.Next() {
		var (
			result   vectorstore.Result
			fileType string
			uploaded time.Time
		)
		if err := rows.Scan(
			&result.ID,
			&result.Content,
			&result.Metadata.DocumentID,
			&result.Metadata.Filename,
			&fileType,
			&result.Metadata.ChunkIndex,
			&result.Metadata.ChunkStart,
			&uploaded,
			&result.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result.Metadata.FileType = models.FileType(fileType)
		result.Metadata.UploadTime = uploaded
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// DeleteDocument removes every chunk belonging to documentID in one
// statement and reports how many were removed.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for document %s: %w", documentID, err)
	}
	return tag.RowsAffected(), nil
}

// Documents aggregates stored chunks into one row per document, newest
// upload first.
func (s *Store) Documents(ctx context.Context, limit int) ([]models.DocumentInfo, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT document_id, filename, file_type, MIN(upload_time) AS upload_time, COUNT(*) AS chunks
		FROM chunks
		GROUP BY document_id, filename, file_type
		ORDER BY upload_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.DocumentInfo
	for rows.Next() {
		var (
			doc      models.DocumentInfo
			fileType string
		)
		if err := rows.Scan(&doc.DocumentID, &doc.Filename, &fileType, &doc.UploadTime, &doc.ChunksCount); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		doc.FileType = models.FileType(fileType)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return docs, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.Pool.Close()
	return nil
}

// vectorLiteral renders an embedding as a pgvector input literal, e.g.
// "[0.1,0.2]". Passed as text and cast with ::vector in the statement.
func vectorLiteral(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
