package vectorstore

import (
	"context"

	"docqa-rag/internal/models"
)

// DistanceCosine is the only supported distance metric. Similarity scores
// are derived as 1 - distance, which is only meaningful for cosine distance
// in the [0, 2] range; the configuration layer rejects anything else.
const DistanceCosine = "cosine"

// Entry is one chunk to insert: its embedding, text, validated metadata and
// derived id. Inserting an existing id overwrites it.
type Entry struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  models.ChunkMetadata
}

// Result is one ranked nearest-neighbor hit. Distance is the cosine distance
// between the query vector and the stored embedding.
type Result struct {
	ID       string
	Content  string
	Metadata models.ChunkMetadata
	Distance float64
}

// Store is the vector index contract. Implementations must be safe for
// concurrent use; all locking is the backend's concern.
type Store interface {
	// Upsert inserts or overwrites entries by id.
	Upsert(ctx context.Context, entries []Entry) error

	// Query returns up to k nearest neighbors ordered by ascending distance.
	// Asking for more entries than stored returns all of them; an empty
	// index returns an empty result, never an error. A non-nil filter
	// restricts results to entries whose metadata matches every pair.
	Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]Result, error)

	// DeleteDocument removes every chunk tagged with documentID and reports
	// how many were removed. Deleting an unknown id removes nothing and is
	// not an error.
	DeleteDocument(ctx context.Context, documentID string) (int64, error)

	// Documents aggregates the per-chunk metadata into one row per document.
	Documents(ctx context.Context, limit int) ([]models.DocumentInfo, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int64, error)

	Close() error
}
