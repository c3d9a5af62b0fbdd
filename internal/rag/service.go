package rag

import (
	"context"
	"errors"
	"fmt"

	"docqa-rag/internal/chunker"
	"docqa-rag/internal/models"
	"docqa-rag/internal/vectorstore"
)

var (
	// ErrDocumentNotFound reports a delete for a document id with no
	// matching chunks. The delete itself is idempotent.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrGeneration reports a failed or timed-out language model call.
	// Generation is read-only with respect to the index, so no stored
	// state is affected.
	ErrGeneration = errors.New("answer generation failed")
)

// ChunkMode selects between sliding-window chunking and embedding the whole
// document as a single chunk.
type ChunkMode string

const (
	ChunkModeChunked ChunkMode = "chunked"
	ChunkModeFull    ChunkMode = "full"
)

// ParseChunkMode validates a chunk mode string; empty defaults to chunked.
func ParseChunkMode(s string) (ChunkMode, error) {
	switch ChunkMode(s) {
	case ChunkModeChunked, "":
		return ChunkModeChunked, nil
	case ChunkModeFull:
		return ChunkModeFull, nil
	default:
		return "", fmt.Errorf("invalid chunk mode: %q (expected chunked or full)", s)
	}
}

// Embedder maps texts to fixed-length vectors, one per input, in input
// order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Generator maps a prompt to generated text in a single request.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// Service orchestrates chunking, embedding, vector storage and grounded
// answer generation. It is constructed once at startup and shared across
// requests; it holds no mutable state of its own.
type Service struct {
	store        vectorstore.Store
	embedder     Embedder
	generator    Generator
	chunkSize    int
	chunkOverlap int
	defaultTopK  int
}

// NewService wires the service's collaborators. Chunking parameters are
// validated up front so a bad overlap fails startup instead of the first
// upload.
func NewService(store vectorstore.Store, embedder Embedder, generator Generator,
	chunkSize, chunkOverlap, defaultTopK int) (*Service, error) {

	if chunkSize <= 0 || chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("invalid chunking parameters: size=%d overlap=%d", chunkSize, chunkOverlap)
	}
	if defaultTopK <= 0 {
		defaultTopK = 3
	}
	return &Service{
		store:        store,
		embedder:     embedder,
		generator:    generator,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		defaultTopK:  defaultTopK,
	}, nil
}

// IngestDocument chunks the extracted text, embeds every chunk and inserts
// the (embedding, text, metadata, id) tuples into the vector index. It
// returns the number of chunks stored.
//
// Insertion is not transactional: if embedding or storage fails partway,
// already-written chunk vectors are not rolled back. Callers should treat a
// failed ingest as requiring delete-and-retry for the document id.
func (s *Service) IngestDocument(ctx context.Context, doc models.Document, text string, mode ChunkMode) (int, error) {
	var (
		chunks []chunker.Chunk
		err    error
	)
	switch mode {
	case ChunkModeFull:
		chunks = chunker.WholeDocument(text)
	default:
		chunks, err = chunker.Split(text, s.chunkSize, s.chunkOverlap)
		if err != nil {
			return 0, fmt.Errorf("failed to chunk document: %w", err)
		}
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	entries := make([]vectorstore.Entry, len(chunks))
	for i, chunk := range chunks {
		meta := models.ChunkMetadata{
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			FileType:   doc.FileType,
			ChunkIndex: i,
			ChunkStart: chunk.Start,
			UploadTime: doc.UploadTime,
		}
		if err := meta.Validate(); err != nil {
			return 0, fmt.Errorf("invalid metadata for chunk %d: %w", i, err)
		}
		entries[i] = vectorstore.Entry{
			ID:        models.ChunkID(doc.ID, i),
			Content:   chunk.Text,
			Embedding: vectors[i],
			Metadata:  meta,
		}
	}

	if err := s.store.Upsert(ctx, entries); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	return len(entries), nil
}

// Query embeds the question and returns the k most similar chunks with
// similarity scores derived as 1 - cosine distance. Asking for more chunks
// than stored returns all of them; an empty index returns an empty list.
func (s *Service) Query(ctx context.Context, question string, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		k = s.defaultTopK
	}

	vector, err := s.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	hits, err := s.store.Query(ctx, vector, k, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	chunks := make([]models.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		chunks = append(chunks, models.RetrievedChunk{
			ChunkID:  hit.ID,
			Content:  hit.Content,
			Metadata: hit.Metadata,
			Score:    1 - hit.Distance,
		})
	}
	return chunks, nil
}

// DeleteDocument removes every chunk tagged with documentID. A second
// delete of the same id reports ErrDocumentNotFound rather than failing.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	deleted, err := s.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	return nil
}

// ListDocuments aggregates stored chunk metadata into one entry per
// document.
func (s *Service) ListDocuments(ctx context.Context, limit int) ([]models.DocumentInfo, error) {
	docs, err := s.store.Documents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Count reports the number of chunks currently stored.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}
