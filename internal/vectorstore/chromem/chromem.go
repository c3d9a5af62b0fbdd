package chromem

import (
	"context"
	"fmt"
	"math"
	"sort"

	"docqa-rag/internal/models"
	"docqa-rag/internal/vectorstore"

	chromemgo "github.com/philippgille/chromem-go"
)

// Store is an embedded vector index backed by chromem-go's persistent DB.
// The collection is configured for cosine distance, so result similarity
// converts to distance as 1 - similarity.
type Store struct {
	db         *chromemgo.DB
	collection *chromemgo.Collection
	dimension  int
}

var _ vectorstore.Store = (*Store)(nil)

// New opens (or creates) the persistent database at path and gets or
// creates the named collection.
func New(path, collection string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	db, err := chromemgo.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}

	col, err := db.GetOrCreateCollection(collection, map[string]string{
		"hnsw:space": vectorstore.DistanceCosine,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %s: %w", collection, err)
	}

	return &Store{db: db, collection: col, dimension: dimension}, nil
}

// Upsert inserts or overwrites chunk entries by id.
func (s *Store) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, len(entries))
	embeddings := make([][]float32, len(entries))
	metadatas := make([]map[string]string, len(entries))
	contents := make([]string, len(entries))
	for i, entry := range entries {
		if len(entry.Embedding) != s.dimension {
			return fmt.Errorf("entry %s has dimension %d, store expects %d",
				entry.ID, len(entry.Embedding), s.dimension)
		}
		ids[i] = entry.ID
		embeddings[i] = entry.Embedding
		metadatas[i] = entry.Metadata.ToMap()
		contents[i] = entry.Content
	}

	if err := s.collection.Add(ctx, ids, embeddings, metadatas, contents); err != nil {
		return fmt.Errorf("failed to add chunks: %w", err)
	}
	return nil
}

// Query finds the k nearest chunks by cosine distance. k larger than the
// number of stored chunks is clamped; an empty collection returns an empty
// result.
func (s *Store) Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]vectorstore.Result, error) {
	count := s.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	hits, err := s.collection.QueryEmbedding(ctx, embedding, k, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar chunks: %w", err)
	}

	results := make([]vectorstore.Result, 0, len(hits))
	for _, hit := range hits {
		meta, err := models.MetadataFromMap(hit.Metadata)
		if err != nil {
			return nil, fmt.Errorf("chunk %s has invalid metadata: %w", hit.ID, err)
		}
		results = append(results, vectorstore.Result{
			ID:       hit.ID,
			Content:  hit.Content,
			Metadata: meta,
			Distance: 1 - float64(hit.Similarity),
		})
	}
	return results, nil
}

// DeleteDocument removes every chunk whose metadata tags it with documentID.
// The removed count comes from the collection size delta since chromem's
// delete does not report one.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	before := s.collection.Count()
	err := s.collection.Delete(ctx, map[string]string{"document_id": documentID}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for document %s: %w", documentID, err)
	}
	return int64(before - s.collection.Count()), nil
}

// Documents aggregates stored chunks into one row per document, newest
// upload first. chromem has no enumeration API, so this runs a full-scan
// probe query asking for every entry; a chunk whose metadata fails to parse
// is omitted rather than failing the listing.
func (s *Store) Documents(ctx context.Context, limit int) ([]models.DocumentInfo, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}

	probe := make([]float32, s.dimension)
	uniform := float32(1 / math.Sqrt(float64(s.dimension)))
	for i := range probe {
		probe[i] = uniform
	}

	hits, err := s.collection.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to scan collection: %w", err)
	}

	byDoc := make(map[string]*models.DocumentInfo)
	for _, hit := range hits {
		meta, err := models.MetadataFromMap(hit.Metadata)
		if err != nil {
			continue
		}
		info, ok := byDoc[meta.DocumentID]
		if !ok {
			info = &models.DocumentInfo{
				DocumentID: meta.DocumentID,
				Filename:   meta.Filename,
				FileType:   meta.FileType,
				UploadTime: meta.UploadTime,
			}
			byDoc[meta.DocumentID] = info
		}
		info.ChunksCount++
		if meta.UploadTime.Before(info.UploadTime) {
			info.UploadTime = meta.UploadTime
		}
	}

	docs := make([]models.DocumentInfo, 0, len(byDoc))
	for _, info := range byDoc {
		docs = append(docs, *info)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UploadTime.After(docs[j].UploadTime)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return int64(s.collection.Count()), nil
}

// Close is a no-op; the persistent DB writes through on every mutation.
func (s *Store) Close() error {
	return nil
}
