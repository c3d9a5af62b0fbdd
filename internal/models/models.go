package models

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileType identifies the kind of uploaded document.
type FileType string

const (
	FileTypePDF FileType = "pdf"
	FileTypeTXT FileType = "txt"
)

// ParseFileType maps a filename to a supported file type based on its
// extension. Unsupported extensions are rejected before any processing.
func ParseFileType(filename string) (FileType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FileTypePDF, nil
	case ".txt":
		return FileTypeTXT, nil
	default:
		return "", fmt.Errorf("unsupported file type: %s (supported: pdf, txt)", filepath.Ext(filename))
	}
}

// Document represents an uploaded file. Documents are never mutated; they
// disappear when all of their chunks are deleted from the vector index.
type Document struct {
	ID         string    `json:"document_id"`
	Filename   string    `json:"filename"`
	FileType   FileType  `json:"file_type"`
	UploadTime time.Time `json:"upload_time"`
}

// ChunkMetadata is the fixed metadata record persisted with every chunk in
// the vector index. The index is the sole persistent store; there is no
// separate document table.
type ChunkMetadata struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	FileType   FileType  `json:"file_type"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkStart int       `json:"chunk_start"`
	UploadTime time.Time `json:"upload_time"`
}

// Validate rejects metadata with missing required fields. It runs at the
// ingestion boundary so stores never see a partial record.
func (m ChunkMetadata) Validate() error {
	if m.DocumentID == "" {
		return fmt.Errorf("chunk metadata missing document_id")
	}
	if m.Filename == "" {
		return fmt.Errorf("chunk metadata missing filename")
	}
	if m.FileType != FileTypePDF && m.FileType != FileTypeTXT {
		return fmt.Errorf("chunk metadata has invalid file_type: %q", m.FileType)
	}
	if m.ChunkIndex < 0 {
		return fmt.Errorf("chunk metadata has negative chunk_index: %d", m.ChunkIndex)
	}
	if m.ChunkStart < 0 {
		return fmt.Errorf("chunk metadata has negative chunk_start: %d", m.ChunkStart)
	}
	if m.UploadTime.IsZero() {
		return fmt.Errorf("chunk metadata missing upload_time")
	}
	return nil
}

// ChunkID derives the stable chunk identifier from the owning document and
// the chunk's sequential index.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// ToMap flattens the metadata into string key/value pairs for stores that
// persist flat string metadata.
func (m ChunkMetadata) ToMap() map[string]string {
	return map[string]string{
		"document_id": m.DocumentID,
		"filename":    m.Filename,
		"file_type":   string(m.FileType),
		"chunk_index": strconv.Itoa(m.ChunkIndex),
		"chunk_start": strconv.Itoa(m.ChunkStart),
		"upload_time": m.UploadTime.UTC().Format(time.RFC3339),
	}
}

// MetadataFromMap rebuilds a ChunkMetadata from flat string pairs.
func MetadataFromMap(raw map[string]string) (ChunkMetadata, error) {
	var meta ChunkMetadata
	meta.DocumentID = raw["document_id"]
	meta.Filename = raw["filename"]
	meta.FileType = FileType(raw["file_type"])

	index, err := strconv.Atoi(raw["chunk_index"])
	if err != nil {
		return ChunkMetadata{}, fmt.Errorf("failed to parse chunk_index: %w", err)
	}
	meta.ChunkIndex = index

	start, err := strconv.Atoi(raw["chunk_start"])
	if err != nil {
		return ChunkMetadata{}, fmt.Errorf("failed to parse chunk_start: %w", err)
	}
	meta.ChunkStart = start

	uploaded, err := time.Parse(time.RFC3339, raw["upload_time"])
	if err != nil {
		return ChunkMetadata{}, fmt.Errorf("failed to parse upload_time: %w", err)
	}
	meta.UploadTime = uploaded

	if err := meta.Validate(); err != nil {
		return ChunkMetadata{}, err
	}
	return meta, nil
}

// RetrievedChunk is one entry of a per-query retrieval result. Score is
// derived as 1 - cosine distance and is never persisted.
type RetrievedChunk struct {
	ChunkID  string        `json:"chunk_id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"`
}

// UploadResponse is returned by the upload endpoint.
type UploadResponse struct {
	Success     bool     `json:"success"`
	DocumentID  string   `json:"document_id"`
	Filename    string   `json:"filename"`
	FileType    FileType `json:"file_type"`
	ChunksCount int      `json:"chunks_count"`
	Message     string   `json:"message"`
}

// QueryRequest is the body of the question-answering endpoint.
type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// QueryResponse pairs the generated answer with the ranked chunks it was
// grounded on.
type QueryResponse struct {
	Answer         string           `json:"answer"`
	RelevantChunks []RetrievedChunk `json:"relevant_chunks"`
	Question       string           `json:"question"`
	Model          string           `json:"model"`
	Timestamp      time.Time        `json:"timestamp"`
}

// DocumentInfo is one row of the document listing, aggregated from the
// per-chunk metadata stored in the vector index.
type DocumentInfo struct {
	DocumentID  string    `json:"document_id"`
	Filename    string    `json:"filename"`
	FileType    FileType  `json:"file_type"`
	UploadTime  time.Time `json:"upload_time"`
	ChunksCount int       `json:"chunks_count"`
}
