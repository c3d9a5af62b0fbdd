package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"docqa-rag/internal/models"
	"docqa-rag/internal/processor"
	"docqa-rag/internal/rag"

	"github.com/google/uuid"
)

const maxTopK = 10

// Server exposes the document QA service over HTTP. It is constructed once
// at startup with its collaborators and shared across requests.
type Server struct {
	service      *rag.Service
	processor    *processor.Processor
	documentsDir string
}

// New creates the HTTP server and ensures the documents directory exists.
func New(service *rag.Service, proc *processor.Processor, documentsDir string) (*Server, error) {
	if err := os.MkdirAll(documentsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create documents directory: %w", err)
	}
	return &Server{
		service:      service,
		processor:    proc,
		documentsDir: documentsDir,
	}, nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("DELETE /api/documents/{id}", s.handleDeleteDocument)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.service.Count(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"chunk_count": count,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Reject oversized payloads before reading the whole body. The slack
	// covers multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.processor.MaxFileBytes+64*1024)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	fileType, err := models.ParseFileType(header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.processor.CheckSize(header.Size); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	mode, err := rag.ParseChunkMode(r.FormValue("chunk_mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	doc := models.Document{
		ID:         uuid.NewString(),
		Filename:   header.Filename,
		FileType:   fileType,
		UploadTime: time.Now().UTC(),
	}

	savedPath := filepath.Join(s.documentsDir, doc.ID+filepath.Ext(header.Filename))
	if err := saveFile(savedPath, file); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to save file: %w", err))
		return
	}

	text, err := s.processor.ExtractText(savedPath, fileType)
	if err != nil {
		removeSaved(savedPath)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to process document: %w", err))
		return
	}

	chunksCount, err := s.service.IngestDocument(r.Context(), doc, text, mode)
	if err != nil {
		// The saved source file is removed; chunk vectors written before
		// the failure stay behind until a delete-and-retry.
		removeSaved(savedPath)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to index document: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, models.UploadResponse{
		Success:     true,
		DocumentID:  doc.ID,
		Filename:    doc.Filename,
		FileType:    doc.FileType,
		ChunksCount: chunksCount,
		Message:     "document uploaded and indexed",
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, errors.New("question must not be empty"))
		return
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		writeError(w, http.StatusBadRequest, fmt.Errorf("top_k must be between 1 and %d", maxTopK))
		return
	}

	resp, err := s.service.Answer(r.Context(), req.Question, req.TopK)
	if err != nil {
		if errors.Is(err, rag.ErrGeneration) {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %q", raw))
			return
		}
		limit = parsed
	}

	docs, err := s.service.ListDocuments(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if docs == nil {
		docs = []models.DocumentInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"count":     len(docs),
		"documents": docs,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")

	if err := s.service.DeleteDocument(r.Context(), documentID); err != nil {
		if errors.Is(err, rag.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// The saved source file shares its lifecycle with the chunks.
	matches, _ := filepath.Glob(filepath.Join(s.documentsDir, documentID+".*"))
	for _, match := range matches {
		removeSaved(match)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("document %s deleted", documentID),
	})
}

func saveFile(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		removeSaved(path)
		return err
	}
	return dst.Close()
}

func removeSaved(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to remove saved file %s: %v", path, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Warning: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}
