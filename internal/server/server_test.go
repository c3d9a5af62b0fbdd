package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"docqa-rag/internal/models"
	"docqa-rag/internal/processor"
	"docqa-rag/internal/rag"
	"docqa-rag/internal/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 16)
	for _, b := range []byte(text) {
		vec[int(b)%16]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (e stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.EmbedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

type stubStore struct {
	entries map[string]vectorstore.Entry
}

func newStubStore() *stubStore {
	return &stubStore{entries: make(map[string]vectorstore.Entry)}
}

func (s *stubStore) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	for _, entry := range entries {
		s.entries[entry.ID] = entry
	}
	return nil
}

func (s *stubStore) Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]vectorstore.Result, error) {
	var results []vectorstore.Result
	for _, entry := range s.entries {
		var dot float64
		for i := range embedding {
			dot += float64(embedding[i]) * float64(entry.Embedding[i])
		}
		results = append(results, vectorstore.Result{
			ID:       entry.ID,
			Content:  entry.Content,
			Metadata: entry.Metadata,
			Distance: 1 - dot,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (s *stubStore) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	var deleted int64
	for id, entry := range s.entries {
		if entry.Metadata.DocumentID == documentID {
			delete(s.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *stubStore) Documents(ctx context.Context, limit int) ([]models.DocumentInfo, error) {
	byDoc := make(map[string]*models.DocumentInfo)
	for _, entry := range s.entries {
		info, ok := byDoc[entry.Metadata.DocumentID]
		if !ok {
			info = &models.DocumentInfo{
				DocumentID: entry.Metadata.DocumentID,
				Filename:   entry.Metadata.Filename,
				FileType:   entry.Metadata.FileType,
				UploadTime: entry.Metadata.UploadTime,
			}
			byDoc[entry.Metadata.DocumentID] = info
		}
		info.ChunksCount++
	}
	var docs []models.DocumentInfo
	for _, info := range byDoc {
		docs = append(docs, *info)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocumentID < docs[j].DocumentID })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *stubStore) Count(ctx context.Context) (int64, error) {
	return int64(len(s.entries)), nil
}

func (s *stubStore) Close() error { return nil }

type stubGenerator struct {
	response string
	err      error
	calls    int
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func (g *stubGenerator) ModelName() string { return "stub-model" }

type testEnv struct {
	server       *httptest.Server
	documentsDir string
	generator    *stubGenerator
	store        *stubStore
}

func newTestEnv(t *testing.T, maxFileBytes int64) *testEnv {
	t.Helper()

	store := newStubStore()
	gen := &stubGenerator{response: "a grounded answer"}
	svc, err := rag.NewService(store, stubEmbedder{}, gen, 500, 50, 3)
	require.NoError(t, err)

	documentsDir := filepath.Join(t.TempDir(), "documents")
	srv, err := New(svc, processor.New(maxFileBytes), documentsDir)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, documentsDir: documentsDir, generator: gen, store: store}
}

func uploadFile(t *testing.T, env *testEnv, filename, content, chunkMode string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	if chunkMode != "" {
		require.NoError(t, mw.WriteField("chunk_mode", chunkMode))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.server.URL+"/api/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestUpload_TXT(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp := uploadFile(t, env, "notes.txt", strings.Repeat("a", 1200), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded models.UploadResponse
	decodeBody(t, resp, &uploaded)
	assert.True(t, uploaded.Success)
	assert.NotEmpty(t, uploaded.DocumentID)
	assert.Equal(t, "notes.txt", uploaded.Filename)
	assert.Equal(t, models.FileTypeTXT, uploaded.FileType)
	assert.Equal(t, 3, uploaded.ChunksCount)

	// The source file is kept under the document id.
	saved := filepath.Join(env.documentsDir, uploaded.DocumentID+".txt")
	_, err := os.Stat(saved)
	assert.NoError(t, err)
}

func TestUpload_WholeDocumentMode(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp := uploadFile(t, env, "notes.txt", strings.Repeat("a", 1200), "full")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded models.UploadResponse
	decodeBody(t, resp, &uploaded)
	assert.Equal(t, 1, uploaded.ChunksCount)
}

func TestUpload_UnsupportedExtension(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp := uploadFile(t, env, "report.docx", "irrelevant", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_Oversize(t *testing.T) {
	env := newTestEnv(t, 64)

	resp := uploadFile(t, env, "big.txt", strings.Repeat("a", 200), "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_InvalidChunkMode(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp := uploadFile(t, env, "notes.txt", "some text", "sentences")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func postQuery(t *testing.T, env *testEnv, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(env.server.URL+"/api/query", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestQuery_Answer(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp := uploadFile(t, env, "notes.txt", strings.Repeat("the quick brown fox ", 80), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postQuery(t, env, `{"question": "what about the fox?", "top_k": 2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var answer models.QueryResponse
	decodeBody(t, resp, &answer)
	assert.Equal(t, "a grounded answer", answer.Answer)
	assert.Equal(t, "what about the fox?", answer.Question)
	assert.Equal(t, "stub-model", answer.Model)
	assert.Len(t, answer.RelevantChunks, 2)
	assert.Equal(t, 1, env.generator.calls)
}

func TestQuery_EmptyIndex(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp := postQuery(t, env, `{"question": "anything?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var answer models.QueryResponse
	decodeBody(t, resp, &answer)
	assert.Equal(t, rag.NoRelevantContentMessage, answer.Answer)
	assert.Empty(t, answer.RelevantChunks)
	assert.Zero(t, env.generator.calls)
}

func TestQuery_Validation(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp := postQuery(t, env, `{"question": ""}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postQuery(t, env, `{"question": "ok", "top_k": 50}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postQuery(t, env, `not json`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQuery_GenerationFailure(t *testing.T) {
	env := newTestEnv(t, 10<<20)
	env.generator.err = errors.New("model unavailable")

	resp := uploadFile(t, env, "notes.txt", strings.Repeat("words and more words ", 60), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postQuery(t, env, `{"question": "anything?"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestListDocuments(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp := uploadFile(t, env, "first.txt", strings.Repeat("a", 600), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = uploadFile(t, env, "second.txt", "tiny", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(env.server.URL + "/api/documents")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Success   bool                  `json:"success"`
		Count     int                   `json:"count"`
		Documents []models.DocumentInfo `json:"documents"`
	}
	decodeBody(t, resp, &listing)
	assert.True(t, listing.Success)
	assert.Equal(t, 2, listing.Count)
	require.Len(t, listing.Documents, 2)
}

func TestListDocuments_InvalidLimit(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp, err := http.Get(env.server.URL + "/api/documents?limit=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteDocument(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp := uploadFile(t, env, "notes.txt", strings.Repeat("a", 600), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var uploaded models.UploadResponse
	decodeBody(t, resp, &uploaded)

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/documents/"+uploaded.DocumentID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Chunks and the saved source file are both gone.
	count, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	_, err = os.Stat(filepath.Join(env.documentsDir, uploaded.DocumentID+".txt"))
	assert.True(t, os.IsNotExist(err))

	// A second delete reports not found.
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp := uploadFile(t, env, "notes.txt", strings.Repeat("a", 600), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status     string `json:"status"`
		ChunkCount int64  `json:"chunk_count"`
	}
	decodeBody(t, resp, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.EqualValues(t, 2, health.ChunkCount)
}
