package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// OllamaEmbedder generates embeddings using the Ollama API. Vectors are
// returned in input order, one per input text, and are deterministic for a
// given model version.
type OllamaEmbedder struct {
	Client        *api.Client
	Model         string
	MaxRetries    int
	Timeout       time.Duration
	BatchSize     int
	MaxConcurrent int
}

// NewOllamaEmbedder creates a new Ollama embedder. An empty host falls back
// to the OLLAMA_HOST environment configuration.
func NewOllamaEmbedder(host, model string, timeout time.Duration) (*OllamaEmbedder, error) {
	hostURL := envconfig.Host()
	if host != "" {
		parsed, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = parsed
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OllamaEmbedder{
		Client:        api.NewClient(hostURL, http.DefaultClient),
		Model:         model,
		MaxRetries:    3,
		Timeout:       timeout,
		BatchSize:     32,
		MaxConcurrent: 3,
	}, nil
}

// EmbedOne generates the embedding for a single text.
func (e *OllamaEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// Embed generates one embedding per input text, preserving input order.
// Batches run in parallel under a concurrency cap.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchSize := e.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	vectors := make([][]float32, len(texts))
	semaphore := make(chan struct{}, e.maxConcurrent())
	errChan := make(chan error, (len(texts)+batchSize-1)/batchSize)

	var wg sync.WaitGroup
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(start, end int) {
			defer func() {
				wg.Done()
				<-semaphore
			}()

			batch, err := e.embedBatch(ctx, texts[start:end])
			if err != nil {
				errChan <- fmt.Errorf("failed to embed batch starting at %d: %w", start, err)
				return
			}
			copy(vectors[start:end], batch)
		}(start, end)
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *OllamaEmbedder) maxConcurrent() int {
	if e.MaxConcurrent <= 0 {
		return 1
	}
	return e.MaxConcurrent
}

// embedBatch sends one embedding request with bounded retries.
func (e *OllamaEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for retries := 0; retries <= e.MaxRetries; retries++ {
		if retries > 0 {
			time.Sleep(time.Duration(retries) * time.Second)
		}

		vectors, err := e.createEmbeddings(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to create embeddings after %d retries: %w", e.MaxRetries, lastErr)
}

func (e *OllamaEmbedder) createEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	req := api.EmbedRequest{
		Model: e.Model,
		Input: texts,
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	resp, err := e.Client.Embed(ctxWithTimeout, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}
