package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// OllamaLLM handles answer generation through the Ollama API.
type OllamaLLM struct {
	Client  *api.Client
	Model   string
	Timeout time.Duration
}

// NewOllamaLLM creates a new Ollama LLM client. An empty host falls back to
// the OLLAMA_HOST environment configuration.
func NewOllamaLLM(host, model string, timeout time.Duration) (*OllamaLLM, error) {
	hostURL := envconfig.Host()
	if host != "" {
		parsed, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = parsed
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OllamaLLM{
		Client:  api.NewClient(hostURL, http.DefaultClient),
		Model:   model,
		Timeout: timeout,
	}, nil
}

// ModelName reports the configured generation model.
func (o *OllamaLLM) ModelName() string {
	return o.Model
}

// Generate sends a single non-streaming generation request and returns the
// model's raw output. A failed or timed-out call returns an error; no retry
// is attempted.
func (o *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := api.GenerateRequest{
		Model:  o.Model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": 0.1,
		},
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	var responseBuilder strings.Builder
	err := o.Client.Generate(ctxWithTimeout, &req, func(resp api.GenerateResponse) error {
		_, err := responseBuilder.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	return responseBuilder.String(), nil
}
