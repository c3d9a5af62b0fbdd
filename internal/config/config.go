package config

import (
	"errors"
	"fmt"
	"os"

	"docqa-rag/internal/vectorstore"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	DocumentsDir string `yaml:"documents_dir"`
	MaxFileBytes int64  `yaml:"max_file_bytes"`
}

// ChunkingConfig configures the sliding-window chunker.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig configures the Ollama embedding provider.
type EmbeddingConfig struct {
	Model         string `yaml:"model"`
	Host          string `yaml:"host"`
	Dimension     int    `yaml:"dimension"`
	TimeoutSecs   int    `yaml:"timeout_secs"`
	BatchSize     int    `yaml:"batch_size"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// LLMConfig configures the Ollama generation model.
type LLMConfig struct {
	Model       string `yaml:"model"`
	Host        string `yaml:"host"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PgvectorConfig contains connection details for the pgvector backend.
type PgvectorConfig struct {
	ConnString string `yaml:"conn_string"`
}

// ChromemConfig contains settings for the embedded chromem backend.
type ChromemConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

// StoreConfig selects and configures the vector index backend. The distance
// metric is explicit because similarity scores are derived as 1 - distance,
// which is only valid for cosine distance.
type StoreConfig struct {
	Type     string          `yaml:"type"`
	Distance string          `yaml:"distance"`
	Pgvector *PgvectorConfig `yaml:"pgvector,omitempty"`
	Chromem  *ChromemConfig  `yaml:"chromem,omitempty"`
}

// RetrievalConfig configures query-time retrieval.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// AppConfig is the root application configuration.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Store     StoreConfig     `yaml:"store"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// Load reads a config from path. A missing file returns defaults; an
// invalid config returns an error so startup fails instead of the first
// request.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that would misbehave at runtime, in
// particular a chunk overlap that is not smaller than the chunk size and
// any distance metric other than cosine.
func (c *AppConfig) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, %d), got %d", c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Store.Distance != vectorstore.DistanceCosine {
		return fmt.Errorf("store.distance must be %q (similarity scores assume cosine distance), got %q",
			vectorstore.DistanceCosine, c.Store.Distance)
	}
	switch c.Store.Type {
	case "chromem":
		if c.Store.Chromem == nil {
			return fmt.Errorf("store.chromem settings missing")
		}
	case "pgvector":
		if c.Store.Pgvector == nil || c.Store.Pgvector.ConnString == "" {
			return fmt.Errorf("store.pgvector.conn_string missing")
		}
	default:
		return fmt.Errorf("unknown store type: %q (expected chromem or pgvector)", c.Store.Type)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Server.MaxFileBytes <= 0 {
		return fmt.Errorf("server.max_file_bytes must be positive, got %d", c.Server.MaxFileBytes)
	}
	return nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:         ":8000",
			DocumentsDir: "data/documents",
			MaxFileBytes: 10 * 1024 * 1024,
		},
		Chunking: ChunkingConfig{Size: 500, Overlap: 50},
		Embedding: EmbeddingConfig{
			Model:         "nomic-embed-text",
			Dimension:     768,
			TimeoutSecs:   30,
			BatchSize:     32,
			MaxConcurrent: 3,
		},
		LLM: LLMConfig{
			Model:       "qwen2.5:7b",
			TimeoutSecs: 60,
		},
		Store: StoreConfig{
			Type:     "chromem",
			Distance: vectorstore.DistanceCosine,
			Chromem:  &ChromemConfig{Path: "chroma_db", Collection: "knowledge_base"},
		},
		Retrieval: RetrievalConfig{TopK: 3},
	}
}

func applyDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.DocumentsDir == "" {
		cfg.Server.DocumentsDir = def.Server.DocumentsDir
	}
	if cfg.Server.MaxFileBytes == 0 {
		cfg.Server.MaxFileBytes = def.Server.MaxFileBytes
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = def.Chunking.Size
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = def.Embedding.Model
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = def.Embedding.Dimension
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = def.Embedding.TimeoutSecs
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = def.Embedding.BatchSize
	}
	if cfg.Embedding.MaxConcurrent == 0 {
		cfg.Embedding.MaxConcurrent = def.Embedding.MaxConcurrent
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = def.LLM.TimeoutSecs
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = def.Store.Type
	}
	if cfg.Store.Distance == "" {
		cfg.Store.Distance = def.Store.Distance
	}
	if cfg.Store.Type == "chromem" && cfg.Store.Chromem == nil {
		cfg.Store.Chromem = def.Store.Chromem
	}
	if cfg.Store.Chromem != nil {
		if cfg.Store.Chromem.Path == "" {
			cfg.Store.Chromem.Path = def.Store.Chromem.Path
		}
		if cfg.Store.Chromem.Collection == "" {
			cfg.Store.Chromem.Collection = def.Store.Chromem.Collection
		}
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
}
