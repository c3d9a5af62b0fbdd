package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"docqa-rag/internal/config"
	"docqa-rag/internal/embedding"
	"docqa-rag/internal/llm"
	"docqa-rag/internal/processor"
	"docqa-rag/internal/rag"
	"docqa-rag/internal/server"
	"docqa-rag/internal/vectorstore"
	"docqa-rag/internal/vectorstore/chromem"
	"docqa-rag/internal/vectorstore/pgvector"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx := context.Background()

	// All collaborators are constructed here, once; any failure aborts
	// startup instead of surfacing lazily on the first request.
	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize vector store: %v", err)
	}
	defer store.Close()

	count, err := store.Count(ctx)
	if err != nil {
		log.Fatalf("Failed to read vector store: %v", err)
	}
	log.Printf("Vector store ready (%s), %d chunks stored", cfg.Store.Type, count)

	embedder, err := embedding.NewOllamaEmbedder(cfg.Embedding.Host, cfg.Embedding.Model,
		time.Duration(cfg.Embedding.TimeoutSecs)*time.Second)
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	embedder.BatchSize = cfg.Embedding.BatchSize
	embedder.MaxConcurrent = cfg.Embedding.MaxConcurrent

	llmClient, err := llm.NewOllamaLLM(cfg.LLM.Host, cfg.LLM.Model,
		time.Duration(cfg.LLM.TimeoutSecs)*time.Second)
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	service, err := rag.NewService(store, embedder, llmClient,
		cfg.Chunking.Size, cfg.Chunking.Overlap, cfg.Retrieval.TopK)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	srv, err := server.New(service, processor.New(cfg.Server.MaxFileBytes), cfg.Server.DocumentsDir)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Serving on %s (embedding=%s, llm=%s)", cfg.Server.Addr, cfg.Embedding.Model, cfg.LLM.Model)
	log.Fatal(httpServer.ListenAndServe())
}

func buildStore(ctx context.Context, cfg *config.AppConfig) (vectorstore.Store, error) {
	switch cfg.Store.Type {
	case "pgvector":
		store, err := pgvector.New(ctx, cfg.Store.Pgvector.ConnString, cfg.Embedding.Dimension)
		if err != nil {
			return nil, err
		}
		if err := store.Initialize(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case "chromem":
		return chromem.New(cfg.Store.Chromem.Path, cfg.Store.Chromem.Collection, cfg.Embedding.Dimension)
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Store.Type)
	}
}
