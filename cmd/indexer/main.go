package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"docqa-rag/internal/config"
	"docqa-rag/internal/embedding"
	"docqa-rag/internal/models"
	"docqa-rag/internal/processor"
	"docqa-rag/internal/rag"
	"docqa-rag/internal/vectorstore"
	"docqa-rag/internal/vectorstore/chromem"
	"docqa-rag/internal/vectorstore/pgvector"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Bulk indexer: ingests PDF/TXT files from the command line into the
// configured vector store without going through the HTTP API.
func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "Path to YAML config file")
	mode := flag.String("mode", "chunked", "Chunking mode: chunked or full")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		log.Fatal("Usage: indexer [-config config.yaml] [-mode chunked|full] file1.pdf [file2.txt ...]")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	chunkMode, err := rag.ParseChunkMode(*mode)
	if err != nil {
		log.Fatalf("Invalid mode: %v", err)
	}

	ctx := context.Background()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize vector store: %v", err)
	}
	defer store.Close()

	embedder, err := embedding.NewOllamaEmbedder(cfg.Embedding.Host, cfg.Embedding.Model,
		time.Duration(cfg.Embedding.TimeoutSecs)*time.Second)
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	embedder.BatchSize = cfg.Embedding.BatchSize
	embedder.MaxConcurrent = cfg.Embedding.MaxConcurrent

	// No generator: ingestion never calls the language model.
	service, err := rag.NewService(store, embedder, nil,
		cfg.Chunking.Size, cfg.Chunking.Overlap, cfg.Retrieval.TopK)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	proc := processor.New(cfg.Server.MaxFileBytes)

	indexed := 0
	for _, path := range paths {
		start := time.Now()

		info, err := os.Stat(path)
		if err != nil {
			log.Printf("Skipping %s: %v", path, err)
			continue
		}
		if err := proc.CheckSize(info.Size()); err != nil {
			log.Printf("Skipping %s: %v", path, err)
			continue
		}
		fileType, err := models.ParseFileType(path)
		if err != nil {
			log.Printf("Skipping %s: %v", path, err)
			continue
		}

		text, err := proc.ExtractText(path, fileType)
		if err != nil {
			log.Printf("Failed to extract %s: %v", path, err)
			continue
		}

		doc := models.Document{
			ID:         uuid.NewString(),
			Filename:   filepath.Base(path),
			FileType:   fileType,
			UploadTime: time.Now().UTC(),
		}

		chunks, err := service.IngestDocument(ctx, doc, text, chunkMode)
		if err != nil {
			log.Printf("Failed to index %s: %v", path, err)
			continue
		}

		log.Printf("Indexed %s as %s: %d chunks in %v", path, doc.ID, chunks, time.Since(start).Round(time.Millisecond))
		indexed++
	}

	count, err := store.Count(ctx)
	if err != nil {
		log.Fatalf("Failed to read vector store: %v", err)
	}
	log.Printf("Done: %d/%d files indexed, %d chunks stored", indexed, len(paths), count)
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
