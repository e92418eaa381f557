// cmd/engram-mcp is the entry point for the Engram MCP (Model Context
// Protocol) server.  It wires the configured storage engine into the memory
// engine and serves JSON-RPC 2.0 over stdio.
//
// Startup sequence:
//  1. Load configuration from environment variables (.env honored).
//  2. Open the relational and vector stores for the configured engine.
//  3. Build the summarizer and, for the embedded engine, the backup manager.
//  4. Create the MCP server and serve requests from stdin.
//
// CRITICAL: ALL logging MUST go to stderr.  Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames will corrupt the protocol.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/engram/internal/api/mcp"
	"github.com/scrypster/engram/internal/backup"
	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/postgres"
	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/internal/storage/vector"
)

func main() {
	// Redirect the default logger to stderr so that any incidental log calls
	// (e.g. from imported packages) never pollute the stdout JSON-RPC stream.
	log.SetOutput(os.Stderr)
	log.SetPrefix("engram-mcp: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Set up a root context that is cancelled on SIGINT / SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	relational, vectors, backups, err := openStores(ctx, cfg, buildEmbedder(cfg))
	if err != nil {
		log.Fatalf("failed to open stores: %v", err)
	}

	eng, err := engine.New(relational, vectors, buildSummarizer(cfg), backups, cfg)
	if err != nil {
		log.Fatalf("failed to create memory engine: %v", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Printf("store shutdown error: %v", err)
		}
	}()

	srv := mcp.NewServer(mcp.WithEngine(eng), mcp.WithConfig(cfg))

	// Wrap the server in a StdioTransport that reads line-delimited JSON-RPC
	// from stdin and writes responses to stdout.  All logging inside the
	// transport is directed to stderr.
	transport := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout)

	log.Printf("ready: %s engine, serving JSON-RPC 2.0 on stdin/stdout", cfg.Storage.Engine)

	if err := transport.Serve(ctx); err != nil {
		// A non-nil error here is normal (context cancellation) or indicates a
		// fatal stdin/stdout problem.  Either way it is informational only.
		log.Printf("transport stopped: %v", err)
	}
}

// openStores opens the relational and vector halves of the configured
// storage engine. Scheduled backups apply to the embedded engine only: they
// snapshot the data directory, which postgres does not live in.
func openStores(ctx context.Context, cfg *config.Config, embedder llm.EmbeddingGenerator) (storage.RelationalStore, storage.VectorStore, *backup.Manager, error) {
	switch cfg.Storage.Engine {
	case config.EnginePostgres:
		store, err := postgres.New(cfg.Storage.DatabaseURL, embedder)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.Backup.Enabled {
			log.Println("scheduled backups cover the embedded engine only; rely on postgres tooling instead")
		}
		return store, store.Vectors(), nil, nil

	default: // sqlite; LoadConfig rejected anything else
		if err := os.MkdirAll(cfg.Storage.DBPath, 0o700); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create data directory %q: %w", cfg.Storage.DBPath, err)
		}

		relational, err := sqlite.New(cfg.SQLitePath())
		if err != nil {
			return nil, nil, nil, err
		}

		vectors, err := vector.New(ctx, cfg.VectorPath(), embedder)
		if err != nil {
			_ = relational.Close()
			return nil, nil, nil, err
		}

		backups, err := backup.NewManager(backup.Options{
			DataDir:   cfg.Storage.DBPath,
			BackupDir: cfg.Backup.Path,
			Interval:  time.Duration(cfg.Backup.IntervalHours) * time.Hour,
			Keep:      cfg.Backup.RetentionCount,
			Enabled:   cfg.Backup.Enabled,
		})
		if err != nil {
			_ = relational.Close()
			_ = vectors.Close()
			return nil, nil, nil, err
		}

		return relational, vectors, backups, nil
	}
}

// buildEmbedder selects the embedding backend. The remote client shares the
// summarizer's OpenRouter credentials.
func buildEmbedder(cfg *config.Config) llm.EmbeddingGenerator {
	if cfg.Embeddings.Provider == config.EmbeddingsOpenRouter {
		log.Printf("embeddings: openrouter %s (%d dims)", cfg.Embeddings.Model, cfg.Embeddings.Dimensions)
		return llm.NewOpenRouterEmbeddingClient(llm.OpenRouterEmbeddingConfig{
			APIKey:     cfg.Summarizer.APIKey,
			Model:      cfg.Embeddings.Model,
			BaseURL:    cfg.Summarizer.Endpoint,
			Dimensions: cfg.Embeddings.Dimensions,
		})
	}
	return llm.NewLocalEmbedder()
}

// buildSummarizer wires the OpenRouter chat client when an API key is
// present. Without one the summarizer reports itself unavailable and the
// summarization paths degrade; every other operation keeps working.
func buildSummarizer(cfg *config.Config) *llm.Summarizer {
	if cfg.Summarizer.APIKey == "" {
		log.Println("OPENROUTER_API_KEY not set: summarization disabled")
		return llm.NewSummarizer(nil)
	}
	return llm.NewSummarizer(llm.NewOpenRouterClient(llm.OpenRouterConfig{
		APIKey:  cfg.Summarizer.APIKey,
		Model:   cfg.Summarizer.Model,
		BaseURL: cfg.Summarizer.Endpoint,
		RPS:     cfg.Summarizer.RPS,
	}))
}
