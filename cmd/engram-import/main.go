// cmd/engram-import bulk-loads a directory of Markdown notes into the
// memory stores. Notes go through the full store path, so imports produce
// the same summaries, vector mirrors, and backup snapshots as memories
// stored over MCP.
//
// Each note's topic comes from its "topic" frontmatter key, then its
// immediate directory, then the -topic flag.
//
// Usage:
//
//	engram-import -dir ./notes [-topic inbox] [-dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/scrypster/engram/internal/backup"
	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/importer"
	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/postgres"
	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/internal/storage/vector"
)

func main() {
	var (
		dir    = flag.String("dir", "", "directory of Markdown notes to import (required)")
		topic  = flag.String("topic", "imported", "fallback topic for notes without one")
		dryRun = flag.Bool("dry-run", false, "parse and report without storing")
	)
	flag.Parse()

	log.SetFlags(0)
	log.SetPrefix("engram-import: ")

	if *dir == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	relational, vectors, backups, err := openStores(ctx, cfg, buildEmbedder(cfg))
	if err != nil {
		log.Fatalf("failed to open stores: %v", err)
	}

	eng, err := engine.New(relational, vectors, buildSummarizer(cfg), backups, cfg)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	defer func() { _ = eng.Close() }()

	imp := importer.New(eng, importer.Options{DefaultTopic: *topic, DryRun: *dryRun})

	result, err := imp.Run(ctx, *dir)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}

	printSummary(os.Stdout, result, *dryRun)
	if result.FilesFailed > 0 {
		os.Exit(1)
	}
}

// printSummary writes the run report: one headline, per-topic counts in
// stable order, then any per-file errors.
func printSummary(w io.Writer, result *importer.Result, dryRun bool) {
	verb := "imported"
	if dryRun {
		verb = "would import"
	}
	fmt.Fprintf(w, "%s %d of %d files in %v (%d skipped, %d failed)\n",
		verb, result.FilesImported, result.FilesFound,
		result.Duration.Round(time.Millisecond),
		result.FilesSkipped, result.FilesFailed)

	names := make([]string, 0, len(result.Topics))
	for name := range result.Topics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-24s %d\n", name, result.Topics[name])
	}

	for _, e := range result.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
}

// openStores opens the configured storage engine. The sqlite default gets
// a backup manager; postgres data is snapshotted by its own tooling.
func openStores(ctx context.Context, cfg *config.Config, embedder llm.EmbeddingGenerator) (storage.RelationalStore, storage.VectorStore, *backup.Manager, error) {
	switch cfg.Storage.Engine {
	case config.EnginePostgres:
		store, err := postgres.New(cfg.Storage.DatabaseURL, embedder)
		if err != nil {
			return nil, nil, nil, err
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
// present. Without one, notes over the tiny threshold are stored without
// summaries and each carries a warning.
func buildSummarizer(cfg *config.Config) *llm.Summarizer {
	if cfg.Summarizer.APIKey == "" {
		log.Println("OPENROUTER_API_KEY not set: large notes will be stored without summaries")
		return llm.NewSummarizer(nil)
	}
	return llm.NewSummarizer(llm.NewOpenRouterClient(llm.OpenRouterConfig{
		APIKey:  cfg.Summarizer.APIKey,
		Model:   cfg.Summarizer.Model,
		BaseURL: cfg.Summarizer.Endpoint,
		RPS:     cfg.Summarizer.RPS,
	}))
}
