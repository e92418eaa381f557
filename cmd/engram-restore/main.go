// cmd/engram-restore restores the Engram data directory from a backup
// snapshot and checks (or repairs) drift between the relational rows and
// the vector index.
//
// Restoring replaces the live data directory, so the tool verifies the
// archive first, takes a safety backup of the current state, and asks for
// explicit confirmation unless --yes is given.
//
// Usage:
//
//	engram-restore --list
//	engram-restore [--file backups/memory_backup_2026-01-29_14-30-00.zip] [--yes]
//	engram-restore --reconcile [--repair]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/scrypster/engram/internal/backup"
	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage/postgres"
	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/internal/storage/vector"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	infoColor   = color.New(color.FgYellow)
	errorColor  = color.New(color.FgRed)
)

func main() {
	var (
		file      = flag.String("file", "", "path to the backup archive to restore")
		list      = flag.Bool("list", false, "list available backups and exit")
		reconcile = flag.Bool("reconcile", false, "report drift between the relational rows and the vector index")
		repair    = flag.Bool("repair", false, "with --reconcile: re-embed missing mirrors and delete orphans")
		yes       = flag.Bool("yes", false, "skip the confirmation prompt")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		errorColor.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *reconcile:
		os.Exit(runReconcile(cfg, *repair))
	case *list:
		os.Exit(runList(cfg))
	default:
		os.Exit(runRestore(cfg, *file, *yes))
	}
}

// runList prints the snapshot inventory, newest first.
func runList(cfg *config.Config) int {
	manager, err := newManager(cfg)
	if err != nil {
		errorColor.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	snapshots, err := manager.List()
	if err != nil {
		errorColor.Fprintf(os.Stderr, "failed to list backups: %v\n", err)
		return 1
	}
	if len(snapshots) == 0 {
		infoColor.Printf("No backups found in %s\n", cfg.Backup.Path)
		return 0
	}

	headerColor.Printf("Backups in %s\n\n", cfg.Backup.Path)
	printSnapshots(snapshots)
	return 0
}

// runRestore drives the interactive (or --file / --yes scripted) restore.
func runRestore(cfg *config.Config, file string, assumeYes bool) int {
	if cfg.Storage.Engine != config.EngineSQLite {
		errorColor.Fprintln(os.Stderr, "restore covers the embedded engine only; STORAGE_ENGINE=postgres data is managed by postgres tooling")
		return 1
	}

	manager, err := newManager(cfg)
	if err != nil {
		errorColor.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	headerColor.Println("Engram restore utility")
	fmt.Println()

	// One shared reader: a fresh bufio.Reader per prompt could swallow the
	// following line through read-ahead when stdin is a pipe.
	stdin := bufio.NewReader(os.Stdin)

	archivePath := file
	if archivePath == "" {
		snapshots, err := manager.List()
		if err != nil {
			errorColor.Fprintf(os.Stderr, "failed to list backups: %v\n", err)
			return 1
		}
		if len(snapshots) == 0 {
			errorColor.Fprintf(os.Stderr, "no backups found in %s\n", cfg.Backup.Path)
			return 1
		}

		fmt.Printf("Available backups (%d found):\n\n", len(snapshots))
		printSnapshots(snapshots)

		choice, err := promptSelection(stdin, len(snapshots))
		if err != nil {
			errorColor.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		if choice < 0 {
			infoColor.Println("Restore cancelled.")
			return 0
		}
		archivePath = snapshots[choice].Path
	}

	fmt.Printf("Selected backup: %s\n\n", archivePath)

	if !assumeYes {
		infoColor.Println("WARNING: this operation will REPLACE the current data directory.")
		fmt.Printf("A safety backup of %s will be taken first.\n\n", cfg.Storage.DBPath)

		if !confirm(stdin) {
			infoColor.Println("Restore cancelled.")
			return 0
		}
		fmt.Println()
	}

	safety, err := restoreArchive(archivePath, cfg.Storage.DBPath, cfg.Backup.Path)
	if err != nil {
		errorColor.Fprintf(os.Stderr, "restore failed: %v\n", err)
		if safety != "" {
			infoColor.Printf("the previous data directory is preserved at %s\n", safety)
		}
		return 1
	}

	// The snapshot inventory changed underneath the manager; drop its cache
	// so any follow-up listing reflects the directory again.
	manager.InvalidateCache()

	okColor.Println("Restore completed successfully.")
	fmt.Printf("Safety backup: %s\n", safety)
	fmt.Println("Run engram-restore --reconcile to check the restored stores for drift.")
	return 0
}

// restoreArchive verifies the archive, snapshots the current data directory
// to a safety backup, and replaces the data directory with the archive's
// contents. The safety backup path is returned even when a later step fails
// so the caller can point at it.
func restoreArchive(archivePath, dataDir, backupDir string) (string, error) {
	if _, err := os.Stat(archivePath); err != nil {
		return "", fmt.Errorf("backup file not found: %s", archivePath)
	}
	if err := backup.Verify(archivePath); err != nil {
		return "", fmt.Errorf("archive failed verification: %w", err)
	}

	var safety string
	if _, err := os.Stat(dataDir); err == nil {
		if err := os.MkdirAll(backupDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create backup directory: %w", err)
		}
		// The safety_backup_ prefix keeps these out of the scheduled
		// snapshot inventory, so retention never deletes them.
		name := "safety_backup_" + time.Now().UTC().Format("2006-01-02_15-04-05") + ".zip"
		safety = filepath.Join(backupDir, name)
		if err := backup.Archive(dataDir, safety); err != nil {
			return "", fmt.Errorf("failed to create safety backup: %w", err)
		}
	}

	if err := os.RemoveAll(dataDir); err != nil {
		return safety, fmt.Errorf("failed to remove current data directory: %w", err)
	}
	if err := backup.Extract(archivePath, dataDir); err != nil {
		return safety, fmt.Errorf("failed to extract archive: %w", err)
	}
	return safety, nil
}

// runReconcile opens the configured stores and reports (or repairs) drift.
func runReconcile(cfg *config.Config, repair bool) int {
	ctx := context.Background()

	eng, err := openEngine(ctx, cfg)
	if err != nil {
		errorColor.Fprintf(os.Stderr, "failed to open stores: %v\n", err)
		return 1
	}
	defer eng.Close()

	drift, err := eng.Reconcile(ctx, repair)
	if err != nil {
		errorColor.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
		return 1
	}

	if drift.Clean() {
		okColor.Println("Stores are consistent: no drift found.")
		return 0
	}

	headerColor.Println("Drift report")
	printDrift("memories missing from the vector index", drift.MissingMemoryVectors)
	printDrift("orphan memory embeddings", drift.OrphanMemoryVectors)
	printDrift("summaries missing from the vector index", drift.MissingSummaryVectors)
	printDrift("orphan summary embeddings", drift.OrphanSummaryVectors)

	if repair {
		okColor.Println("\nRepair applied: missing mirrors re-embedded, orphans removed.")
		return 0
	}
	infoColor.Println("\nRun with --reconcile --repair to fix.")
	return 1
}

// openEngine builds an engine over the configured stores with no summarizer
// and no backup schedule; reconcile needs neither.
func openEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, error) {
	embedder := llm.EmbeddingGenerator(llm.NewLocalEmbedder())
	if cfg.Embeddings.Provider == config.EmbeddingsOpenRouter {
		embedder = llm.NewOpenRouterEmbeddingClient(llm.OpenRouterEmbeddingConfig{
			APIKey:     cfg.Summarizer.APIKey,
			Model:      cfg.Embeddings.Model,
			BaseURL:    cfg.Summarizer.Endpoint,
			Dimensions: cfg.Embeddings.Dimensions,
		})
	}

	if cfg.Storage.Engine == config.EnginePostgres {
		store, err := postgres.New(cfg.Storage.DatabaseURL, embedder)
		if err != nil {
			return nil, err
		}
		return engine.New(store, store.Vectors(), nil, nil, cfg)
	}

	relational, err := sqlite.New(cfg.SQLitePath())
	if err != nil {
		return nil, err
	}
	vectors, err := vector.New(ctx, cfg.VectorPath(), embedder)
	if err != nil {
		_ = relational.Close()
		return nil, err
	}
	return engine.New(relational, vectors, nil, nil, cfg)
}

func newManager(cfg *config.Config) (*backup.Manager, error) {
	return backup.NewManager(backup.Options{
		DataDir:   cfg.Storage.DBPath,
		BackupDir: cfg.Backup.Path,
		Enabled:   false, // this tool never schedules snapshots
	})
}

func printSnapshots(snapshots []backup.Snapshot) {
	for i, snap := range snapshots {
		fmt.Printf("  [%d] %s\n", i+1, snap.Name)
		fmt.Printf("      created: %s   size: %.1f MB\n", snap.Timestamp.Format("2006-01-02 15:04:05"), float64(snap.Size)/(1024*1024))
	}
	fmt.Println()
}

func printDrift(label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Printf("  %s: %d\n", label, len(ids))
	for _, id := range ids {
		fmt.Printf("    %s\n", id)
	}
}

// promptSelection reads a 1-based snapshot choice. It returns -1 when the
// user quits.
func promptSelection(in *bufio.Reader, count int) (int, error) {
	fmt.Printf("Select backup to restore [1-%d] or 'q' to quit: ", count)

	line, err := in.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("failed to read selection: %w", err)
	}
	return parseSelection(line, count)
}

// parseSelection validates a selection string against the inventory size.
func parseSelection(line string, count int) (int, error) {
	choice := strings.TrimSpace(strings.ToLower(line))
	if choice == "q" {
		return -1, nil
	}
	n, err := strconv.Atoi(choice)
	if err != nil || n < 1 || n > count {
		return 0, fmt.Errorf("invalid selection %q", strings.TrimSpace(line))
	}
	return n - 1, nil
}

// confirm requires the literal answer "yes".
func confirm(in *bufio.Reader) bool {
	fmt.Print("Type 'yes' to proceed with restore: ")
	line, err := in.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(strings.ToLower(line)) == "yes"
}
