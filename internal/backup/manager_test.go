package backup

import (
	"archive/zip"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// writeDataDir builds a small data directory with a valid relational
// database and a nested vector file, mirroring the layout snapshots cover.
func writeDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	db, err := sql.Open("sqlite", filepath.Join(dir, "memory.sqlite"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT); INSERT INTO notes (body) VALUES ('hello')"); err != nil {
		t.Fatalf("failed to seed database: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "chroma"), 0755); err != nil {
		t.Fatalf("failed to create vector dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "chroma", "vectors.db"), []byte("vector index bytes"), 0644); err != nil {
		t.Fatalf("failed to write vector file: %v", err)
	}
	return dir
}

// newTestManager creates an enabled manager over a fresh backup directory.
func newTestManager(t *testing.T, dataDir string, interval time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		DataDir:   dataDir,
		BackupDir: t.TempDir(),
		Interval:  interval,
		Keep:      10,
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

// TestNewManagerValidation tests that required options are enforced.
func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Options{BackupDir: t.TempDir()}); err == nil {
		t.Error("expected error for missing data directory")
	}
	if _, err := NewManager(Options{DataDir: t.TempDir()}); err == nil {
		t.Error("expected error for missing backup directory")
	}
}

// TestCreateNowRoundTrip tests that a snapshot archives the whole data
// directory and extracts back to the same content.
func TestCreateNowRoundTrip(t *testing.T) {
	dataDir := writeDataDir(t)
	m := newTestManager(t, dataDir, time.Hour)

	snap, err := m.CreateNow(context.Background())
	if err != nil {
		t.Fatalf("CreateNow: %v", err)
	}
	if snap.Size <= 0 {
		t.Errorf("expected positive snapshot size, got %d", snap.Size)
	}
	if _, ok := parseSnapshotName(snap.Name); !ok {
		t.Errorf("snapshot name %q does not match the naming pattern", snap.Name)
	}

	snapshots, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}

	restored := t.TempDir()
	if err := Extract(snap.Path, restored); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(restored, "memory.sqlite")); err != nil {
		t.Errorf("restored tree missing relational file: %v", err)
	}
	vec, err := os.ReadFile(filepath.Join(restored, "chroma", "vectors.db"))
	if err != nil {
		t.Fatalf("restored tree missing vector file: %v", err)
	}
	if string(vec) != "vector index bytes" {
		t.Errorf("vector file content changed across the round trip: %q", vec)
	}
}

// TestTickCreatesFirstSnapshot tests that Tick snapshots when none exists.
func TestTickCreatesFirstSnapshot(t *testing.T) {
	m := newTestManager(t, writeDataDir(t), time.Hour)

	m.Tick(context.Background())

	snapshots, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snapshots) != 1 {
		t.Errorf("expected 1 snapshot, got %d", len(snapshots))
	}
}

// TestTickSkipsInsideInterval tests that a fresh snapshot suppresses the
// next tick.
func TestTickSkipsInsideInterval(t *testing.T) {
	m := newTestManager(t, writeDataDir(t), time.Hour)

	if _, err := m.CreateNow(context.Background()); err != nil {
		t.Fatalf("CreateNow: %v", err)
	}
	m.Tick(context.Background())

	snapshots, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snapshots) != 1 {
		t.Errorf("expected 1 snapshot, got %d", len(snapshots))
	}
}

// TestTickCreatesAfterIntervalElapsed tests that the gate reopens once the
// newest snapshot (by filename timestamp) is older than the interval.
func TestTickCreatesAfterIntervalElapsed(t *testing.T) {
	m := newTestManager(t, writeDataDir(t), time.Hour)

	old := filepath.Join(m.dir, "memory_backup_2025-01-01_00-00-00.zip")
	if err := os.WriteFile(old, []byte("old archive"), 0644); err != nil {
		t.Fatalf("failed to seed old snapshot: %v", err)
	}

	m.Tick(context.Background())

	snapshots, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[1].Name != "memory_backup_2025-01-01_00-00-00.zip" {
		t.Errorf("expected the seeded snapshot to sort oldest, got %s", snapshots[1].Name)
	}
}

// TestTickDisabled tests that a disabled manager never snapshots.
func TestTickDisabled(t *testing.T) {
	m, err := NewManager(Options{
		DataDir:   writeDataDir(t),
		BackupDir: t.TempDir(),
		Interval:  time.Hour,
		Enabled:   false,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	m.Tick(context.Background())

	snapshots, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("expected no snapshots, got %d", len(snapshots))
	}
}

// TestTickConcurrentSingleSnapshot tests that simultaneous ticks produce
// exactly one snapshot.
func TestTickConcurrentSingleSnapshot(t *testing.T) {
	m := newTestManager(t, writeDataDir(t), time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Tick(context.Background())
		}()
	}
	wg.Wait()

	snapshots, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snapshots) != 1 {
		t.Errorf("expected exactly 1 snapshot, got %d", len(snapshots))
	}
}

// TestLastTimestampFromFilenames tests that the cache is primed by parsing
// names rather than file modification times.
func TestLastTimestampFromFilenames(t *testing.T) {
	m := newTestManager(t, writeDataDir(t), time.Hour)

	seeded := filepath.Join(m.dir, "memory_backup_2025-03-01_10-30-00.zip")
	if err := os.WriteFile(seeded, []byte("archive"), 0644); err != nil {
		t.Fatalf("failed to seed snapshot: %v", err)
	}

	got, err := m.LastTimestamp()
	if err != nil {
		t.Fatalf("LastTimestamp: %v", err)
	}
	want := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// TestInvalidateCache tests that invalidation forces a directory re-read.
func TestInvalidateCache(t *testing.T) {
	m := newTestManager(t, writeDataDir(t), time.Hour)

	snap, err := m.CreateNow(context.Background())
	if err != nil {
		t.Fatalf("CreateNow: %v", err)
	}

	// Remove the archive behind the manager's back: the cache still holds
	// the old timestamp until invalidated.
	if err := os.Remove(snap.Path); err != nil {
		t.Fatalf("failed to remove snapshot: %v", err)
	}
	got, err := m.LastTimestamp()
	if err != nil {
		t.Fatalf("LastTimestamp: %v", err)
	}
	if got.IsZero() {
		t.Error("expected the stale cached timestamp before invalidation")
	}

	m.InvalidateCache()
	got, err = m.LastTimestamp()
	if err != nil {
		t.Fatalf("LastTimestamp after invalidation: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("expected zero timestamp after invalidation, got %v", got)
	}
}

// TestApplyRetentionKeepsNewest tests that retention prunes to the newest
// N snapshots and never touches foreign files.
func TestApplyRetentionKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"memory_backup_2025-03-01_10-00-00.zip",
		"memory_backup_2025-03-01_10-00-01.zip",
		"memory_backup_2025-03-01_10-00-02.zip",
		"memory_backup_2025-03-01_10-00-03.zip",
		"memory_backup_2025-03-01_10-00-04.zip",
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("archive"), 0644); err != nil {
			t.Fatalf("failed to seed snapshot: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep me"), 0644); err != nil {
		t.Fatalf("failed to seed foreign file: %v", err)
	}

	if err := applyRetention(dir, 3); err != nil {
		t.Fatalf("applyRetention: %v", err)
	}

	snapshots, err := listSnapshots(dir)
	if err != nil {
		t.Fatalf("listSnapshots: %v", err)
	}
	if len(snapshots) != 3 {
		t.Fatalf("expected 3 snapshots after retention, got %d", len(snapshots))
	}
	if snapshots[0].Name != names[4] || snapshots[2].Name != names[2] {
		t.Errorf("retention kept the wrong snapshots: %v", snapshots)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Errorf("retention removed a foreign file: %v", err)
	}
}

// TestListIgnoresForeignFiles tests that listing only reports files that
// match the snapshot naming pattern.
func TestListIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"memory_backup_2025-03-01_10-00-00.zip",
		"backup.zip",
		"memory_backup_not-a-timestamp.zip",
		"readme.txt",
	}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	snapshots, err := listSnapshots(dir)
	if err != nil {
		t.Fatalf("listSnapshots: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}
	if snapshots[0].Name != files[0] {
		t.Errorf("expected %s, got %s", files[0], snapshots[0].Name)
	}
}

// TestVerifyCatchesCorruptDatabase tests that a snapshot whose relational
// file is not a valid database is rejected and removed.
func TestVerifyCatchesCorruptDatabase(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "memory.sqlite"), []byte("not a database"), 0644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	m := newTestManager(t, dataDir, time.Hour)
	if _, err := m.CreateNow(context.Background()); err == nil {
		t.Fatal("expected verification error for corrupt database")
	}

	snapshots, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("expected the failed snapshot to be removed, found %d", len(snapshots))
	}
}

// TestVerifyWithoutDatabasePasses tests that archives with no embedded
// database verify trivially.
func TestVerifyWithoutDatabasePasses(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "state.txt"), []byte("plain"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	m := newTestManager(t, dataDir, time.Hour)
	if _, err := m.CreateNow(context.Background()); err != nil {
		t.Fatalf("CreateNow: %v", err)
	}
}

// TestExtractRejectsZipSlip tests that a crafted member path cannot escape
// the destination directory.
func TestExtractRejectsZipSlip(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "evil.zip")
	out, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	zw := zip.NewWriter(out)
	w, err := zw.Create("../evil.txt")
	if err != nil {
		t.Fatalf("failed to add member: %v", err)
	}
	if _, err := w.Write([]byte("escape")); err != nil {
		t.Fatalf("failed to write member: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finalize archive: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("failed to close archive: %v", err)
	}

	dest := t.TempDir()
	if err := Extract(archivePath, dest); err == nil {
		t.Fatal("expected error for member escaping the destination")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dest), "evil.txt")); !os.IsNotExist(err) {
		t.Errorf("escaped file was written: %v", err)
	}
}
