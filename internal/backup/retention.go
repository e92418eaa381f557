package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Snapshot describes one archive in the backup directory.
type Snapshot struct {
	// Path is the full path to the archive.
	Path string

	// Name is the file name, memory_backup_YYYY-MM-DD_HH-MM-SS.zip.
	Name string

	// Timestamp is the creation time parsed from the name (UTC).
	Timestamp time.Time

	// Size is the archive size in bytes.
	Size int64
}

// listSnapshots returns the snapshots in dir, newest first. Files that do
// not match the snapshot naming pattern are ignored.
func listSnapshots(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := parseSnapshotName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // Skip files we can't stat
		}
		snapshots = append(snapshots, Snapshot{
			Path:      filepath.Join(dir, entry.Name()),
			Name:      entry.Name(),
			Timestamp: ts,
			Size:      info.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// parseSnapshotName extracts the timestamp from a snapshot file name.
func parseSnapshotName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
	ts, err := time.Parse(timestampLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// applyRetention deletes the oldest snapshots so that at most keep remain.
// Files that do not look like snapshots are never touched.
func applyRetention(dir string, keep int) error {
	snapshots, err := listSnapshots(dir)
	if err != nil {
		return err
	}
	if keep < 1 || len(snapshots) <= keep {
		return nil
	}

	var lastErr error
	for _, snap := range snapshots[keep:] {
		if err := os.Remove(snap.Path); err != nil {
			lastErr = err
			// Continue deleting other snapshots even if one fails
		}
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete some snapshots: %w", lastErr)
	}
	return nil
}
