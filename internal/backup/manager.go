// Package backup creates zip snapshots of the data directory, prunes old
// archives by count, and verifies the relational database inside each new
// snapshot.
package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const (
	snapshotPrefix = "memory_backup_"
	snapshotSuffix = ".zip"

	// timestampLayout shapes names like memory_backup_2025-03-01_10-30-00.zip.
	timestampLayout = "2006-01-02_15-04-05"
)

// Options configures a Manager.
type Options struct {
	// DataDir is the directory the snapshots capture.
	DataDir string

	// BackupDir is where archives are written.
	BackupDir string

	// Interval is the minimum time between scheduled snapshots (default: 24h).
	Interval time.Duration

	// Keep is how many archives retention preserves (default: 10).
	Keep int

	// Enabled turns scheduled snapshots on. CreateNow ignores it.
	Enabled bool
}

// Manager takes time-gated snapshots of the data directory. Any number of
// writers may call Tick concurrently; at most one snapshot per interval is
// produced.
type Manager struct {
	dataDir  string
	dir      string
	interval time.Duration
	keep     int
	enabled  bool

	mu     sync.Mutex   // serializes snapshot creation and cache priming
	primed bool         // cache reflects the backup directory; guarded by mu
	last   atomic.Int64 // unix seconds of the newest snapshot, 0 when none known
}

// NewManager validates the options, creates the backup directory, and
// returns a manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if opts.BackupDir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	if opts.Keep <= 0 {
		opts.Keep = 10
	}

	if err := os.MkdirAll(opts.BackupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &Manager{
		dataDir:  opts.DataDir,
		dir:      opts.BackupDir,
		interval: opts.Interval,
		keep:     opts.Keep,
		enabled:  opts.Enabled,
	}, nil
}

// Tick creates a snapshot when the interval has elapsed since the newest
// one (or none exists yet). The fast path consults the cached timestamp
// without locking; the slow path re-checks under the mutex so concurrent
// callers produce at most one snapshot. Failures are logged and never
// propagate to the calling operation.
func (m *Manager) Tick(ctx context.Context) {
	if !m.enabled {
		return
	}

	if last := m.last.Load(); last > 0 && time.Since(time.Unix(last, 0)) < m.interval {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.primeCacheLocked(); err != nil {
		log.Printf("backup: failed to read backup directory: %v", err)
		return
	}
	if last := m.last.Load(); last > 0 && time.Since(time.Unix(last, 0)) < m.interval {
		return
	}

	if _, err := m.createLocked(ctx); err != nil {
		log.Printf("backup: scheduled snapshot failed: %v", err)
	}
}

// CreateNow takes a snapshot immediately, regardless of the interval gate
// and the Enabled option.
func (m *Manager) CreateNow(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(ctx)
}

// List returns the snapshots in the backup directory, newest first.
func (m *Manager) List() ([]Snapshot, error) {
	return listSnapshots(m.dir)
}

// LastTimestamp returns the newest snapshot's timestamp, or the zero time
// when no snapshot exists.
func (m *Manager) LastTimestamp() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.primeCacheLocked(); err != nil {
		return time.Time{}, err
	}
	if last := m.last.Load(); last > 0 {
		return time.Unix(last, 0).UTC(), nil
	}
	return time.Time{}, nil
}

// InvalidateCache forces the next Tick or LastTimestamp to re-read the
// backup directory. Call it after the directory changes behind the
// manager's back (a restore, manual deletion).
func (m *Manager) InvalidateCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primed = false
	m.last.Store(0)
}

// primeCacheLocked loads the newest snapshot timestamp from the directory.
// Timestamps come from filenames, not modification times, so copied or
// restored archives keep their original age. Callers must hold mu.
func (m *Manager) primeCacheLocked() error {
	if m.primed {
		return nil
	}
	snapshots, err := listSnapshots(m.dir)
	if err != nil {
		return err
	}
	if len(snapshots) > 0 {
		m.last.Store(snapshots[0].Timestamp.Unix())
	} else {
		m.last.Store(0)
	}
	m.primed = true
	return nil
}

// createLocked archives the data directory, verifies the result, updates
// the cache, and applies retention. Callers must hold mu.
func (m *Manager) createLocked(ctx context.Context) (*Snapshot, error) {
	if _, err := os.Stat(m.dataDir); err != nil {
		return nil, fmt.Errorf("data directory is not readable: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	name := snapshotPrefix + now.Format(timestampLayout) + snapshotSuffix
	path := filepath.Join(m.dir, name)

	if err := Archive(m.dataDir, path); err != nil {
		os.Remove(path)
		return nil, err
	}
	if err := Verify(path); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("snapshot failed verification: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	m.last.Store(now.Unix())
	m.primed = true

	if err := applyRetention(m.dir, m.keep); err != nil {
		// Retention errors do not fail the snapshot.
		log.Printf("backup: failed to apply retention: %v", err)
	}

	log.Printf("backup: snapshot created: %s (%d bytes)", name, info.Size())
	return &Snapshot{Path: path, Name: name, Timestamp: now, Size: info.Size()}, nil
}
