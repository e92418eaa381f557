package backup

import (
	"archive/zip"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// relationalFile is the name of the relational database inside a snapshot.
const relationalFile = "memory.sqlite"

// Archive writes a zip of srcDir's whole tree to destZip. Member names are
// slash-separated paths relative to srcDir. destZip itself is skipped when
// it happens to live inside srcDir.
func Archive(srcDir, destZip string) error {
	out, err := os.Create(destZip)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	zw := zip.NewWriter(out)
	destClean := filepath.Clean(destZip)

	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Clean(path) == destClean {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, src)
		src.Close()
		return err
	})
	if err != nil {
		zw.Close()
		out.Close()
		return fmt.Errorf("failed to archive %s: %w", srcDir, err)
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return nil
}

// Extract unpacks an archive into destDir, creating it if needed. Member
// paths are validated so a crafted archive cannot write outside destDir.
func Extract(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	base := filepath.Clean(destDir)

	for _, f := range r.File {
		target := filepath.Join(base, filepath.FromSlash(f.Name))
		if target != base && !strings.HasPrefix(target, base+string(os.PathSeparator)) {
			return fmt.Errorf("archive member %q escapes the destination directory", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
		}
		if err := extractMember(f, target, f.Mode()); err != nil {
			return err
		}
	}
	return nil
}

// Verify opens the archive and integrity-checks the relational database
// inside it, when one is present. Archives without an embedded database
// (postgres deployments) pass trivially.
func Verify(archivePath string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	var main *zip.File
	for _, f := range r.File {
		if f.Name == relationalFile || strings.HasSuffix(f.Name, "/"+relationalFile) {
			main = f
			break
		}
	}
	if main == nil {
		return nil
	}

	tmpDir, err := os.MkdirTemp("", "engram-verify-")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, relationalFile)
	if err := extractMember(main, dbPath, 0600); err != nil {
		return err
	}
	// WAL sidecars must sit next to the copy so the check sees pages that
	// were not yet checkpointed when the snapshot was taken.
	for _, f := range r.File {
		switch f.Name {
		case main.Name + "-wal":
			if err := extractMember(f, dbPath+"-wal", 0600); err != nil {
				return err
			}
		case main.Name + "-shm":
			if err := extractMember(f, dbPath+"-shm", 0600); err != nil {
				return err
			}
		}
	}
	return checkIntegrity(dbPath)
}

// checkIntegrity runs PRAGMA integrity_check against a database copy.
func checkIntegrity(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database copy: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// extractMember copies a single archive member to dest.
func extractMember(f *zip.File, dest string, mode os.FileMode) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive member %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}
