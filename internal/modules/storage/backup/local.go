// Package backup creates local ZIP snapshots of the content root. With plain
// files as the source of truth, a snapshot of the tree is a full backup.
package backup

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const filenamePrefix = "backup-"

// CreateLocalBackup zips the content root into backupsDir and returns the
// written file path.
func CreateLocalBackup(contentDir, backupsDir string, now time.Time) (string, error) {
	buf, err := createBackupZip(contentDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(backupsDir, 0o755); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%s%s.zip", filenamePrefix, now.Format("2006-01-02T15-04-05"))
	filePath := filepath.Join(backupsDir, filename)
	if err := os.WriteFile(filePath, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return filePath, nil
}

// Prune removes the oldest snapshots beyond keep. keep <= 0 disables pruning.
func Prune(backupsDir string, keep int) error {
	if keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(backupsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filenamePrefix) || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) <= keep {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(backupsDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func createBackupZip(contentDir string) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)

	err := filepath.Walk(contentDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(contentDir, path)
		if err != nil {
			return err
		}
		f, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(f, src)
		src.Close()
		return copyErr
	})
	if err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}
