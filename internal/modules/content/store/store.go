// Package store is the file-backed document store. Each post lives in its own
// storage folder under posts/, holding exactly one metadata record, one body
// record, and an optional assets directory. Plain files are the source of
// truth; there is no database behind this package.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plumekit/core/internal/models"
	"github.com/plumekit/core/internal/modules/processing/markdown"
	"github.com/plumekit/core/internal/pkg/cmserr"
	"github.com/plumekit/core/internal/pkg/fsutil"
)

const (
	MetaFilename  = "meta.json"
	BodyFilename  = "content.md"
	AssetsDirname = "assets"
)

// Store reads and writes post documents under a content root.
type Store struct {
	postsDir    string
	mediaPrefix string
	logger      *zap.Logger
}

// New creates a Store rooted at postsDir. mediaPrefix is the public URL
// prefix under which the content root is served.
func New(postsDir, mediaPrefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		postsDir:    postsDir,
		mediaPrefix: strings.TrimRight(mediaPrefix, "/"),
		logger:      logger.Named("ContentStore"),
	}
}

func (s *Store) folderPath(folder string) string {
	return filepath.Join(s.postsDir, folder)
}

// FolderExists reports whether the storage folder exists on disk.
func (s *Store) FolderExists(folder string) bool {
	info, err := os.Stat(s.folderPath(folder))
	return err == nil && info.IsDir()
}

// ListFolders returns every storage folder name, sorted. A missing posts/
// directory yields an empty list.
func (s *Store) ListFolders() ([]string, error) {
	entries, err := os.ReadDir(s.postsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list post folders: %w", err)
	}

	folders := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, e.Name())
		}
	}
	sort.Strings(folders)
	return folders, nil
}

// ReadMeta reads and decodes a folder's metadata record. A missing folder or
// record is ErrNotFound; a record that fails to parse is a CorruptError.
func (s *Store) ReadMeta(folder string) (*models.PostMeta, error) {
	metaPath := filepath.Join(s.folderPath(folder), MetaFilename)
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cmserr.ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", metaPath, err)
	}

	var meta models.PostMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, &cmserr.CorruptError{Path: metaPath, Err: err}
	}
	if !meta.Status.Valid() {
		return nil, &cmserr.CorruptError{Path: metaPath, Err: fmt.Errorf("unknown status %q", meta.Status)}
	}
	return &meta, nil
}

// WriteMeta persists a folder's metadata record atomically.
func (s *Store) WriteMeta(folder string, meta *models.PostMeta) error {
	meta.Modified = meta.Modified.UTC()
	meta.Published = meta.Published.UTC()
	return fsutil.WriteJSONAtomic(filepath.Join(s.folderPath(folder), MetaFilename), meta)
}

// ReadBody returns the raw markdown body. A missing record in an existing
// folder is a CorruptError, since a storage folder always holds both records.
func (s *Store) ReadBody(folder string) (string, error) {
	bodyPath := filepath.Join(s.folderPath(folder), BodyFilename)
	data, err := os.ReadFile(bodyPath)
	if err != nil {
		if os.IsNotExist(err) {
			if !s.FolderExists(folder) {
				return "", cmserr.ErrNotFound
			}
			return "", &cmserr.CorruptError{Path: bodyPath, Err: err}
		}
		return "", fmt.Errorf("read %s: %w", bodyPath, err)
	}
	return string(data), nil
}

// WriteBody persists the raw markdown body atomically.
func (s *Store) WriteBody(folder, text string) error {
	return fsutil.WriteFileAtomic(
		filepath.Join(s.folderPath(folder), BodyFilename),
		[]byte(text),
		fsutil.DefaultFilePerm,
	)
}

// ReadDocument assembles one post: metadata, raw body, rendered and sanitized
// HTML, and the derived asset URL list. Both records must exist and parse.
func (s *Store) ReadDocument(folder string) (*models.Post, error) {
	if !s.FolderExists(folder) {
		return nil, cmserr.ErrNotFound
	}

	meta, err := s.ReadMeta(folder)
	if err != nil {
		if err == cmserr.ErrNotFound {
			metaPath := filepath.Join(s.folderPath(folder), MetaFilename)
			return nil, &cmserr.CorruptError{Path: metaPath, Err: os.ErrNotExist}
		}
		return nil, err
	}

	body, err := s.ReadBody(folder)
	if err != nil {
		return nil, err
	}

	return &models.Post{
		PostMeta: *meta,
		Folder:   folder,
		Text:     body,
		HTML:     markdown.Render(body),
		Assets:   s.ListAssets(folder),
	}, nil
}

// ListAssets lists the files in the folder's assets directory as public media
// URLs. The list is always recomputed from disk and never persisted.
func (s *Store) ListAssets(folder string) []string {
	assetsDir := filepath.Join(s.folderPath(folder), AssetsDirname)
	entries, err := os.ReadDir(assetsDir)
	if err != nil {
		return nil
	}

	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		urls = append(urls, path.Join(s.mediaPrefix, "posts", folder, AssetsDirname, e.Name()))
	}
	sort.Strings(urls)
	return urls
}

// CreateFolder makes the storage folder for a new post.
func (s *Store) CreateFolder(folder string) error {
	return os.MkdirAll(s.folderPath(folder), fsutil.DefaultDirPerm)
}

// RemoveFolder deletes the storage folder recursively, assets included.
func (s *Store) RemoveFolder(folder string) error {
	return os.RemoveAll(s.folderPath(folder))
}

// FolderName builds the conventional storage folder name for a new post.
// Folder names and slugs may diverge later; only the route index maps one to
// the other.
func FolderName(createdAt time.Time, slug string) string {
	return createdAt.UTC().Format("2006-01-02") + "-" + slug
}
