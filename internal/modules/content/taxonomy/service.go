// Package taxonomy manages the flat per-tag and per-category document stores
// and propagates renames and deletions into every post that references them.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plumekit/core/internal/models"
	"github.com/plumekit/core/internal/modules/content/store"
	"github.com/plumekit/core/internal/pkg/cmserr"
	"github.com/plumekit/core/internal/pkg/fsutil"
	"github.com/plumekit/core/internal/pkg/keymutex"
	"github.com/plumekit/core/internal/pkg/slugify"
)

// cascadeConcurrency bounds the number of posts rewritten in parallel during
// a rename or delete cascade.
const cascadeConcurrency = 4

type CreateTagDTO struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type UpdateTagDTO struct {
	Name *string `json:"name"`
	Slug *string `json:"slug"`
}

type CreateCategoryDTO struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type UpdateCategoryDTO struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
}

// Service handles tag and category business logic.
type Service struct {
	tagsDir       string
	categoriesDir string
	docs          *store.Store
	locks         *keymutex.KeyMutex
	logger        *zap.Logger
}

// NewService creates the taxonomy service. locks must be the same per-slug
// lock set the post service uses, so cascades serialize against post writes.
func NewService(tagsDir, categoriesDir string, docs *store.Store, locks *keymutex.KeyMutex, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tagsDir:       tagsDir,
		categoriesDir: categoriesDir,
		docs:          docs,
		locks:         locks,
		logger:        logger.Named("TaxonomyService"),
	}
}

func (s *Service) dirFor(kind models.TaxonomyKind) string {
	if kind == models.KindCategory {
		return s.categoriesDir
	}
	return s.tagsDir
}

func (s *Service) docPath(kind models.TaxonomyKind, slug string) string {
	return filepath.Join(s.dirFor(kind), slug+".json")
}

// Exists reports whether a taxonomy document with the given slug exists.
func (s *Service) Exists(kind models.TaxonomyKind, slug string) bool {
	info, err := os.Stat(s.docPath(kind, slug))
	return err == nil && !info.IsDir()
}

// --- tags ---

func (s *Service) GetTag(slug string) (*models.Tag, error) {
	var tag models.Tag
	if err := s.readDoc(models.KindTag, slug, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (s *Service) ListTags() ([]models.Tag, error) {
	slugs, err := s.listSlugs(models.KindTag)
	if err != nil {
		return nil, err
	}
	tags := make([]models.Tag, 0, len(slugs))
	for _, slug := range slugs {
		var tag models.Tag
		if err := s.readDoc(models.KindTag, slug, &tag); err != nil {
			s.logger.Warn("skipping unreadable tag document",
				zap.String("slug", slug), zap.Error(err))
			continue
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (s *Service) AddTag(dto *CreateTagDTO) (*models.Tag, error) {
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		return nil, cmserr.Validationf("name", "required")
	}
	slug := strings.TrimSpace(dto.Slug)
	if slug == "" {
		slug = slugify.ToSlug(name)
	}
	if s.Exists(models.KindTag, slug) {
		return nil, cmserr.Validationf("slug", "tag %q already exists", slug)
	}

	tag := models.Tag{Name: name, Slug: slug}
	if err := fsutil.WriteJSONAtomic(s.docPath(models.KindTag, slug), &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

// EditTag patches a tag. A slug change cascades into every referencing post
// before the old document is removed, so no post ever references a slug with
// no backing record.
func (s *Service) EditTag(ctx context.Context, slug string, dto *UpdateTagDTO) (*models.Tag, error) {
	tag, err := s.GetTag(slug)
	if err != nil {
		return nil, err
	}

	if dto.Name != nil && strings.TrimSpace(*dto.Name) != "" {
		tag.Name = strings.TrimSpace(*dto.Name)
	}

	newSlug := tag.Slug
	if dto.Slug != nil && strings.TrimSpace(*dto.Slug) != "" && *dto.Slug != slug {
		newSlug = slugify.ToSlug(*dto.Slug)
		if s.Exists(models.KindTag, newSlug) {
			return nil, cmserr.Validationf("slug", "tag %q already exists", newSlug)
		}
	}
	tag.Slug = newSlug

	if err := fsutil.WriteJSONAtomic(s.docPath(models.KindTag, newSlug), tag); err != nil {
		return nil, err
	}
	if newSlug != slug {
		if err := s.updateReferences(ctx, models.KindTag, slug, newSlug, false); err != nil {
			return nil, err
		}
		if err := os.Remove(s.docPath(models.KindTag, slug)); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return tag, nil
}

// DeleteTag removes the tag document after stripping the slug from every
// referencing post.
func (s *Service) DeleteTag(ctx context.Context, slug string) error {
	if !s.Exists(models.KindTag, slug) {
		return cmserr.ErrNotFound
	}
	if err := s.updateReferences(ctx, models.KindTag, slug, "", true); err != nil {
		return err
	}
	return os.Remove(s.docPath(models.KindTag, slug))
}

// --- categories ---

func (s *Service) GetCategory(slug string) (*models.Category, error) {
	var cat models.Category
	if err := s.readDoc(models.KindCategory, slug, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (s *Service) ListCategories() ([]models.Category, error) {
	slugs, err := s.listSlugs(models.KindCategory)
	if err != nil {
		return nil, err
	}
	cats := make([]models.Category, 0, len(slugs))
	for _, slug := range slugs {
		var cat models.Category
		if err := s.readDoc(models.KindCategory, slug, &cat); err != nil {
			s.logger.Warn("skipping unreadable category document",
				zap.String("slug", slug), zap.Error(err))
			continue
		}
		cats = append(cats, cat)
	}
	return cats, nil
}

func (s *Service) AddCategory(dto *CreateCategoryDTO) (*models.Category, error) {
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		return nil, cmserr.Validationf("name", "required")
	}
	slug := strings.TrimSpace(dto.Slug)
	if slug == "" {
		slug = slugify.ToSlug(name)
	}
	if s.Exists(models.KindCategory, slug) {
		return nil, cmserr.Validationf("slug", "category %q already exists", slug)
	}

	cat := models.Category{Name: name, Slug: slug, Description: strings.TrimSpace(dto.Description)}
	if err := fsutil.WriteJSONAtomic(s.docPath(models.KindCategory, slug), &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (s *Service) EditCategory(ctx context.Context, slug string, dto *UpdateCategoryDTO) (*models.Category, error) {
	cat, err := s.GetCategory(slug)
	if err != nil {
		return nil, err
	}

	if dto.Name != nil && strings.TrimSpace(*dto.Name) != "" {
		cat.Name = strings.TrimSpace(*dto.Name)
	}
	if dto.Description != nil {
		cat.Description = strings.TrimSpace(*dto.Description)
	}

	newSlug := cat.Slug
	if dto.Slug != nil && strings.TrimSpace(*dto.Slug) != "" && *dto.Slug != slug {
		newSlug = slugify.ToSlug(*dto.Slug)
		if s.Exists(models.KindCategory, newSlug) {
			return nil, cmserr.Validationf("slug", "category %q already exists", newSlug)
		}
	}
	cat.Slug = newSlug

	if err := fsutil.WriteJSONAtomic(s.docPath(models.KindCategory, newSlug), cat); err != nil {
		return nil, err
	}
	if newSlug != slug {
		if err := s.updateReferences(ctx, models.KindCategory, slug, newSlug, false); err != nil {
			return nil, err
		}
		if err := os.Remove(s.docPath(models.KindCategory, slug)); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return cat, nil
}

func (s *Service) DeleteCategory(ctx context.Context, slug string) error {
	if !s.Exists(models.KindCategory, slug) {
		return cmserr.ErrNotFound
	}
	if err := s.updateReferences(ctx, models.KindCategory, slug, "", true); err != nil {
		return err
	}
	return os.Remove(s.docPath(models.KindCategory, slug))
}

// --- cascade ---

// updateReferences rewrites the metadata of every post referencing oldSlug.
// It runs with bounded concurrency and completes before the triggering
// rename or delete reports success. Posts that fail to parse are skipped and
// logged; if such a post is later repaired by hand it may still carry the old
// slug, an accepted limitation of the scan.
func (s *Service) updateReferences(ctx context.Context, kind models.TaxonomyKind, oldSlug, newSlug string, isDelete bool) error {
	folders, err := s.docs.ListFolders()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cascadeConcurrency)

	for _, folder := range folders {
		folder := folder
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.rewriteOne(folder, kind, oldSlug, newSlug, isDelete); err != nil {
				if cmserr.IsCorrupt(err) || errors.Is(err, cmserr.ErrNotFound) {
					s.logger.Warn("cascade skipping unreadable post",
						zap.String("folder", folder), zap.Error(err))
					return nil
				}
				return fmt.Errorf("cascade %s %s->%s in %s: %w", kind, oldSlug, newSlug, folder, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) rewriteOne(folder string, kind models.TaxonomyKind, oldSlug, newSlug string, isDelete bool) error {
	meta, err := s.docs.ReadMeta(folder)
	if err != nil {
		return err
	}

	s.locks.Lock(meta.Slug)
	defer s.locks.Unlock(meta.Slug)

	// Re-read under the lock so a concurrent edit is not discarded.
	meta, err = s.docs.ReadMeta(folder)
	if err != nil {
		return err
	}

	refs := meta.Tags
	if kind == models.KindCategory {
		refs = meta.Categories
	}

	next, changed := replaceRef(refs, oldSlug, newSlug, isDelete)
	if !changed {
		return nil
	}

	if kind == models.KindCategory {
		meta.Categories = next
	} else {
		meta.Tags = next
	}
	return s.docs.WriteMeta(folder, meta)
}

// replaceRef removes or replaces oldSlug in refs, preserving order and
// avoiding duplicates when the replacement is already present.
func replaceRef(refs []string, oldSlug, newSlug string, isDelete bool) ([]string, bool) {
	changed := false
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		next := ref
		if ref == oldSlug {
			changed = true
			if isDelete {
				continue
			}
			next = newSlug
		}
		if contains(out, next) {
			changed = true
			continue
		}
		out = append(out, next)
	}
	return out, changed
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// --- shared helpers ---

func (s *Service) readDoc(kind models.TaxonomyKind, slug string, v interface{}) error {
	path := s.docPath(kind, slug)
	err := fsutil.ReadJSON(path, v)
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return cmserr.ErrNotFound
	}
	var syntaxErr *os.PathError
	if !errors.As(err, &syntaxErr) {
		return &cmserr.CorruptError{Path: path, Err: err}
	}
	return err
}

func (s *Service) listSlugs(kind models.TaxonomyKind) ([]string, error) {
	entries, err := os.ReadDir(s.dirFor(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	slugs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		slugs = append(slugs, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(slugs)
	return slugs, nil
}
