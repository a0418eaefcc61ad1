// Package post implements the publication state machine over the file-backed
// content store. All slug-addressed operations resolve through the route
// index; no code here synthesizes storage paths from slugs.
package post

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/plumekit/core/internal/models"
	"github.com/plumekit/core/internal/modules/content/store"
	"github.com/plumekit/core/internal/modules/content/taxonomy"
	"github.com/plumekit/core/internal/modules/routes"
	"github.com/plumekit/core/internal/modules/syndication/feed"
	"github.com/plumekit/core/internal/pkg/cmserr"
	"github.com/plumekit/core/internal/pkg/keymutex"
	"github.com/plumekit/core/internal/pkg/slugify"
)

// Service handles post business logic.
type Service struct {
	docs   *store.Store
	index  *routes.Service
	taxo   *taxonomy.Service
	feed   *feed.Service
	locks  *keymutex.KeyMutex
	logger *zap.Logger

	now func() time.Time
}

func NewService(docs *store.Store, index *routes.Service, taxo *taxonomy.Service, feedSvc *feed.Service, locks *keymutex.KeyMutex, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		docs:   docs,
		index:  index,
		taxo:   taxo,
		feed:   feedSvc,
		locks:  locks,
		logger: logger.Named("PostService"),
		now:    time.Now,
	}
}

// Create makes a new draft post with a unique slug and a route entry. Every
// referenced tag and category slug is validated before anything touches disk,
// so an invalid reference never leaves a partial write behind.
func (s *Service) Create(actor string, dto *CreatePostDTO) (*models.Post, error) {
	if dto.Title == "" {
		return nil, cmserr.Validationf("title", "required")
	}
	if err := s.validateRefs(dto.Tags, dto.Categories); err != nil {
		return nil, err
	}

	base := dto.Slug
	if base == "" {
		base = slugify.ToSlug(dto.Title)
	} else {
		base = slugify.ToSlug(base)
	}

	now := s.now().UTC()
	var slug, folder string

	// The uniqueness scan, the document writes, and the index insert run as
	// one critical section under the index writer lock, so two concurrent
	// creations cannot pick the same counter value.
	var writeErr error
	err := s.index.Update(func(entries map[string]string) bool {
		slug = slugify.EnsureUnique(base, func(candidate string) bool {
			_, taken := entries[candidate]
			return taken
		})
		folder = store.FolderName(now, slug)

		meta := &models.PostMeta{
			Title:       dto.Title,
			Description: dto.Description,
			Slug:        slug,
			Modified:    now,
			Status:      models.StatusDraft,
			Tags:        normalizeRefs(dto.Tags),
			Categories:  normalizeRefs(dto.Categories),
			CreatedBy:   actor,
			ModifiedBy:  actor,
		}
		if writeErr = s.docs.CreateFolder(folder); writeErr != nil {
			return false
		}
		if writeErr = s.docs.WriteMeta(folder, meta); writeErr != nil {
			return false
		}
		if writeErr = s.docs.WriteBody(folder, dto.Text); writeErr != nil {
			return false
		}

		entries[slug] = folder
		return true
	})
	if writeErr != nil {
		return nil, writeErr
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("post created",
		zap.String("slug", slug), zap.String("folder", folder), zap.String("by", actor))
	return s.docs.ReadDocument(folder)
}

// Edit patches a post through the normal edit path. Published posts are not
// editable here; they must go through the explicit state-machine operations
// first.
func (s *Service) Edit(actor, slug string, dto *UpdatePostDTO) (*models.Post, error) {
	s.locks.Lock(slug)
	defer s.locks.Unlock(slug)

	folder, meta, err := s.resolveMeta(slug)
	if err != nil {
		return nil, err
	}
	if meta.Status == models.StatusPublished {
		return nil, cmserr.Validationf("status", "published posts cannot be edited; save as draft first")
	}

	// Fail closed: reference validation happens before any field mutation.
	tags := meta.Tags
	if dto.Tags != nil {
		tags = *dto.Tags
	}
	categories := meta.Categories
	if dto.Categories != nil {
		categories = *dto.Categories
	}
	if err := s.validateRefs(tags, categories); err != nil {
		return nil, err
	}

	if dto.Title != nil {
		if *dto.Title == "" {
			return nil, cmserr.Validationf("title", "required")
		}
		meta.Title = *dto.Title
	}
	if dto.Description != nil {
		meta.Description = *dto.Description
	}
	meta.Tags = normalizeRefs(tags)
	meta.Categories = normalizeRefs(categories)
	meta.Modified = s.now().UTC()
	meta.ModifiedBy = actor

	if err := s.docs.WriteMeta(folder, meta); err != nil {
		return nil, err
	}
	if dto.Text != nil {
		if err := s.docs.WriteBody(folder, *dto.Text); err != nil {
			return nil, err
		}
	}
	return s.docs.ReadDocument(folder)
}

// PublishNow transitions a draft or scheduled post to published with the
// current time and regenerates the feed.
func (s *Service) PublishNow(actor, slug string) (*models.Post, error) {
	s.locks.Lock(slug)
	defer s.locks.Unlock(slug)

	folder, meta, err := s.resolveMeta(slug)
	if err != nil {
		return nil, err
	}
	if meta.Status == models.StatusPublished {
		return nil, cmserr.Validationf("status", "post is already published")
	}

	if err := s.applyPublish(folder, meta, s.now().UTC(), actor); err != nil {
		return nil, err
	}
	if err := s.feed.Write(); err != nil {
		return nil, err
	}
	s.logger.Info("post published", zap.String("slug", slug), zap.String("by", actor))
	return s.docs.ReadDocument(folder)
}

// SchedulePublish moves a draft to scheduled, or reschedules an already
// scheduled post. The feed is untouched: the post is not yet public.
func (s *Service) SchedulePublish(actor, slug string, at time.Time) (*models.Post, error) {
	if at.IsZero() {
		return nil, cmserr.Validationf("published", "schedule time is required")
	}

	s.locks.Lock(slug)
	defer s.locks.Unlock(slug)

	folder, meta, err := s.resolveMeta(slug)
	if err != nil {
		return nil, err
	}
	if meta.Status == models.StatusPublished {
		return nil, cmserr.Validationf("status", "published posts cannot be scheduled")
	}

	meta.Status = models.StatusScheduled
	meta.Published = at.UTC()
	meta.Modified = s.now().UTC()
	meta.ModifiedBy = actor
	if err := s.docs.WriteMeta(folder, meta); err != nil {
		return nil, err
	}
	s.logger.Info("post scheduled",
		zap.String("slug", slug), zap.Time("at", at.UTC()), zap.String("by", actor))
	return s.docs.ReadDocument(folder)
}

// SaveAsDraft pulls a published or scheduled post back to draft and
// regenerates the feed so the post disappears from the public view.
func (s *Service) SaveAsDraft(actor, slug string) (*models.Post, error) {
	s.locks.Lock(slug)
	defer s.locks.Unlock(slug)

	folder, meta, err := s.resolveMeta(slug)
	if err != nil {
		return nil, err
	}

	wasPublic := meta.Status == models.StatusPublished
	if meta.Status != models.StatusDraft {
		meta.Status = models.StatusDraft
		meta.Modified = s.now().UTC()
		meta.ModifiedBy = actor
		if err := s.docs.WriteMeta(folder, meta); err != nil {
			return nil, err
		}
	}
	if wasPublic {
		if err := s.feed.Write(); err != nil {
			return nil, err
		}
	}
	return s.docs.ReadDocument(folder)
}

// Delete removes the storage folder, the route entry, and regenerates the
// feed. The folder goes first: a route entry pointing at a missing folder
// already resolves as not-found, so a crash in between heals on read.
func (s *Service) Delete(actor, slug string) error {
	s.locks.Lock(slug)
	defer s.locks.Unlock(slug)

	folder, ok := s.index.Resolve(slug)
	if !ok {
		return cmserr.ErrNotFound
	}
	if err := s.docs.RemoveFolder(folder); err != nil {
		return err
	}
	if err := s.index.Remove(slug); err != nil {
		return err
	}
	if err := s.feed.Write(); err != nil {
		return err
	}
	s.logger.Info("post deleted",
		zap.String("slug", slug), zap.String("folder", folder), zap.String("by", actor))
	return nil
}

// GetBySlug resolves slug through the route index and assembles the
// document. An entry pointing at a missing folder is equivalent to an absent
// entry.
func (s *Service) GetBySlug(slug string, includeUnpublished bool) (*models.Post, error) {
	folder, ok := s.index.Resolve(slug)
	if !ok {
		return nil, cmserr.ErrNotFound
	}
	doc, err := s.docs.ReadDocument(folder)
	if err != nil {
		return nil, err
	}
	if !includeUnpublished && doc.Status != models.StatusPublished {
		return nil, cmserr.ErrNotFound
	}
	return doc, nil
}

// List assembles every indexed post, most recently published first, drafts
// last by modification time. Corrupt entries are logged and skipped so one
// bad document never fails the listing.
func (s *Service) List(includeUnpublished bool) ([]models.Post, error) {
	var posts []models.Post
	for _, slug := range s.index.Slugs() {
		folder, ok := s.index.Resolve(slug)
		if !ok {
			continue
		}
		doc, err := s.docs.ReadDocument(folder)
		if err != nil {
			s.logger.Warn("list skipping unreadable post",
				zap.String("slug", slug), zap.Error(err))
			continue
		}
		if !includeUnpublished && doc.Status != models.StatusPublished {
			continue
		}
		posts = append(posts, *doc)
	}

	sort.Slice(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		at, bt := a.Published, b.Published
		if at.IsZero() {
			at = a.Modified
		}
		if bt.IsZero() {
			bt = b.Modified
		}
		return at.After(bt)
	})
	return posts, nil
}

// ListByAuthor scopes the listing to posts created by username, drafts
// included. Collaborators use this for "my posts" views; the core records
// identities but does not enforce authorization.
func (s *Service) ListByAuthor(username string) ([]models.Post, error) {
	all, err := s.List(true)
	if err != nil {
		return nil, err
	}
	var mine []models.Post
	for _, p := range all {
		if p.CreatedBy == username {
			mine = append(mine, p)
		}
	}
	return mine, nil
}

// PublishDue scans every storage folder and promotes scheduled posts whose
// time has passed, using the same transition as PublishNow. One unreadable
// folder is logged and skipped, never aborting the scan. The promoted posts
// keep their scheduled timestamp as the publish time.
func (s *Service) PublishDue(ctx context.Context, now time.Time) (int, error) {
	folders, err := s.docs.ListFolders()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return promoted, err
		}

		meta, err := s.docs.ReadMeta(folder)
		if err != nil {
			s.logger.Warn("scheduled scan skipping unreadable folder",
				zap.String("folder", folder), zap.Error(err))
			continue
		}
		if meta.Status != models.StatusScheduled || meta.Published.After(now) {
			continue
		}

		slug := meta.Slug
		s.locks.Lock(slug)
		// Re-read under the lock: a foreground call may have already moved
		// the post, and publishing a stale copy would discard its write.
		meta, err = s.docs.ReadMeta(folder)
		if err == nil && meta.Status == models.StatusScheduled && !meta.Published.After(now) {
			err = s.applyPublish(folder, meta, meta.Published, meta.ModifiedBy)
			if err == nil {
				promoted++
				s.logger.Info("scheduled post promoted", zap.String("slug", slug))
			}
		}
		s.locks.Unlock(slug)
		if err != nil && !errors.Is(err, cmserr.ErrNotFound) {
			s.logger.Warn("scheduled promotion failed",
				zap.String("folder", folder), zap.Error(err))
		}
	}

	if promoted > 0 {
		if err := s.feed.Write(); err != nil {
			return promoted, err
		}
	}
	return promoted, nil
}

// applyPublish is the single implementation of the publish transition, shared
// by the foreground call and the scheduled publisher.
func (s *Service) applyPublish(folder string, meta *models.PostMeta, at time.Time, actor string) error {
	meta.Status = models.StatusPublished
	meta.Published = at.UTC()
	meta.Modified = s.now().UTC()
	if actor != "" {
		meta.ModifiedBy = actor
	}
	return s.docs.WriteMeta(folder, meta)
}

func (s *Service) resolveMeta(slug string) (string, *models.PostMeta, error) {
	folder, ok := s.index.Resolve(slug)
	if !ok {
		return "", nil, cmserr.ErrNotFound
	}
	meta, err := s.docs.ReadMeta(folder)
	if err != nil {
		return "", nil, err
	}
	return folder, meta, nil
}

func (s *Service) validateRefs(tags, categories []string) error {
	for _, slug := range tags {
		if !s.taxo.Exists(models.KindTag, slug) {
			return cmserr.Validationf("tags", "unknown tag %q", slug)
		}
	}
	for _, slug := range categories {
		if !s.taxo.Exists(models.KindCategory, slug) {
			return cmserr.Validationf("categories", "unknown category %q", slug)
		}
	}
	return nil
}

func normalizeRefs(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r == "" || contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
