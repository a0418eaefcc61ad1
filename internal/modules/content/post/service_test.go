package post

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumekit/core/internal/config"
	"github.com/plumekit/core/internal/models"
	"github.com/plumekit/core/internal/modules/content/store"
	"github.com/plumekit/core/internal/modules/content/taxonomy"
	"github.com/plumekit/core/internal/modules/routes"
	"github.com/plumekit/core/internal/modules/syndication/feed"
	"github.com/plumekit/core/internal/pkg/cmserr"
	"github.com/plumekit/core/internal/pkg/keymutex"
)

type postEnv struct {
	posts    *Service
	taxo     *taxonomy.Service
	index    *routes.Service
	docs     *store.Store
	postsDir string
	feedPath string
	clock    time.Time
}

func newPostEnv(t *testing.T) *postEnv {
	t.Helper()
	root := t.TempDir()
	postsDir := filepath.Join(root, "posts")
	tagsDir := filepath.Join(root, "tags")
	categoriesDir := filepath.Join(root, "categories")
	for _, dir := range []string{postsDir, tagsDir, categoriesDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	cfg := &config.AppConfig{
		Site: config.SiteConfig{
			URL:         "https://blog.example.com",
			Title:       "Example Blog",
			Description: "Notes",
		},
		FeedPath:   filepath.Join(root, "rss.xml"),
		FeedLength: 20,
	}

	index, err := routes.NewService(filepath.Join(root, "routes.json"))
	require.NoError(t, err)

	docs := store.New(postsDir, "/content", nil)
	locks := keymutex.New()
	taxo := taxonomy.NewService(tagsDir, categoriesDir, docs, locks, nil)
	feedSvc := feed.NewService(cfg, docs, index, nil)

	env := &postEnv{
		posts:    NewService(docs, index, taxo, feedSvc, locks, nil),
		taxo:     taxo,
		index:    index,
		docs:     docs,
		postsDir: postsDir,
		feedPath: cfg.FeedPath,
		clock:    time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
	}
	env.posts.now = func() time.Time { return env.clock }
	return env
}

func (e *postEnv) feedContent(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(e.feedPath)
	require.NoError(t, err)
	return string(data)
}

func TestCreateDraft(t *testing.T) {
	env := newPostEnv(t)

	doc, err := env.posts.Create("alice", &CreatePostDTO{
		Title: "My First Post",
		Text:  "Hello **world**.",
	})
	require.NoError(t, err)

	assert.Equal(t, "my-first-post", doc.Slug)
	assert.Equal(t, models.StatusDraft, doc.Status)
	assert.Equal(t, "2026-03-09-my-first-post", doc.Folder)
	assert.Equal(t, "alice", doc.CreatedBy)
	assert.Contains(t, doc.HTML, "<strong>world</strong>")
	assert.True(t, doc.Published.IsZero())

	folder, ok := env.index.Resolve("my-first-post")
	require.True(t, ok)
	assert.Equal(t, doc.Folder, folder)

	// Drafts are invisible to public reads.
	_, err = env.posts.GetBySlug("my-first-post", false)
	assert.ErrorIs(t, err, cmserr.ErrNotFound)

	got, err := env.posts.GetBySlug("my-first-post", true)
	require.NoError(t, err)
	assert.Equal(t, doc.Slug, got.Slug)
}

func TestCreateRequiresTitle(t *testing.T) {
	env := newPostEnv(t)
	_, err := env.posts.Create("alice", &CreatePostDTO{Text: "body"})
	assert.True(t, cmserr.IsValidation(err))
}

func TestCreateRejectsUnknownRefs(t *testing.T) {
	env := newPostEnv(t)

	_, err := env.posts.Create("alice", &CreatePostDTO{
		Title: "Post",
		Tags:  []string{"ghost"},
	})
	require.True(t, cmserr.IsValidation(err))

	// Validation failed before anything touched disk.
	folders, err := env.docs.ListFolders()
	require.NoError(t, err)
	assert.Empty(t, folders)
	assert.Empty(t, env.index.Slugs())
}

func TestCreateWithValidRefs(t *testing.T) {
	env := newPostEnv(t)
	_, err := env.taxo.AddTag(&taxonomy.CreateTagDTO{Name: "go"})
	require.NoError(t, err)
	_, err = env.taxo.AddCategory(&taxonomy.CreateCategoryDTO{Name: "essays"})
	require.NoError(t, err)

	doc, err := env.posts.Create("alice", &CreatePostDTO{
		Title:      "Tagged",
		Tags:       []string{"go", "go"},
		Categories: []string{"essays"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, doc.Tags, "duplicate refs collapse")
	assert.Equal(t, []string{"essays"}, doc.Categories)
}

func TestDuplicateTitlesGetCounterSuffix(t *testing.T) {
	env := newPostEnv(t)

	first, err := env.posts.Create("alice", &CreatePostDTO{Title: "Hello World"})
	require.NoError(t, err)
	second, err := env.posts.Create("bob", &CreatePostDTO{Title: "Hello, World!"})
	require.NoError(t, err)
	third, err := env.posts.Create("carol", &CreatePostDTO{Title: "hello world"})
	require.NoError(t, err)

	assert.Equal(t, "hello-world", first.Slug)
	assert.Equal(t, "hello-world-1", second.Slug)
	assert.Equal(t, "hello-world-2", third.Slug)
}

func TestCreateEmptyTitleSlugFallsBack(t *testing.T) {
	env := newPostEnv(t)
	doc, err := env.posts.Create("alice", &CreatePostDTO{Title: "!!!"})
	require.NoError(t, err)
	assert.Regexp(t, `^post-[0-9a-f]{8}$`, doc.Slug)
}

func TestPublishLifecycle(t *testing.T) {
	env := newPostEnv(t)

	_, err := env.posts.Create("alice", &CreatePostDTO{
		Title:       "My First Post",
		Description: "An introduction",
		Text:        "Hello.",
	})
	require.NoError(t, err)

	// Not public, not in the feed.
	require.NoError(t, env.posts.feed.Write())
	assert.NotContains(t, env.feedContent(t), "My First Post")

	published, err := env.posts.PublishNow("alice", "my-first-post")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, published.Status)
	assert.True(t, published.Published.Equal(env.clock))

	got, err := env.posts.GetBySlug("my-first-post", false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, got.Status)
	assert.Contains(t, env.feedContent(t), "My First Post")

	// Publishing again is a validation error, not a silent no-op.
	_, err = env.posts.PublishNow("alice", "my-first-post")
	assert.True(t, cmserr.IsValidation(err))

	// Unpublish removes it from the feed.
	draft, err := env.posts.SaveAsDraft("alice", "my-first-post")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, draft.Status)
	assert.NotContains(t, env.feedContent(t), "My First Post")

	// Delete removes the folder, the route entry, and the feed item.
	folder, _ := env.index.Resolve("my-first-post")
	require.NoError(t, env.posts.Delete("alice", "my-first-post"))
	assert.False(t, env.docs.FolderExists(folder))
	assert.False(t, env.index.Has("my-first-post"))

	_, err = env.posts.GetBySlug("my-first-post", true)
	assert.ErrorIs(t, err, cmserr.ErrNotFound)
}

func TestDeletedSlugIsReusable(t *testing.T) {
	env := newPostEnv(t)

	_, err := env.posts.Create("alice", &CreatePostDTO{Title: "Reborn"})
	require.NoError(t, err)
	require.NoError(t, env.posts.Delete("alice", "reborn"))

	doc, err := env.posts.Create("alice", &CreatePostDTO{Title: "Reborn"})
	require.NoError(t, err)
	assert.Equal(t, "reborn", doc.Slug)
}

func TestEditDraft(t *testing.T) {
	env := newPostEnv(t)
	_, err := env.posts.Create("alice", &CreatePostDTO{Title: "Rough", Text: "v1"})
	require.NoError(t, err)

	env.clock = env.clock.Add(time.Hour)
	title := "Polished"
	text := "v2"
	doc, err := env.posts.Edit("bob", "rough", &UpdatePostDTO{Title: &title, Text: &text})
	require.NoError(t, err)

	assert.Equal(t, "Polished", doc.Title)
	assert.Equal(t, "v2", doc.Text)
	assert.Equal(t, "alice", doc.CreatedBy)
	assert.Equal(t, "bob", doc.ModifiedBy)
	// The slug never changes on edit; only the route index maps it.
	assert.Equal(t, "rough", doc.Slug)
	assert.True(t, doc.Modified.Equal(env.clock))
}

func TestEditPublishedRejected(t *testing.T) {
	env := newPostEnv(t)
	_, err := env.posts.Create("alice", &CreatePostDTO{Title: "Frozen"})
	require.NoError(t, err)
	_, err = env.posts.PublishNow("alice", "frozen")
	require.NoError(t, err)

	title := "Thawed"
	_, err = env.posts.Edit("alice", "frozen", &UpdatePostDTO{Title: &title})
	assert.True(t, cmserr.IsValidation(err))
}

func TestEditRejectsUnknownRefsBeforeWrite(t *testing.T) {
	env := newPostEnv(t)
	_, err := env.posts.Create("alice", &CreatePostDTO{Title: "Plain"})
	require.NoError(t, err)

	tags := []string{"ghost"}
	_, err = env.posts.Edit("alice", "plain", &UpdatePostDTO{Tags: &tags})
	require.True(t, cmserr.IsValidation(err))

	doc, err := env.posts.GetBySlug("plain", true)
	require.NoError(t, err)
	assert.Empty(t, doc.Tags)
}

func TestSchedulePublish(t *testing.T) {
	env := newPostEnv(t)
	_, err := env.posts.Create("alice", &CreatePostDTO{Title: "Later"})
	require.NoError(t, err)

	at := env.clock.Add(2 * time.Hour)
	doc, err := env.posts.SchedulePublish("alice", "later", at)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, doc.Status)
	assert.True(t, doc.Published.Equal(at))

	// Scheduled posts stay out of the public view and the feed.
	_, err = env.posts.GetBySlug("later", false)
	assert.ErrorIs(t, err, cmserr.ErrNotFound)

	_, err = env.posts.SchedulePublish("alice", "later", time.Time{})
	assert.True(t, cmserr.IsValidation(err))
}

func TestScheduleRejectedForPublished(t *testing.T) {
	env := newPostEnv(t)
	_, err := env.posts.Create("alice", &CreatePostDTO{Title: "Done"})
	require.NoError(t, err)
	_, err = env.posts.PublishNow("alice", "done")
	require.NoError(t, err)

	_, err = env.posts.SchedulePublish("alice", "done", env.clock.Add(time.Hour))
	assert.True(t, cmserr.IsValidation(err))
}

func TestPublishDuePromotesOnlyPastDue(t *testing.T) {
	env := newPostEnv(t)

	_, err := env.posts.Create("alice", &CreatePostDTO{Title: "Due", Description: "past"})
	require.NoError(t, err)
	_, err = env.posts.Create("alice", &CreatePostDTO{Title: "Not Yet", Description: "future"})
	require.NoError(t, err)
	_, err = env.posts.Create("alice", &CreatePostDTO{Title: "Plain Draft"})
	require.NoError(t, err)

	dueAt := env.clock.Add(-time.Minute)
	_, err = env.posts.SchedulePublish("alice", "due", dueAt)
	require.NoError(t, err)
	_, err = env.posts.SchedulePublish("alice", "not-yet", env.clock.Add(time.Hour))
	require.NoError(t, err)

	promoted, err := env.posts.PublishDue(context.Background(), env.clock)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	due, err := env.posts.GetBySlug("due", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, due.Status)
	// The promoted post keeps its scheduled time as the publish time.
	assert.True(t, due.Published.Equal(dueAt))

	notYet, err := env.posts.GetBySlug("not-yet", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, notYet.Status)

	draft, err := env.posts.GetBySlug("plain-draft", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, draft.Status)

	assert.Contains(t, env.feedContent(t), "Due")

	// A second tick finds nothing to do.
	promoted, err = env.posts.PublishDue(context.Background(), env.clock)
	require.NoError(t, err)
	assert.Zero(t, promoted)
}

func TestPublishDueSkipsUnreadableFolder(t *testing.T) {
	env := newPostEnv(t)

	_, err := env.posts.Create("alice", &CreatePostDTO{Title: "Good"})
	require.NoError(t, err)
	_, err = env.posts.SchedulePublish("alice", "good", env.clock.Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, env.docs.CreateFolder("2026-01-01-bad"))
	badMeta := filepath.Join(env.postsDir, "2026-01-01-bad", store.MetaFilename)
	require.NoError(t, os.WriteFile(badMeta, []byte("{broken"), 0o644))

	promoted, err := env.posts.PublishDue(context.Background(), env.clock)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
}

func TestListOrdering(t *testing.T) {
	env := newPostEnv(t)

	_, err := env.posts.Create("alice", &CreatePostDTO{Title: "Oldest"})
	require.NoError(t, err)
	_, err = env.posts.PublishNow("alice", "oldest")
	require.NoError(t, err)

	env.clock = env.clock.Add(time.Hour)
	_, err = env.posts.Create("alice", &CreatePostDTO{Title: "Newest"})
	require.NoError(t, err)
	_, err = env.posts.PublishNow("alice", "newest")
	require.NoError(t, err)

	env.clock = env.clock.Add(time.Hour)
	_, err = env.posts.Create("bob", &CreatePostDTO{Title: "A Draft"})
	require.NoError(t, err)

	public, err := env.posts.List(false)
	require.NoError(t, err)
	require.Len(t, public, 2)
	assert.Equal(t, "newest", public[0].Slug)
	assert.Equal(t, "oldest", public[1].Slug)

	all, err := env.posts.List(true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a-draft", all[0].Slug, "drafts sort by modification time")
}

func TestListSkipsCorruptEntry(t *testing.T) {
	env := newPostEnv(t)

	_, err := env.posts.Create("alice", &CreatePostDTO{Title: "Intact"})
	require.NoError(t, err)
	broken, err := env.posts.Create("alice", &CreatePostDTO{Title: "Broken"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(
		filepath.Join(env.postsDir, broken.Folder, store.MetaFilename),
		[]byte("{broken"), 0o644))

	all, err := env.posts.List(true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "intact", all[0].Slug)
}

func TestListByAuthor(t *testing.T) {
	env := newPostEnv(t)
	_, err := env.posts.Create("alice", &CreatePostDTO{Title: "Hers"})
	require.NoError(t, err)
	_, err = env.posts.Create("bob", &CreatePostDTO{Title: "His"})
	require.NoError(t, err)

	mine, err := env.posts.ListByAuthor("alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "hers", mine[0].Slug)
}

func TestDanglingRouteResolvesNotFound(t *testing.T) {
	env := newPostEnv(t)
	require.NoError(t, env.index.Add("ghost", "2026-01-01-ghost"))

	_, err := env.posts.GetBySlug("ghost", true)
	assert.ErrorIs(t, err, cmserr.ErrNotFound)
}

func TestDeleteNotFound(t *testing.T) {
	env := newPostEnv(t)
	err := env.posts.Delete("alice", "nothing")
	assert.ErrorIs(t, err, cmserr.ErrNotFound)
}
