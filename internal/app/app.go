// Package app wires the content core together: store, route index, taxonomy,
// post service, feed projection, scheduler, and watcher. Outer layers (HTTP,
// CLI) consume the services exposed here and supply authenticated actor
// identities to the mutating operations.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/plumekit/core/internal/config"
	"github.com/plumekit/core/internal/modules/content/post"
	"github.com/plumekit/core/internal/modules/content/store"
	"github.com/plumekit/core/internal/modules/content/taxonomy"
	"github.com/plumekit/core/internal/modules/content/watch"
	"github.com/plumekit/core/internal/modules/routes"
	"github.com/plumekit/core/internal/modules/syndication/feed"
	pkgcron "github.com/plumekit/core/internal/pkg/cron"
	"github.com/plumekit/core/internal/pkg/keymutex"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	logger *zap.Logger
	cancel context.CancelFunc

	store   *store.Store
	index   *routes.Service
	taxo    *taxonomy.Service
	posts   *post.Service
	feed    *feed.Service
	sched   *pkgcron.Scheduler
	watcher *watch.Watcher
}

// New initializes the application: config → content root → route index →
// services → background jobs.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	for _, dir := range []string{cfg.PostsDir(), cfg.TagsDir(), cfg.CategoriesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("content root: %w", err)
		}
	}

	index, err := routes.NewService(cfg.RoutesPath)
	if err != nil {
		return nil, fmt.Errorf("route index: %w", err)
	}

	locks := keymutex.New()
	docs := store.New(cfg.PostsDir(), cfg.MediaPrefix, logger)
	taxo := taxonomy.NewService(cfg.TagsDir(), cfg.CategoriesDir(), docs, locks, logger)
	feedSvc := feed.NewService(cfg, docs, index, logger)
	posts := post.NewService(docs, index, taxo, feedSvc, locks, logger)

	ctx, cancel := context.WithCancel(context.Background())

	sched := pkgcron.New()
	registerCronJobs(sched, cfg, posts, logger)
	go sched.Start(ctx)

	watcher := watch.New(cfg.PostsDir(), cfg.WatcherDebounce, feedSvc.Write, logger)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Warn("content watcher unavailable", zap.Error(err))
		}
	}()

	return &App{
		cfg:     cfg,
		logger:  logger,
		cancel:  cancel,
		store:   docs,
		index:   index,
		taxo:    taxo,
		posts:   posts,
		feed:    feedSvc,
		sched:   sched,
		watcher: watcher,
	}, nil
}

// Posts returns the post service.
func (a *App) Posts() *post.Service { return a.posts }

// Taxonomy returns the tag/category service.
func (a *App) Taxonomy() *taxonomy.Service { return a.taxo }

// Routes returns the route index.
func (a *App) Routes() *routes.Service { return a.index }

// Feed returns the feed projection service.
func (a *App) Feed() *feed.Service { return a.feed }

// Scheduler returns the cron scheduler, for ops introspection.
func (a *App) Scheduler() *pkgcron.Scheduler { return a.sched }

// Shutdown stops all background goroutines. The scheduler and watcher react
// to the context cancel mid-sleep, without waiting for a scan to finish.
func (a *App) Shutdown() { a.cancel() }
