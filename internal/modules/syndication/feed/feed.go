// Package feed is the derived RSS read view over published posts. It holds no
// state of its own: every regeneration recomputes the document from scratch,
// so it is always safe to overwrite in full.
package feed

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plumekit/core/internal/config"
	"github.com/plumekit/core/internal/models"
	"github.com/plumekit/core/internal/modules/content/store"
	"github.com/plumekit/core/internal/modules/routes"
	"github.com/plumekit/core/internal/pkg/fsutil"
)

type feedItem struct {
	Title       string
	Link        string
	GUID        string
	PubDate     time.Time
	Description string
}

// Service regenerates and persists the RSS projection.
type Service struct {
	site     config.SiteConfig
	feedPath string
	limit    int
	docs     *store.Store
	index    *routes.Service
	logger   *zap.Logger
}

func NewService(cfg *config.AppConfig, docs *store.Store, index *routes.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		site:     cfg.Site,
		feedPath: cfg.FeedPath,
		limit:    cfg.FeedLength,
		docs:     docs,
		index:    index,
		logger:   logger.Named("FeedService"),
	}
}

// Generate recomputes the feed from every published post, ordered by publish
// time descending. Unreadable entries are logged and skipped; one corrupt
// post never fails the projection.
func (s *Service) Generate() ([]byte, error) {
	items := s.collectItems()
	return []byte(buildRSS(s.site.Title, s.site.Description, s.site.URL, items)), nil
}

// Write regenerates the feed and persists it atomically to the configured
// path.
func (s *Service) Write() error {
	data, err := s.Generate()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.feedPath, data, fsutil.DefaultFilePerm); err != nil {
		return fmt.Errorf("write feed %s: %w", s.feedPath, err)
	}
	return nil
}

func (s *Service) collectItems() []feedItem {
	var items []feedItem
	for _, slug := range s.index.Slugs() {
		folder, ok := s.index.Resolve(slug)
		if !ok {
			continue
		}
		meta, err := s.docs.ReadMeta(folder)
		if err != nil {
			s.logger.Warn("feed skipping unreadable post",
				zap.String("slug", slug), zap.Error(err))
			continue
		}
		if meta.Status != models.StatusPublished {
			continue
		}
		items = append(items, feedItem{
			Title:       meta.Title,
			Link:        fmt.Sprintf("%s/posts/%s", strings.TrimRight(s.site.URL, "/"), slug),
			GUID:        slug,
			PubDate:     meta.Published,
			Description: meta.Description,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].PubDate.After(items[j].PubDate)
	})
	if s.limit > 0 && len(items) > s.limit {
		items = items[:s.limit]
	}
	return items
}

func buildRSS(title, desc, link string, items []feedItem) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>%s</title>
    <link>%s</link>
    <description>%s</description>
    <lastBuildDate>%s</lastBuildDate>
`, escapeXML(title), escapeXML(link), escapeXML(desc), time.Now().UTC().Format(time.RFC1123Z)))

	for _, item := range items {
		b.WriteString(fmt.Sprintf(`    <item>
      <title>%s</title>
      <link>%s</link>
      <guid isPermaLink="false">%s</guid>
      <pubDate>%s</pubDate>
      <description>%s</description>
    </item>
`, escapeXML(item.Title), escapeXML(item.Link), escapeXML(item.GUID),
			item.PubDate.UTC().Format(time.RFC1123Z), escapeXML(item.Description)))
	}

	b.WriteString(`  </channel>
</rss>`)
	return b.String()
}

// escapeXML replaces XML special characters in element content.
func escapeXML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return replacer.Replace(s)
}
