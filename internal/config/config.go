package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultEnv             = "development"
	defaultSiteURL         = "http://localhost:2333"
	defaultSiteTitle       = "Plume"
	defaultContentDir      = "data"
	defaultMediaPrefix     = "/content"
	defaultFeedFilename    = "rss.xml"
	defaultRoutesFilename  = "routes.json"
	defaultBackupsDir      = "backups"
	defaultPublishInterval = 30 * time.Second
	minimumPublishInterval = time.Second
	defaultFeedLength      = 20
	defaultWatcherDebounce = 2 * time.Second
	minimumWatcherDebounce = 100 * time.Millisecond
	defaultBackupKeepCount = 14
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Env  string     `yaml:"env"` // "development" | "production"
	Site SiteConfig `yaml:"site"`

	// ContentDir is the content root; posts/, tags/ and categories/ live
	// directly beneath it.
	ContentDir string `yaml:"content_dir"`
	// RoutesPath is the persisted slug→folder index file.
	RoutesPath string `yaml:"routes_path"`
	// FeedPath is where the generated RSS document is written.
	FeedPath string `yaml:"feed_path"`
	// BackupsDir receives the scheduled content snapshots.
	BackupsDir string `yaml:"backups_dir"`

	// MediaPrefix is the public URL prefix under which the content root is
	// served by the outer HTTP layer.
	MediaPrefix string `yaml:"media_prefix"`

	PublishInterval time.Duration `yaml:"publish_interval"`
	WatcherDebounce time.Duration `yaml:"watcher_debounce"`
	FeedLength      int           `yaml:"feed_length"`
	BackupKeep      int           `yaml:"backup_keep"`
}

// SiteConfig describes the public site, used by the feed projection.
type SiteConfig struct {
	URL         string `yaml:"url"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type rawAppConfig struct {
	Env     string        `yaml:"env"`
	NodeEnv string        `yaml:"node_env"`
	Site    rawSiteConfig `yaml:"site"`

	SiteURL         string `yaml:"site_url"`
	SiteTitle       string `yaml:"site_title"`
	SiteDescription string `yaml:"site_description"`

	ContentDir  string `yaml:"content_dir"`
	ContentRoot string `yaml:"content_root"`
	DataDir     string `yaml:"data_dir"`
	RoutesPath  string `yaml:"routes_path"`
	RoutesFile  string `yaml:"routes_file"`
	FeedPath    string `yaml:"feed_path"`
	FeedFile    string `yaml:"feed_file"`
	BackupsDir  string `yaml:"backups_dir"`
	BackupDir   string `yaml:"backup_dir"`
	MediaPrefix string `yaml:"media_prefix"`

	PublishInterval        string `yaml:"publish_interval"`
	PublishIntervalSeconds *int   `yaml:"publish_interval_seconds"`
	WatcherDebounce        string `yaml:"watcher_debounce"`
	FeedLength             *int   `yaml:"feed_length"`
	BackupKeep             *int   `yaml:"backup_keep"`
}

type rawSiteConfig struct {
	URL         string `yaml:"url"`
	Title       string `yaml:"title"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Load reads the YAML config at configPath, applying defaults for every
// omitted key. A missing file yields the full default configuration.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && configPath == "" {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	if err := applyRawAppConfig(&cfg, raw); err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}

	if cfg.PublishInterval < minimumPublishInterval {
		return nil, fmt.Errorf("invalid publish_interval %s in %q, expected >= %s", cfg.PublishInterval, path, minimumPublishInterval)
	}
	if cfg.WatcherDebounce < minimumWatcherDebounce {
		return nil, fmt.Errorf("invalid watcher_debounce %s in %q, expected >= %s", cfg.WatcherDebounce, path, minimumWatcherDebounce)
	}
	if cfg.FeedLength < 1 {
		return nil, fmt.Errorf("invalid feed_length %d in %q, expected >= 1", cfg.FeedLength, path)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Env: defaultEnv,
		Site: SiteConfig{
			URL:   defaultSiteURL,
			Title: defaultSiteTitle,
		},
		ContentDir:      defaultContentDir,
		MediaPrefix:     defaultMediaPrefix,
		PublishInterval: defaultPublishInterval,
		WatcherDebounce: defaultWatcherDebounce,
		FeedLength:      defaultFeedLength,
		BackupKeep:      defaultBackupKeepCount,
	}
	cfg.RoutesPath = filepath.Join(cfg.ContentDir, defaultRoutesFilename)
	cfg.FeedPath = filepath.Join(cfg.ContentDir, defaultFeedFilename)
	cfg.BackupsDir = defaultBackupsDir
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) error {
	if env := firstNonEmpty(raw.Env, raw.NodeEnv); env != "" {
		cfg.Env = strings.ToLower(strings.TrimSpace(env))
	}

	if url := firstNonEmpty(raw.Site.URL, raw.SiteURL); url != "" {
		cfg.Site.URL = strings.TrimRight(strings.TrimSpace(url), "/")
	}
	if title := firstNonEmpty(raw.Site.Title, raw.Site.Name, raw.SiteTitle); title != "" {
		cfg.Site.Title = strings.TrimSpace(title)
	}
	if desc := firstNonEmpty(raw.Site.Description, raw.SiteDescription); desc != "" {
		cfg.Site.Description = strings.TrimSpace(desc)
	}

	contentDirSet := false
	if dir := firstNonEmpty(raw.ContentDir, raw.ContentRoot, raw.DataDir); dir != "" {
		cfg.ContentDir = filepath.Clean(strings.TrimSpace(dir))
		contentDirSet = true
	}
	if contentDirSet {
		// Re-derive dependent defaults before explicit overrides apply.
		cfg.RoutesPath = filepath.Join(cfg.ContentDir, defaultRoutesFilename)
		cfg.FeedPath = filepath.Join(cfg.ContentDir, defaultFeedFilename)
	}
	if p := firstNonEmpty(raw.RoutesPath, raw.RoutesFile); p != "" {
		cfg.RoutesPath = filepath.Clean(strings.TrimSpace(p))
	}
	if p := firstNonEmpty(raw.FeedPath, raw.FeedFile); p != "" {
		cfg.FeedPath = filepath.Clean(strings.TrimSpace(p))
	}
	if dir := firstNonEmpty(raw.BackupsDir, raw.BackupDir); dir != "" {
		cfg.BackupsDir = filepath.Clean(strings.TrimSpace(dir))
	}
	if prefix := strings.TrimSpace(raw.MediaPrefix); prefix != "" {
		cfg.MediaPrefix = "/" + strings.Trim(prefix, "/")
	}

	if raw.PublishInterval != "" {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PublishInterval))
		if err != nil {
			return fmt.Errorf("parse publish_interval: %w", err)
		}
		cfg.PublishInterval = d
	}
	if raw.PublishIntervalSeconds != nil {
		cfg.PublishInterval = time.Duration(*raw.PublishIntervalSeconds) * time.Second
	}
	if raw.WatcherDebounce != "" {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WatcherDebounce))
		if err != nil {
			return fmt.Errorf("parse watcher_debounce: %w", err)
		}
		cfg.WatcherDebounce = d
	}
	if raw.FeedLength != nil {
		cfg.FeedLength = *raw.FeedLength
	}
	if raw.BackupKeep != nil {
		cfg.BackupKeep = *raw.BackupKeep
	}

	return nil
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, "development")
}

// PostsDir returns the directory that holds one storage folder per post.
func (c *AppConfig) PostsDir() string { return filepath.Join(c.ContentDir, "posts") }

// TagsDir returns the directory that holds one JSON document per tag.
func (c *AppConfig) TagsDir() string { return filepath.Join(c.ContentDir, "tags") }

// CategoriesDir returns the directory that holds one JSON document per category.
func (c *AppConfig) CategoriesDir() string { return filepath.Join(c.ContentDir, "categories") }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
