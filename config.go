package campusadmin

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eringen/campusadmin/editor"
	"github.com/eringen/campusadmin/storage"
)

// Storage backends understood by StorageConfig.Backend.
const (
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// SiteConfig holds all configuration for a campusadmin site.
type SiteConfig struct {
	Name        string // Site name (default "Campus")
	URL         string // Canonical URL (default "http://localhost:3000")
	Description string // Site description for RSS

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/campus.db")

	UploadLogPath          string // Upload audit SQLite path (default "data/uploads.db")
	UploadLogRetentionDays int    // Audit retention (default 365)

	AdminPassword string // Required: admin login password
	SessionSecret string // Required: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	Storage StorageConfig

	MaxUploadSize    int64         // Largest accepted image (default 20MB)
	EditorFolder     string        // Folder for images embedded in rich text (default "articles/images")
	EditorSessionTTL time.Duration // Idle editing sessions are closed after this (default 2h)

	CacheSize int           // Public read cache entries (default 256)
	CacheTTL  time.Duration // Public read cache TTL (default 5min)
}

// StorageConfig selects where uploaded objects live.
type StorageConfig struct {
	Backend  string // local (default), s3 or memory
	LocalDir string // local backend directory (default "data/media")
	BaseURL  string // public URL prefix of stored objects (default URL + "/media")
	S3       storage.S3Config
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Campus"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	c.URL = strings.TrimRight(c.URL, "/")
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/campus.db"
	}
	if c.UploadLogPath == "" {
		c.UploadLogPath = "data/uploads.db"
	}
	if c.UploadLogRetentionDays == 0 {
		c.UploadLogRetentionDays = 365
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendLocal
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "data/media"
	}
	if c.Storage.BaseURL == "" {
		switch {
		case c.Storage.Backend == BackendS3 && c.Storage.S3.PublicBaseURL != "":
			c.Storage.BaseURL = c.Storage.S3.PublicBaseURL
		default:
			c.Storage.BaseURL = c.URL + "/media"
		}
	}
	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = editor.DefaultMaxSize
	}
	if c.EditorFolder == "" {
		c.EditorFolder = editor.DefaultFolder
	}
	if c.EditorSessionTTL == 0 {
		c.EditorSessionTTL = 2 * time.Hour
	}
	if c.CacheSize == 0 {
		c.CacheSize = 256
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Minute
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are set up.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for user-owned static assets (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithObjectStore replaces the configured storage backend.
func WithObjectStore(s storage.Store) Option {
	return func(a *App) {
		a.Objects = s
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) {
		a.Metrics = reg
	}
}
