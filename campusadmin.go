// Package campusadmin is the content admin of a campus website built with Go,
// Echo and templ. It manages the school's collections (articles, banners,
// gallery, courses and more), uploads their files to object storage, runs
// server-side rich-text editing sessions with embedded image uploads, and
// serves the public read API, RSS feed and sitemap.
package campusadmin

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eringen/campusadmin/collections"
	"github.com/eringen/campusadmin/storage"
	"github.com/eringen/campusadmin/uploadlog"
	"github.com/eringen/campusadmin/views"
)

// ViewFuncs holds the templ components the admin renders. Nil fields fall
// back to the defaults of the views package.
type ViewFuncs struct {
	AdminLogin     func(showError bool, csrfToken string) templ.Component
	AdminDashboard func(cols []collections.Collection, counts map[string]int, message, csrfToken string) templ.Component
	AdminEditor    func(col collections.Collection, docID, field, csrfToken string) templ.Component
	NotFound       func() templ.Component
	ServerError    func() templ.Component
}

func (v *ViewFuncs) setDefaults() {
	if v.AdminLogin == nil {
		v.AdminLogin = views.AdminLogin
	}
	if v.AdminDashboard == nil {
		v.AdminDashboard = views.AdminDashboard
	}
	if v.AdminEditor == nil {
		v.AdminEditor = views.AdminEditor
	}
	if v.NotFound == nil {
		v.NotFound = views.NotFound
	}
	if v.ServerError == nil {
		v.ServerError = views.ServerError
	}
}

// App is the central campusadmin application. It wires together the stores,
// cache, handlers, middleware, and templates.
type App struct {
	Config  SiteConfig
	Echo    *echo.Echo
	Store   *Store
	Cache   *PublicCache
	Objects storage.Store
	Uploads *uploadlog.Store
	Views   ViewFuncs
	Metrics *prometheus.Registry

	metrics       *appMetrics
	loginLimiter  *LoginLimiter
	uploadLimiter *uploadlog.RateLimiter
	sessions      *sessionRegistry
	customRoutes  []func(*App)
	staticDir     string
	stopCleanup   func()
}

// New creates a new App with the given configuration and view functions.
func New(cfg SiteConfig, v ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()
	v.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     v,
		staticDir: "public",
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Init opens the databases and object storage and registers middleware and
// routes. Start calls it; tests call it directly.
func (a *App) Init(ctx context.Context) error {
	if a.Config.AdminPassword == "" {
		return fmt.Errorf("campusadmin: AdminPassword is required")
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("campusadmin: SessionSecret is required")
	}
	// editor images are saved into document HTML; presigned URLs would expire there
	if a.Config.Storage.Backend == BackendS3 && a.Config.Storage.S3.PublicBaseURL == "" {
		return fmt.Errorf("campusadmin: S3 storage requires a public base URL")
	}

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("campusadmin: init store: %w", err)
	}
	a.Store = store

	uploads, err := uploadlog.NewStore(a.Config.UploadLogPath)
	if err != nil {
		return fmt.Errorf("campusadmin: init upload log: %w", err)
	}
	a.Uploads = uploads
	a.stopCleanup = uploads.StartCleanupScheduler(a.Config.UploadLogRetentionDays, 24*time.Hour)

	if a.Metrics == nil {
		a.Metrics = prometheus.NewRegistry()
	}
	if a.metrics, err = newAppMetrics(a.Metrics); err != nil {
		return fmt.Errorf("campusadmin: init metrics: %w", err)
	}

	if a.Objects == nil {
		if a.Objects, err = a.openObjectStore(ctx); err != nil {
			return fmt.Errorf("campusadmin: init storage: %w", err)
		}
	}
	a.Objects = storage.Instrument(a.Objects, a.metrics.storage)

	a.Cache = NewPublicCache(a.Config.CacheSize, a.Config.CacheTTL)
	a.loginLimiter = NewLoginLimiter(5, time.Minute)
	a.uploadLimiter = uploadlog.NewRateLimiter(60, time.Minute)
	a.sessions = newSessionRegistry(a.Config.EditorSessionTTL, a.Echo.Logger, func(open int) {
		a.metrics.editorSessions.Set(float64(open))
	})

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

func (a *App) openObjectStore(ctx context.Context) (storage.Store, error) {
	cfg := a.Config.Storage
	switch cfg.Backend {
	case BackendLocal:
		return storage.NewLocalStore(cfg.LocalDir, cfg.BaseURL)
	case BackendS3:
		return storage.NewS3Store(ctx, cfg.S3)
	case BackendMemory:
		return storage.NewMemoryStore(cfg.BaseURL), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// Start initializes the application and serves HTTP until the server stops.
func (a *App) Start(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	embeddedFS, _ := fs.Sub(EmbeddedAssets, "embedded")
	embeddedHandler := http.FileServer(http.FS(embeddedFS))
	e.GET("/public/editor.js", echo.WrapHandler(http.StripPrefix("/public/", embeddedHandler)))
	e.GET("/public/admin.css", echo.WrapHandler(http.StripPrefix("/public/", embeddedHandler)))

	e.Static("/public", a.staticDir)
	if a.Config.Storage.Backend == BackendLocal {
		e.Static("/media", a.Config.Storage.LocalDir)
	}
	e.GET("/robots.txt", a.handleRobots)

	// Public read API
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/api/banners/", a.handleBanners)
	e.GET("/api/articles/", a.handleArticles)
	e.GET("/api/articles/:id/", a.handleArticle)
	e.GET("/api/gallery/", a.handleGallery)
	e.GET("/api/testimonials/", a.handleTestimonials)

	// Admin pages
	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)

	admin := e.Group("/admin", requireAdmin)
	admin.GET("/edit/:collection/:id/:field/", a.handleAdminEditor)
	admin.GET("/metrics", a.handleMetrics)

	api := admin.Group("/api")
	api.GET("/collections/", a.handleListCollections)
	api.GET("/collections/:collection/", a.handleListDocuments)
	api.POST("/collections/:collection/", a.handleCreateDocument)
	api.GET("/collections/:collection/:id/", a.handleGetDocument)
	api.PUT("/collections/:collection/:id/", a.handleUpdateDocument)
	api.DELETE("/collections/:collection/:id/", a.handleDeleteDocument)
	api.POST("/collections/:collection/fields/:field/upload/", a.handleFieldUpload, a.uploadLimiter.Middleware())

	ed := api.Group("/editor/sessions")
	ed.POST("/", a.handleOpenSession)
	ed.GET("/:sid/", a.handleGetSession)
	ed.DELETE("/:sid/", a.handleCloseSession)
	ed.POST("/:sid/edits/", a.handleSessionEdit)
	ed.POST("/:sid/images/", a.handleSessionImage, a.uploadLimiter.Middleware())
	ed.GET("/:sid/tasks/:tid/", a.handleGetTask)
	ed.DELETE("/:sid/tasks/:tid/", a.handleCancelTask)
	ed.POST("/:sid/save/", a.handleSaveSession)

	uploadlog.NewHandler(a.Uploads).RegisterRoutes(admin)
}

// Close cleans up resources. Call this when the app is shutting down.
// Open editing sessions are closed, cancelling their uploads.
func (a *App) Close() error {
	if a.sessions != nil {
		a.sessions.close()
	}
	if a.uploadLimiter != nil {
		a.uploadLimiter.Stop()
	}
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.stopCleanup != nil {
		a.stopCleanup()
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.Uploads != nil {
		a.Uploads.Close()
	}
	return nil
}
