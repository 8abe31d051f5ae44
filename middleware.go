package campusadmin

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const sessionName = "admin_session"

// pathClass groups request paths by how they are cached, compressed and
// protected.
type pathClass int

const (
	pathPage pathClass = iota
	pathAsset
	pathMedia
	pathFeed
	pathPublicAPI
	pathAdminAPI
	pathAdminPage
)

func classify(p string) pathClass {
	switch {
	case strings.HasPrefix(p, "/public/"):
		return pathAsset
	case strings.HasPrefix(p, "/media/"):
		return pathMedia
	case p == "/sitemap.xml", p == "/feed.xml", p == "/robots.txt":
		return pathFeed
	case strings.HasPrefix(p, "/api/"):
		return pathPublicAPI
	case strings.HasPrefix(p, "/admin/api/"), p == "/admin/metrics":
		return pathAdminAPI
	case strings.HasPrefix(p, "/admin"):
		return pathAdminPage
	}
	return pathPage
}

func pathIs(classes ...pathClass) middleware.Skipper {
	return func(c echo.Context) bool {
		k := classify(c.Request().URL.Path)
		for _, want := range classes {
			if k == want {
				return true
			}
		}
		return false
	}
}

const contentSecurityPolicy = "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' https: http: data: blob:; media-src 'self' https:; connect-src 'self'; frame-ancestors 'none'"

func (a *App) setupMiddleware() {
	e := a.Echo

	e.IPExtractor = echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(true),
	)
	e.HTTPErrorHandler = a.httpErrorHandler

	e.Pre(middleware.NonWWWRedirect())

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		Skipper:     pathIs(pathAsset, pathMedia),
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			c.Logger().Infof("%s %s %s -> %d (%s)", v.RemoteIP, v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	// images and uploaded media are already compressed
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level:   5,
		Skipper: pathIs(pathAsset, pathMedia),
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: contentSecurityPolicy,
		HSTSMaxAge:            31536000,
	}))

	e.Use(middleware.BodyLimit(bodyLimit(a.Config.MaxUploadSize)))
	e.Use(session.Middleware(a.newSessionStore()))

	e.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "header:X-CSRF-Token,form:_csrf",
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieSameSite: http.SameSiteStrictMode,
		CookieSecure:   a.Config.CookieSecure,
		Skipper:        pathIs(pathPublicAPI, pathAsset, pathMedia, pathFeed),
		ErrorHandler: func(err error, c echo.Context) error {
			return echo.NewHTTPError(http.StatusForbidden, "invalid csrf token")
		},
	}))

	e.Use(middleware.AddTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		RedirectCode: http.StatusMovedPermanently,
		Skipper:      pathIs(pathAsset, pathMedia, pathFeed, pathPublicAPI, pathAdminAPI),
	}))

	e.Use(cacheControlMiddleware)
}

// bodyLimit leaves room for multipart framing around the largest upload.
func bodyLimit(maxUpload int64) string {
	mb := maxUpload>>20 + 2
	return strconv.FormatInt(mb, 10) + "M"
}

var cacheControl = map[pathClass]string{
	pathAsset:     "public, max-age=31536000, immutable",
	pathMedia:     "public, max-age=86400",
	pathFeed:      "public, max-age=3600",
	pathPublicAPI: "public, max-age=60",
	pathAdminAPI:  "no-store",
	pathAdminPage: "no-store",
	pathPage:      "public, max-age=300",
}

func cacheControlMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", cacheControl[classify(c.Request().URL.Path)])
		return next(c)
	}
}

func (a *App) newSessionStore() *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(a.Config.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   60 * 60 * 12,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	return store
}

// requireAdmin rejects unauthenticated requests: API calls get 401, pages
// redirect to the login form.
func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if IsAdmin(c) {
			return next(c)
		}
		if classify(c.Request().URL.Path) == pathAdminAPI {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
}

// IsAdmin checks if the current session is authenticated.
func IsAdmin(c echo.Context) bool {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return false
	}
	auth, ok := sess.Values["authenticated"].(bool)
	return ok && auth
}

func setAdminSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Values["authenticated"] = true
	return sess.Save(c.Request(), c.Response())
}

func clearAdminSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

// CsrfToken extracts the CSRF token from the Echo context.
func CsrfToken(c echo.Context) string {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}
