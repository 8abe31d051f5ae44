package campusadmin

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/campusadmin/collections"
)

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, a.Views.AdminLogin(false, CsrfToken(c)))
	}
	counts, err := a.Store.CountDocuments(c.Request().Context())
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminDashboard(collections.All(), counts, c.QueryParam("msg"), CsrfToken(c)))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1 {
		if err := setAdminSession(c); err != nil {
			return err
		}
		a.loginLimiter.Reset(ip)
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	a.loginLimiter.Record(ip)
	return RenderStatus(c, http.StatusUnauthorized, a.Views.AdminLogin(true, CsrfToken(c)))
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

// handleAdminEditor renders the rich-text editor page for one field of a
// document. The page opens an editing session through the JSON API.
func (a *App) handleAdminEditor(c echo.Context) error {
	col, err := lookupCollection(c)
	if err != nil {
		return err
	}
	field := c.Param("field")
	if p, ok := col.Property(field); !ok || !p.RichText {
		return echo.NewHTTPError(http.StatusNotFound, "not a rich-text field")
	}
	id := c.Param("id")
	if id != "new" {
		if _, err := a.Store.GetDocument(c.Request().Context(), col.ID, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound)
			}
			return err
		}
	} else {
		id = ""
	}
	return Render(c, a.Views.AdminEditor(col, id, field, CsrfToken(c)))
}

func lookupCollection(c echo.Context) (collections.Collection, error) {
	col, ok := collections.Get(c.Param("collection"))
	if !ok {
		return collections.Collection{}, echo.NewHTTPError(http.StatusNotFound, "unknown collection")
	}
	return col, nil
}
