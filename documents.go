package campusadmin

import (
	"context"
	"errors"
	"net/http"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/campusadmin/collections"
	"github.com/eringen/campusadmin/content"
)

// reserved query parameters of the list endpoint; everything else filters
var listParams = []string{"order", "desc", "limit"}

func (a *App) handleListCollections(c echo.Context) error {
	return c.JSON(http.StatusOK, collections.All())
}

// handleListDocuments lists a collection. ?order=field&desc=1&limit=n sort and
// cap the result; any other parameter naming a property filters by equality.
func (a *App) handleListDocuments(c echo.Context) error {
	col, err := lookupCollection(c)
	if err != nil {
		return err
	}
	q := Query{
		OrderBy: c.QueryParam("order"),
		Desc:    c.QueryParam("desc") == "1" || c.QueryParam("desc") == "true",
	}
	if q.OrderBy != "" {
		if _, ok := col.Property(q.OrderBy); !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown order field")
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		q.Limit = n
	}
	for key, vals := range c.QueryParams() {
		if slices.Contains(listParams, key) || len(vals) == 0 {
			continue
		}
		p, ok := col.Property(key)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown filter field "+key)
		}
		q.Where = append(q.Where, Filter{Field: key, Op: "=", Value: filterValue(p, vals[0])})
	}
	docs, err := a.Store.ListDocuments(c.Request().Context(), col.ID, q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, docs)
}

func filterValue(p collections.Property, raw string) any {
	switch p.DataType {
	case collections.Boolean:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	case collections.Number:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

func (a *App) handleGetDocument(c echo.Context) error {
	col, err := lookupCollection(c)
	if err != nil {
		return err
	}
	doc, err := a.Store.GetDocument(c.Request().Context(), col.ID, c.Param("id"))
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (a *App) handleCreateDocument(c echo.Context) error {
	col, err := lookupCollection(c)
	if err != nil {
		return err
	}
	var in map[string]any
	if err := c.Bind(&in); err != nil {
		return err
	}
	data, err := prepareEntity(col, in, nil, time.Now())
	if err != nil {
		return err
	}
	doc, err := a.Store.SaveDocument(c.Request().Context(), col.ID, Document{Data: data})
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusCreated, doc)
}

func (a *App) handleUpdateDocument(c echo.Context) error {
	col, err := lookupCollection(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	existing, err := a.Store.GetDocument(ctx, col.ID, c.Param("id"))
	if err != nil {
		return notFound(err)
	}
	var in map[string]any
	if err := c.Bind(&in); err != nil {
		return err
	}
	data, err := prepareEntity(col, in, existing.Data, time.Now())
	if err != nil {
		return err
	}
	doc, err := a.Store.SaveDocument(ctx, col.ID, Document{ID: existing.ID, Data: data})
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	a.deleteEditorImages(ctx, removedImages(col, existing.Data, doc.Data))
	return c.JSON(http.StatusOK, doc)
}

func (a *App) handleDeleteDocument(c echo.Context) error {
	col, err := lookupCollection(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	existing, err := a.Store.GetDocument(ctx, col.ID, c.Param("id"))
	if err != nil {
		return notFound(err)
	}
	if err := a.Store.DeleteDocument(ctx, col.ID, existing.ID); err != nil {
		return notFound(err)
	}
	a.Cache.Invalidate()
	a.deleteEditorImages(ctx, removedImages(col, existing.Data, nil))
	return c.NoContent(http.StatusNoContent)
}

// prepareEntity turns submitted values into a storable entity: coerced to the
// schema, defaults applied, rich text sanitized, then validated. Disabled
// properties keep their previous value on update.
func prepareEntity(col collections.Collection, in map[string]any, prev collections.Entity, now time.Time) (collections.Entity, error) {
	e := collections.Coerce(col, in)
	for _, p := range col.Properties {
		if !p.Disabled || prev == nil {
			continue
		}
		if v, ok := prev[p.Key]; ok {
			e[p.Key] = v
		} else {
			delete(e, p.Key)
		}
	}
	collections.ApplyDefaults(col, e, now)

	var pending collections.ValidationErrors
	for _, key := range col.RichTextFields() {
		s, ok := e[key].(string)
		if !ok {
			continue
		}
		if content.HasPlaceholders(s) {
			p, _ := col.Property(key)
			pending = append(pending, collections.FieldError{
				Field:   key,
				Message: p.Name + " still has image uploads in progress",
			})
		}
		e[key] = content.Sanitize(s)
	}
	if len(pending) > 0 {
		return nil, pending
	}
	if err := collections.Validate(col, e); err != nil {
		return nil, err
	}
	return e, nil
}

// removedImages lists image URLs of rich-text fields present in before but
// not in after. A nil after means the document is gone.
func removedImages(col collections.Collection, before, after collections.Entity) []string {
	var out []string
	for _, key := range col.RichTextFields() {
		old, _ := before[key].(string)
		if old == "" {
			continue
		}
		keep := map[string]bool{}
		if now, ok := after[key].(string); ok {
			for _, u := range content.ImageURLs(now) {
				keep[u] = true
			}
		}
		for _, u := range content.ImageURLs(old) {
			if !keep[u] {
				out = append(out, u)
			}
		}
	}
	return out
}

// deleteEditorImages removes stored objects behind urls. Only objects under
// the editor folder that no stored document still embeds are touched, so it
// must run after the triggering write; failures are logged.
func (a *App) deleteEditorImages(ctx context.Context, urls []string) {
	prefix := strings.Trim(a.Config.EditorFolder, "/") + "/"
	for _, u := range urls {
		key, ok := content.KeyForURL(a.Config.Storage.BaseURL, u)
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		used, err := a.imageInUse(ctx, key)
		if err != nil {
			a.Echo.Logger.Warnf("check references of %s: %v", key, err)
			continue
		}
		if used {
			continue
		}
		if err := a.Objects.Delete(ctx, key); err != nil {
			a.Echo.Logger.Warnf("delete embedded image %s: %v", key, err)
		}
	}
}

// imageInUse reports whether a rich-text field of any stored document embeds
// the object at key. The SQL match on the key's base name only narrows the
// candidates; each is confirmed by resolving its image URLs.
func (a *App) imageInUse(ctx context.Context, key string) (bool, error) {
	token := path.Base(key)
	if i := strings.IndexByte(token, '_'); i > 0 {
		token = token[:i]
	}
	docs, err := a.Store.DocumentsContaining(ctx, token)
	if err != nil {
		return false, err
	}
	for _, doc := range docs {
		col, ok := collections.Get(doc.Collection)
		if !ok {
			continue
		}
		for _, field := range col.RichTextFields() {
			html, _ := doc.Data[field].(string)
			for _, u := range content.ImageURLs(html) {
				if k, ok := content.KeyForURL(a.Config.Storage.BaseURL, u); ok && k == key {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func notFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return err
}
