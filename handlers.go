package campusadmin

import (
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/campusadmin/collections"
)

const publishedStatus = "published"

// visibleBanners returns active banners in display order, dropping those whose
// date window does not contain now.
func (a *App) visibleBanners(c echo.Context, now time.Time) ([]Banner, error) {
	docs, err := cached(a.Cache, "banners", func() ([]Document, error) {
		return a.Store.ListDocuments(c.Request().Context(), collections.Banners.ID, Query{
			Where:   []Filter{{Field: "active", Op: "=", Value: true}},
			OrderBy: "order",
		})
	})
	if err != nil {
		return nil, err
	}
	out := []Banner{}
	for _, d := range docs {
		if bannerVisible(d, now) {
			out = append(out, bannerFrom(d))
		}
	}
	return out, nil
}

func (a *App) handleBanners(c echo.Context) error {
	banners, err := a.visibleBanners(c, time.Now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, banners)
}

// publishedArticles returns published articles newest first, optionally
// narrowed to a category and to those shown on the home page.
func (a *App) publishedArticles(c echo.Context, category string, home bool) ([]Article, error) {
	key := "articles|" + category
	if home {
		key += "|home"
	}
	return cached(a.Cache, key, func() ([]Article, error) {
		q := Query{
			Where:   []Filter{{Field: "status", Op: "=", Value: publishedStatus}},
			OrderBy: "publishDate",
			Desc:    true,
		}
		if category != "" {
			q.Where = append(q.Where, Filter{Field: "category", Op: "=", Value: category})
		}
		if home {
			q.Where = append(q.Where, Filter{Field: "showOnHome", Op: "=", Value: true})
		}
		docs, err := a.Store.ListDocuments(c.Request().Context(), collections.Articles.ID, q)
		if err != nil {
			return nil, err
		}
		out := make([]Article, len(docs))
		for i, d := range docs {
			out[i] = articleFrom(d)
		}
		return out, nil
	})
}

func (a *App) handleArticles(c echo.Context) error {
	category := c.QueryParam("category")
	if category != "" {
		p, _ := collections.Articles.Property("category")
		if !slices.Contains(p.EnumKeys(), category) {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown category")
		}
	}
	articles, err := a.publishedArticles(c, category, c.QueryParam("home") == "1")
	if err != nil {
		return err
	}
	out := make([]ArticleSummary, len(articles))
	for i, art := range articles {
		out[i] = art.ArticleSummary
	}
	return c.JSON(http.StatusOK, out)
}

type articleResponse struct {
	Article
	JsonLD string `json:"jsonLd"`
}

func (a *App) handleArticle(c echo.Context) error {
	articles, err := a.publishedArticles(c, "", false)
	if err != nil {
		return err
	}
	id := c.Param("id")
	for _, art := range articles {
		if art.ID == id {
			return c.JSON(http.StatusOK, articleResponse{Article: art, JsonLD: ArticleJsonLD(art, a.Config)})
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "article not found")
}

func (a *App) handleGallery(c echo.Context) error {
	items, err := cached(a.Cache, "gallery", func() ([]GalleryItem, error) {
		docs, err := a.Store.ListDocuments(c.Request().Context(), collections.Gallery.ID, Query{
			Where:   []Filter{{Field: "status", Op: "=", Value: publishedStatus}},
			OrderBy: "order",
		})
		if err != nil {
			return nil, err
		}
		out := make([]GalleryItem, len(docs))
		for i, d := range docs {
			out[i] = galleryItemFrom(d)
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (a *App) handleTestimonials(c echo.Context) error {
	items, err := cached(a.Cache, "testimonials", func() ([]Testimonial, error) {
		docs, err := a.Store.ListDocuments(c.Request().Context(), collections.Testimonials.ID, Query{
			OrderBy: "date",
			Desc:    true,
		})
		if err != nil {
			return nil, err
		}
		out := make([]Testimonial, 0, len(docs))
		for _, d := range docs {
			t, err := testimonialFrom(d)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (a *App) handleSitemap(c echo.Context) error {
	articles, err := a.publishedArticles(c, "", false)
	if err != nil {
		return err
	}
	return a.renderSitemap(c, articles)
}

func (a *App) handleFeed(c echo.Context) error {
	articles, err := a.publishedArticles(c, "", false)
	if err != nil {
		return err
	}
	return a.renderRSS(c, articles)
}

func (a *App) handleRobots(c echo.Context) error {
	return c.File(a.staticDir + "/robots.txt")
}

type errorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if verrs, ok := collections.AsValidationErrors(err); ok {
		_ = c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Message: "validation failed",
			Errors:  verrs.Map(),
		})
		return
	}
	he, ok := err.(*echo.HTTPError)
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
	}
	if isAPI(c) {
		a.Echo.DefaultHTTPErrorHandler(err, c)
		return
	}
	switch {
	case code == http.StatusNotFound:
		_ = RenderStatus(c, code, a.Views.NotFound())
	case code >= 500:
		_ = RenderStatus(c, code, a.Views.ServerError())
	default:
		a.Echo.DefaultHTTPErrorHandler(err, c)
	}
}
