package campusadmin

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"
)

// Slugify converts a title to a URL-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// BuildURL joins a base URL with path segments, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// ArticleURL is the public page of an article.
func ArticleURL(cfg SiteConfig, id string) string {
	return BuildURL(cfg.URL, "articles", id)
}

// ArticleJsonLD returns a JSON-LD string for an Article schema.
func ArticleJsonLD(a Article, cfg SiteConfig) string {
	u := ArticleURL(cfg, a.ID)
	data := map[string]any{
		"@context":      "https://schema.org",
		"@type":         "Article",
		"headline":      a.Title,
		"alternateName": a.TitleEn,
		"description":   a.Excerpt,
		"datePublished": a.PublishDate,
		"url":           u,
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   u,
		},
	}
	if a.Cover != "" {
		data["image"] = a.Cover
	}
	if cfg.Name != "" {
		data["publisher"] = map[string]string{
			"@type": "EducationalOrganization",
			"name":  cfg.Name,
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
