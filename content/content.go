// Package content cleans and inspects the HTML produced by the rich-text
// editor and renders multiline fields for the public API.
package content

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	policy = newPolicy()

	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)

	alignStyle = regexp.MustCompile(`(?i)^(left|right|center|justify)$`)
	spaces     = regexp.MustCompile(`\s+`)
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("span", "p", "div", "img", "table")
	p.AllowAttrs("style").OnElements("p", "span", "td", "th", "img")
	p.AllowStyles("text-align").Matching(alignStyle).Globally()
	p.AllowStyles("width", "height").Matching(regexp.MustCompile(`^\d+(px|%)?$`)).OnElements("img")
	p.AllowAttrs("data-upload-id").OnElements("span")
	p.RequireNoFollowOnLinks(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Sanitize strips scripts, event handlers and other unsafe markup from
// editor HTML, keeping images, tables and text alignment.
func Sanitize(s string) string {
	return policy.Sanitize(s)
}

func parse(s string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(s))
}

// ImageURLs returns the distinct src values of <img> elements in order.
func ImageURLs(s string) []string {
	doc, err := parse(s)
	if err != nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src := strings.TrimSpace(sel.AttrOr("src", ""))
		if src == "" || seen[src] {
			return
		}
		seen[src] = true
		out = append(out, src)
	})
	return out
}

// HasPlaceholders reports whether s still contains upload placeholders.
func HasPlaceholders(s string) bool {
	doc, err := parse(s)
	if err != nil {
		return false
	}
	return doc.Find("span.image-upload-placeholder").Length() > 0
}

// PlainText returns the visible text of s with whitespace collapsed,
// truncated to at most n runes (n <= 0 means no limit).
func PlainText(s string, n int) string {
	doc, err := parse(s)
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()
	text := strings.TrimSpace(spaces.ReplaceAllString(doc.Text(), " "))
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	cut := strings.TrimSpace(string(runes[:n]))
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut + "…"
}

// RenderMultiline renders a multiline text field as sanitized HTML.
// Line breaks are kept and bare links become anchors.
func RenderMultiline(text string) (string, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return policy.Sanitize(buf.String()), nil
}

// KeyForURL maps a public object URL back to its storage key when it lives
// under baseURL. ok is false for foreign URLs.
func KeyForURL(baseURL, rawURL string) (string, bool) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil || baseURL == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host != base.Host || u.Scheme != base.Scheme {
		return "", false
	}
	rest, ok := strings.CutPrefix(u.Path, base.Path)
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}
