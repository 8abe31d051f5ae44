package views

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/a-h/templ"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages holds each page parsed together with the layout.
var pages = parsePages("login.html", "dashboard.html", "editor.html", "notfound.html", "servererror.html")

func parsePages(names ...string) map[string]*template.Template {
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		out[name] = template.Must(template.New(name).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name))
	}
	return out
}

// layoutData is what the layout reads; Page is handed to the page body.
type layoutData struct {
	Title string
	Page  any
}

// page renders the named template inside the admin layout. Values are
// escaped by html/template according to where they appear.
func page(name, title string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t, ok := pages[name]
		if !ok {
			return fmt.Errorf("views: unknown page %q", name)
		}
		return t.ExecuteTemplate(w, "layout", layoutData{Title: title, Page: data})
	})
}
