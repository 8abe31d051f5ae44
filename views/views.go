// Package views provides the default admin pages. Applications can replace
// any of them through campusadmin.ViewFuncs.
package views

import (
	"github.com/a-h/templ"

	"github.com/eringen/campusadmin/collections"
)

// AdminLogin renders the password form.
func AdminLogin(showError bool, csrfToken string) templ.Component {
	return page("login.html", "Sign in", struct {
		ShowError bool
		CSRF      string
	}{showError, csrfToken})
}

type dashboardRow struct {
	ID, Name string
	Count    int
}

// AdminDashboard lists the collections with their document counts.
func AdminDashboard(cols []collections.Collection, counts map[string]int, message, csrfToken string) templ.Component {
	rows := make([]dashboardRow, 0, len(cols))
	for _, c := range cols {
		rows = append(rows, dashboardRow{ID: c.ID, Name: c.Name, Count: counts[c.ID]})
	}
	return page("dashboard.html", "Dashboard", struct {
		Rows          []dashboardRow
		Message, CSRF string
	}{rows, message, csrfToken})
}

// AdminEditor renders the rich-text editor for one field of a document. An
// empty docID edits content that is not saved to a document yet.
func AdminEditor(col collections.Collection, docID, field, csrfToken string) templ.Component {
	label := field
	if p, ok := col.Property(field); ok && p.Name != "" {
		label = p.Name
	}
	return page("editor.html", col.Name+" · "+label, struct {
		Collection, Label                     string
		CSRF, CollectionID, DocumentID, Field string
	}{col.Name, label, csrfToken, col.ID, docID, field})
}

// NotFound renders the 404 page.
func NotFound() templ.Component {
	return page("notfound.html", "Not found", nil)
}

// ServerError renders the 500 page.
func ServerError() templ.Component {
	return page("servererror.html", "Error", nil)
}
