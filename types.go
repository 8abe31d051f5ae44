package campusadmin

import (
	"time"

	"github.com/eringen/campusadmin/collections"
	"github.com/eringen/campusadmin/content"
)

const excerptLength = 160

// Banner is a hero slide shown on the public home page.
type Banner struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Image string  `json:"image"`
	Link  string  `json:"link,omitempty"`
	Order float64 `json:"order"`
}

// Location is a venue of an article's course or event.
type Location struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// ArticleSummary is an article as listed on public pages.
type ArticleSummary struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	TitleEn          string     `json:"titleEn"`
	Cover            string     `json:"cover"`
	Category         string     `json:"category"`
	Excerpt          string     `json:"excerpt"`
	PublishDate      string     `json:"publishDate"`
	IsFull           bool       `json:"isFull"`
	IsAirline        bool       `json:"isAirline"`
	ShowOnHome       bool       `json:"showOnHome"`
	RegistrationLink string     `json:"registrationLink,omitempty"`
	Locations        []Location `json:"locations,omitempty"`
}

// Article is a published article with its sanitized body.
type Article struct {
	ArticleSummary
	Content string `json:"content"`
}

// GalleryItem is an image or video of the public gallery.
type GalleryItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	TitleEn  string  `json:"titleEn"`
	Type     string  `json:"type"`
	ImageURL string  `json:"imageUrl,omitempty"`
	VideoURL string  `json:"videoUrl,omitempty"`
	Order    float64 `json:"order"`
}

// Testimonial is a quote from a student or parent.
type Testimonial struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	Date     string `json:"date"`
	Body     string `json:"body"`
	BodyHTML string `json:"bodyHtml"`
}

func str(e collections.Entity, key string) string {
	s, _ := e[key].(string)
	return s
}

func num(e collections.Entity, key string) float64 {
	f, _ := e[key].(float64)
	return f
}

func flag(e collections.Entity, key string) bool {
	b, _ := e[key].(bool)
	return b
}

func date(e collections.Entity, key string) (time.Time, bool) {
	s := str(e, key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := collections.ParseDate(s)
	return t, err == nil
}

func bannerFrom(d Document) Banner {
	return Banner{
		ID:    d.ID,
		Title: str(d.Data, "title"),
		Image: str(d.Data, "image"),
		Link:  str(d.Data, "link"),
		Order: num(d.Data, "order"),
	}
}

// bannerVisible reports whether an active banner is shown at now. The date
// window only applies when both ends are set.
func bannerVisible(d Document, now time.Time) bool {
	start, okStart := date(d.Data, "startDate")
	end, okEnd := date(d.Data, "endDate")
	if !okStart || !okEnd {
		return true
	}
	return !now.Before(start) && !now.After(end)
}

func articleFrom(d Document) Article {
	body := str(d.Data, "content")
	a := Article{
		ArticleSummary: ArticleSummary{
			ID:               d.ID,
			Title:            str(d.Data, "title"),
			TitleEn:          str(d.Data, "titleEn"),
			Cover:            str(d.Data, "cover"),
			Category:         str(d.Data, "category"),
			Excerpt:          content.PlainText(body, excerptLength),
			PublishDate:      str(d.Data, "publishDate"),
			IsFull:           flag(d.Data, "isFull"),
			IsAirline:        flag(d.Data, "isAirline"),
			ShowOnHome:       flag(d.Data, "showOnHome"),
			RegistrationLink: str(d.Data, "registrationLink"),
		},
		Content: body,
	}
	items, _ := d.Data["locations"].([]any)
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		loc := collections.Entity(m)
		a.Locations = append(a.Locations, Location{
			Name:    str(loc, "name"),
			Address: str(loc, "address"),
			Lat:     num(loc, "lat"),
			Lng:     num(loc, "lng"),
		})
	}
	return a
}

func galleryItemFrom(d Document) GalleryItem {
	return GalleryItem{
		ID:       d.ID,
		Title:    str(d.Data, "title"),
		TitleEn:  str(d.Data, "titleEn"),
		Type:     str(d.Data, "type"),
		ImageURL: str(d.Data, "imageUrl"),
		VideoURL: str(d.Data, "videoUrl"),
		Order:    num(d.Data, "order"),
	}
}

func testimonialFrom(d Document) (Testimonial, error) {
	body := str(d.Data, "body")
	rendered, err := content.RenderMultiline(body)
	if err != nil {
		return Testimonial{}, err
	}
	return Testimonial{
		ID:       d.ID,
		Author:   str(d.Data, "author"),
		Date:     str(d.Data, "date"),
		Body:     body,
		BodyHTML: rendered,
	}, nil
}
