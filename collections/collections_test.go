package collections

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validArticle() Entity {
	return Entity{
		"title":       "Summer camp 2025",
		"titleEn":     "Summer camp 2025",
		"cover":       "https://cdn.example.com/articles/covers/a.png",
		"content":     "<p>Hello</p>",
		"category":    "summerCamp",
		"publishDate": "2025-06-01T00:00:00Z",
		"status":      "published",
	}
}

func TestRegistry(t *testing.T) {
	all := All()
	require.Len(t, all, 8)
	ids := make([]string, len(all))
	for i, c := range all {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"articles", "attendance", "banners", "classes", "courses", "gallery", "testimonials", "users"}, ids)

	c, ok := Get("Banners")
	require.True(t, ok)
	assert.Equal(t, "Banner", c.SingularName)
	_, ok = Get("nope")
	assert.False(t, ok)

	assert.Equal(t, []string{"content"}, Articles.RichTextFields())
	p, ok := Articles.Property("cover")
	require.True(t, ok)
	assert.Equal(t, "articles/covers", p.Storage.Path)
}

func TestValidateArticle(t *testing.T) {
	require.NoError(t, Validate(Articles, validArticle()))

	e := validArticle()
	delete(e, "cover")
	delete(e, "title")
	e["status"] = "deleted"
	e["registrationLink"] = "not a link"
	e["locations"] = []any{
		map[string]any{"name": "Campus", "address": "1 Main St", "lat": 45.0, "lng": -73.5},
		map[string]any{"name": "", "address": "2 Main St", "lat": 91.0},
	}

	verrs, ok := AsValidationErrors(Validate(Articles, e))
	require.True(t, ok)
	m := verrs.Map()
	assert.Equal(t, "Please upload a cover image", m["cover"])
	assert.Equal(t, "Title is required", m["title"])
	assert.Equal(t, "Status must be one of [draft published archived]", m["status"])
	assert.Equal(t, "Please enter a valid URL", m["registrationLink"])
	assert.Equal(t, "Location name is required", m["locations[1].name"])
	assert.Equal(t, "Latitude must be 90 or less", m["locations[1].lat"])
	assert.Equal(t, "Longitude is required", m["locations[1].lng"])
	assert.NotContains(t, m, "locations[0].lat")
	assert.Len(t, verrs, 7)
}

func TestValidateRegistrationLink(t *testing.T) {
	for _, link := range []string{"https://forms.example.com/signup", "example.org", ""} {
		e := validArticle()
		e["registrationLink"] = link
		assert.NoError(t, Validate(Articles, e), link)
	}
}

func TestValidateTypesAndRules(t *testing.T) {
	err := Validate(Courses, Entity{
		"name":        "Algebra",
		"description": "Intro",
		"teacher":     "01J0TEACHER",
		"duration":    0.0,
		"status":      "active",
		"category":    "math",
		"materials":   []any{"course_materials/a.pdf", 3.0},
	})
	verrs, ok := AsValidationErrors(err)
	require.True(t, ok)
	m := verrs.Map()
	assert.Equal(t, "Lessons must be 1 or greater", m["duration"])
	assert.Equal(t, "Materials item 2 must be text", m["materials[1]"])

	err = Validate(Users, Entity{"username": "amy", "role": "teacher", "email": "amy"})
	verrs, ok = AsValidationErrors(err)
	require.True(t, ok)
	assert.Equal(t, "Email must be a valid email address", verrs.Map()["email"])

	err = Validate(Banners, Entity{"title": "x", "image": "u", "order": "first", "startDate": "soon"})
	verrs, ok = AsValidationErrors(err)
	require.True(t, ok)
	assert.Equal(t, "Order must be a number", verrs.Map()["order"])
	assert.Equal(t, "Start date must be a date", verrs.Map()["startDate"])
}

func TestCoerceAndDefaults(t *testing.T) {
	e := Coerce(Banners, map[string]any{
		"title":     "  Spring  ",
		"image":     "https://cdn/b.png",
		"order":     "2",
		"active":    "off",
		"startDate": "2025-03-01",
		"endDate":   "",
		"unknown":   "dropped",
	})
	assert.Equal(t, Entity{
		"title":     "Spring",
		"image":     "https://cdn/b.png",
		"order":     2.0,
		"active":    false,
		"startDate": "2025-03-01T00:00:00Z",
		"endDate":   nil,
	}, e)
	require.NoError(t, Validate(Banners, e))

	now := time.Date(2025, 5, 4, 10, 30, 0, 0, time.UTC)
	g := Coerce(Gallery, map[string]any{"title": "a", "titleEn": "a", "type": "image", "order": 1.0, "status": "draft"})
	ApplyDefaults(Gallery, g, now)
	assert.Equal(t, "2025-05-04T10:30:00Z", g["createDate"])
	require.NoError(t, Validate(Gallery, g))

	a := Entity{"isFull": true}
	ApplyDefaults(Articles, a, now)
	assert.Equal(t, true, a["isFull"])
	assert.Equal(t, false, a["isAirline"])
	assert.Equal(t, false, a["showOnHome"])
}

func TestCoerceNested(t *testing.T) {
	e := Coerce(Articles, map[string]any{
		"locations": []any{map[string]any{"name": " Hall ", "lat": "45.5", "lng": -73.0, "x": 1}},
	})
	assert.Equal(t, []any{map[string]any{"name": "Hall", "lat": 45.5, "lng": -73.0}}, e["locations"])
}

func TestAcceptsMIME(t *testing.T) {
	materials, _ := Courses.Property("materials")
	s := materials.Of.Storage
	assert.True(t, AcceptsMIME(s, "application/pdf"))
	assert.True(t, AcceptsMIME(s, "image/png"))
	assert.True(t, AcceptsMIME(s, "video/mp4; codecs=avc1"))
	assert.False(t, AcceptsMIME(s, "application/zip"))
	assert.False(t, AcceptsMIME(s, "imagex/png"))
	assert.True(t, AcceptsMIME(nil, "anything/else"))
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2025-01-02", "2025-01-02T03:04", "2025-01-02T03:04:05", "2025-01-02T04:04:05+01:00"} {
		d, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, time.UTC, d.Location())
	}
	_, err := ParseDate("yesterday")
	assert.Error(t, err)
}
