package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	in := `<p style="text-align: center" onclick="x()">Hi<script>alert(1)</script></p>` +
		`<img src="https://cdn.test/a.png" alt="a" onerror="x()">`
	out := Sanitize(in)
	assert.NotContains(t, out, "script")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "onerror")
	assert.Contains(t, out, `<img src="https://cdn.test/a.png" alt="a">`)
	assert.Contains(t, out, "text-align: center")
}

func TestImageURLs(t *testing.T) {
	html := `<p><img src="https://cdn.test/a.png"> text <img src="https://cdn.test/b.png" alt="b"></p>` +
		`<img src="https://cdn.test/a.png"><img alt="no src">`
	assert.Equal(t, []string{"https://cdn.test/a.png", "https://cdn.test/b.png"}, ImageURLs(html))
	assert.Empty(t, ImageURLs("<p>none</p>"))
}

func TestHasPlaceholders(t *testing.T) {
	assert.True(t, HasPlaceholders(`<p><span class="image-upload-placeholder" data-upload-id="x">Uploading</span></p>`))
	assert.False(t, HasPlaceholders(`<p><img src="a.png"></p>`))
}

func TestPlainText(t *testing.T) {
	html := "<h1>Summer</h1>\n<p>Camp   starts <b>soon</b>.</p><script>x()</script>"
	assert.Equal(t, "Summer Camp starts soon.", PlainText(html, 0))

	long := "<p>" + strings.Repeat("word ", 50) + "</p>"
	got := PlainText(long, 22)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.LessOrEqual(t, len([]rune(got)), 23)
	assert.Equal(t, "word word word word…", got)
}

func TestRenderMultiline(t *testing.T) {
	out, err := RenderMultiline("Great teachers!\nVisit https://example.com <script>x</script>")
	require.NoError(t, err)
	assert.Contains(t, out, "<br>")
	assert.Contains(t, out, `href="https://example.com"`)
	assert.NotContains(t, out, "<script>")
}

func TestKeyForURL(t *testing.T) {
	key, ok := KeyForURL("https://cdn.test/media", "https://cdn.test/media/articles/images/x_cat.png")
	require.True(t, ok)
	assert.Equal(t, "articles/images/x_cat.png", key)

	_, ok = KeyForURL("https://cdn.test/media", "https://elsewhere.test/media/a.png")
	assert.False(t, ok)
	_, ok = KeyForURL("", "https://cdn.test/a.png")
	assert.False(t, ok)
}
