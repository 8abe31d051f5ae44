package campusadmin

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eringen/campusadmin/collections"
	"github.com/eringen/campusadmin/storage"
	"github.com/eringen/campusadmin/uploadlog"
)

const (
	testPassword = "secret"
	testMediaURL = "http://media.test"
)

func newTestApp(t *testing.T, objects storage.Store, tweak ...func(*SiteConfig)) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := SiteConfig{
		Name:          "Test Campus",
		URL:           "http://campus.test",
		AdminPassword: testPassword,
		SessionSecret: "0123456789abcdef0123456789abcdef",
		DatabasePath:  filepath.Join(dir, "campus.db"),
		UploadLogPath: filepath.Join(dir, "uploads.db"),
		Storage:       StorageConfig{Backend: BackendMemory, BaseURL: testMediaURL},
	}
	for _, fn := range tweak {
		fn(&cfg)
	}
	a := New(cfg, ViewFuncs{}, WithObjectStore(objects))
	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// client replays cookies between requests and sends the CSRF token.
type client struct {
	t       *testing.T
	app     *App
	cookies map[string]*http.Cookie
	csrf    string
}

func newClient(t *testing.T, a *App) *client {
	return &client{t: t, app: a, cookies: make(map[string]*http.Cookie)}
}

func (c *client) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, ck := range c.cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	rec := httptest.NewRecorder()
	c.app.Echo.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	if ck, ok := c.cookies["_csrf"]; ok {
		c.csrf = ck.Value
	}
	return rec
}

func (c *client) json(method, target string, payload any) *httptest.ResponseRecorder {
	c.t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	return c.do(method, target, body, "application/json")
}

func (c *client) upload(target, field, name string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			c.t.Fatalf("write field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		c.t.Fatalf("create form file: %v", err)
	}
	fw.Write(data)
	mw.Close()
	return c.do(http.MethodPost, target, &buf, mw.FormDataContentType())
}

func (c *client) login() {
	c.t.Helper()
	c.do(http.MethodGet, "/admin/", nil, "")
	form := url.Values{"password": {testPassword}}
	rec := c.do(http.MethodPost, "/admin/login/", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if rec.Code != http.StatusSeeOther {
		c.t.Fatalf("login: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func validArticle(title string) collections.Entity {
	return collections.Entity{
		"title":       title,
		"titleEn":     title + " (en)",
		"cover":       testMediaURL + "/articles/covers/c.jpg",
		"content":     "<p>Hello</p>",
		"category":    "news",
		"publishDate": "2024-05-01T00:00:00Z",
		"status":      "published",
		"isFull":      false,
		"isAirline":   false,
		"showOnHome":  false,
	}
}

func seed(t *testing.T, a *App, collection string, data collections.Entity) Document {
	t.Helper()
	doc, err := a.Store.SaveDocument(context.Background(), collection, Document{Data: data})
	if err != nil {
		t.Fatalf("seed %s: %v", collection, err)
	}
	return doc
}

func TestInitRequiresSecrets(t *testing.T) {
	a := New(SiteConfig{SessionSecret: "x"}, ViewFuncs{})
	if err := a.Init(context.Background()); err == nil {
		t.Fatal("expected error without AdminPassword")
	}
	a = New(SiteConfig{AdminPassword: "x"}, ViewFuncs{})
	if err := a.Init(context.Background()); err == nil {
		t.Fatal("expected error without SessionSecret")
	}
}

func TestInitRejectsS3WithoutPublicBaseURL(t *testing.T) {
	dir := t.TempDir()
	a := New(SiteConfig{
		AdminPassword: "x",
		SessionSecret: "x",
		DatabasePath:  filepath.Join(dir, "campus.db"),
		UploadLogPath: filepath.Join(dir, "uploads.db"),
		Storage: StorageConfig{
			Backend: BackendS3,
			S3:      storage.S3Config{Bucket: "media", Region: "eu-central-1"},
		},
	}, ViewFuncs{})
	err := a.Init(context.Background())
	if err == nil {
		t.Fatal("expected error for S3 storage without a public base URL")
	}
	if !strings.Contains(err.Error(), "public base URL") {
		t.Errorf("error = %v", err)
	}
	if a.Store != nil {
		t.Error("nothing should be opened before the configuration is rejected")
	}
}

func TestAdminRequiresLogin(t *testing.T) {
	a := newTestApp(t, storage.NewMemoryStore(testMediaURL))
	c := newClient(t, a)

	rec := c.do(http.MethodGet, "/admin/api/collections/", nil, "")
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = c.do(http.MethodGet, "/admin/edit/articles/new/content/", nil, "")
	expectStatus(t, rec, http.StatusSeeOther)

	rec = c.do(http.MethodGet, "/admin/metrics", nil, "")
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestLoginWrongPassword(t *testing.T) {
	a := newTestApp(t, storage.NewMemoryStore(testMediaURL))
	c := newClient(t, a)
	c.do(http.MethodGet, "/admin/", nil, "")

	form := url.Values{"password": {"nope"}}
	rec := c.do(http.MethodPost, "/admin/login/", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	expectStatus(t, rec, http.StatusUnauthorized)
	if !strings.Contains(rec.Body.String(), "Wrong password") {
		t.Fatalf("expected login error, got %s", rec.Body.String())
	}
}

func TestPostWithoutCSRFTokenIsForbidden(t *testing.T) {
	a := newTestApp(t, storage.NewMemoryStore(testMediaURL))
	c := newClient(t, a)
	c.login()
	c.csrf = ""
	delete(c.cookies, "_csrf")

	rec := c.do(http.MethodPost, "/admin/api/collections/banners/", strings.NewReader(`{}`), "application/json")
	expectStatus(t, rec, http.StatusForbidden)
}

func TestDashboardShowsCounts(t *testing.T) {
	a := newTestApp(t, storage.NewMemoryStore(testMediaURL))
	seed(t, a, "articles", validArticle("One"))
	c := newClient(t, a)
	c.login()

	rec := c.do(http.MethodGet, "/admin/", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "<td>Articles</td><td>1</td>") {
		t.Fatalf("dashboard missing article count: %s", rec.Body.String())
	}
}

func TestCollectionCRUD(t *testing.T) {
	a := newTestApp(t, storage.NewMemoryStore(testMediaURL))
	c := newClient(t, a)
	c.login()

	rec := c.do(http.MethodGet, "/admin/api/collections/", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if cols := decode[[]collections.Collection](t, rec); len(cols) != len(collections.All()) {
		t.Fatalf("got %d collections", len(cols))
	}

	rec = c.json(http.MethodPost, "/admin/api/collections/banners/", map[string]any{})
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	errs := decode[errorResponse](t, rec).Errors
	for _, field := range []string{"title", "image", "order"} {
		if errs[field] == "" {
			t.Errorf("expected a validation error for %s, got %v", field, errs)
		}
	}

	rec = c.json(http.MethodPost, "/admin/api/collections/banners/", map[string]any{
		"title": "Open day",
		"image": testMediaURL + "/banners/b.jpg",
		"order": "3",
		"bogus": "dropped",
	})
	expectStatus(t, rec, http.StatusCreated)
	created := decode[Document](t, rec)
	if created.Data["active"] != true {
		t.Errorf("active default not applied: %v", created.Data)
	}
	if created.Data["order"] != 3.0 {
		t.Errorf("order not coerced: %v", created.Data["order"])
	}
	if _, ok := created.Data["bogus"]; ok {
		t.Errorf("unknown key kept: %v", created.Data)
	}

	path := "/admin/api/collections/banners/" + created.ID + "/"
	rec = c.json(http.MethodPut, path, map[string]any{
		"title": "Open day 2025",
		"image": testMediaURL + "/banners/b.jpg",
		"order": 1,
	})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[Document](t, rec).Data["title"]; got != "Open day 2025" {
		t.Errorf("title = %v after update", got)
	}

	rec = c.do(http.MethodGet, "/admin/api/collections/banners/?order=order", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if docs := decode[[]Document](t, rec); len(docs) != 1 {
		t.Fatalf("got %d banners", len(docs))
	}

	rec = c.do(http.MethodGet, "/admin/api/collections/banners/?nope=1", nil, "")
	expectStatus(t, rec, http.StatusBadRequest)

	rec = c.do(http.MethodDelete, path, nil, "")
	expectStatus(t, rec, http.StatusNoContent)
	rec = c.do(http.MethodGet, path, nil, "")
	expectStatus(t, rec, http.StatusNotFound)

	rec = c.do(http.MethodGet, "/admin/api/collections/nope/", nil, "")
	expectStatus(t, rec, http.StatusNotFound)
}

func TestCreateArticleSanitizesContent(t *testing.T) {
	a := newTestApp(t, storage.NewMemoryStore(testMediaURL))
	c := newClient(t, a)
	c.login()

	in := validArticle("Safe")
	in["content"] = `<p onclick="x()">Hi<script>alert(1)</script></p>`
	rec := c.json(http.MethodPost, "/admin/api/collections/articles/", in)
	expectStatus(t, rec, http.StatusCreated)
	body := decode[Document](t, rec).Data["content"].(string)
	if strings.Contains(body, "script") || strings.Contains(body, "onclick") {
		t.Fatalf("content not sanitized: %s", body)
	}

	in["content"] = `<p>Hi<span class="image-upload-placeholder" data-upload-id="x">Uploading a.png... 10%</span></p>`
	rec = c.json(http.MethodPost, "/admin/api/collections/articles/", in)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if decode[errorResponse](t, rec).Errors["content"] == "" {
		t.Fatal("expected a content error for pending uploads")
	}
}

func TestUpdateKeepsDisabledFields(t *testing.T) {
	a := newTestApp(t, storage.NewMemoryStore(testMediaURL))
	c := newClient(t, a)
	c.login()

	item := map[string]any{"title": "t", "titleEn": "t", "type": "image", "order": 1, "status": "published"}
	rec := c.json(http.MethodPost, "/admin/api/collections/gallery/", item)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[Document](t, rec)
	stamp := created.Data["createDate"]
	if stamp == nil {
		t.Fatal("createDate default not applied")
	}

	item["createDate"] = "2000-01-01"
	rec = c.json(http.MethodPut, "/admin/api/collections/gallery/"+created.ID+"/", item)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[Document](t, rec).Data["createDate"]; got != stamp {
		t.Fatalf("createDate = %v, want %v", got, stamp)
	}
}

func TestDeleteDocumentRemovesEditorImages(t *testing.T) {
	mem := storage.NewMemoryStore(testMediaURL)
	a := newTestApp(t, mem)
	ctx := context.Background()
	for _, key := range []string{"articles/images/1_cat.png", "articles/covers/c.jpg"} {
		if err := mem.Put(ctx, storage.Object{Key: key, Size: 1, Body: strings.NewReader("x")}, nil); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	art := validArticle("With image")
	art["content"] = `<p><img src="` + testMediaURL + `/articles/images/1_cat.png"><img src="` +
		testMediaURL + `/articles/covers/c.jpg"><img src="https://elsewhere.test/x.png"></p>`
	doc := seed(t, a, "articles", art)

	c := newClient(t, a)
	c.login()
	rec := c.do(http.MethodDelete, "/admin/api/collections/articles/"+doc.ID+"/", nil, "")
	expectStatus(t, rec, http.StatusNoContent)

	if _, ok := mem.Bytes("articles/images/1_cat.png"); ok {
		t.Error("embedded editor image should be deleted")
	}
	if _, ok := mem.Bytes("articles/covers/c.jpg"); !ok {
		t.Error("objects outside the editor folder must be kept")
	}
}

func TestDeleteDocumentKeepsImagesSharedWithOtherDocuments(t *testing.T) {
	mem := storage.NewMemoryStore(testMediaURL)
	a := newTestApp(t, mem)
	ctx := context.Background()
	const key = "articles/images/1_cat.png"
	if err := mem.Put(ctx, storage.Object{Key: key, Size: 1, Body: strings.NewReader("x")}, nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	shared := `<p><img src="` + testMediaURL + "/" + key + `"></p>`
	first := validArticle("First")
	first["content"] = shared
	second := validArticle("Second")
	second["content"] = shared
	docA := seed(t, a, "articles", first)
	docB := seed(t, a, "articles", second)

	c := newClient(t, a)
	c.login()
	rec := c.do(http.MethodDelete, "/admin/api/collections/articles/"+docA.ID+"/", nil, "")
	expectStatus(t, rec, http.StatusNoContent)
	if _, ok := mem.Bytes(key); !ok {
		t.Fatal("image still embedded by another article must be kept")
	}

	rec = c.do(http.MethodDelete, "/admin/api/collections/articles/"+docB.ID+"/", nil, "")
	expectStatus(t, rec, http.StatusNoContent)
	if _, ok := mem.Bytes(key); ok {
		t.Error("image should be deleted once no document embeds it")
	}
}

func TestPublicEndpoints(t *testing.T) {
	a := newTestApp(t, storage.NewMemoryStore(testMediaURL))

	seed(t, a, "banners", collections.Entity{"title": "second", "image": "b2", "order": 2.0, "active": true})
	seed(t, a, "banners", collections.Entity{"title": "first", "image": "b1", "order": 1.0, "active": true})
	seed(t, a, "banners", collections.Entity{"title": "hidden", "image": "b3", "order": 0.0, "active": false})
	seed(t, a, "banners", collections.Entity{
		"title": "expired", "image": "b4", "order": 3.0, "active": true,
		"startDate": "2000-01-01T00:00:00Z", "endDate": "2000-02-01T00:00:00Z",
	})

	older := validArticle("Older")
	older["publishDate"] = "2024-01-01T00:00:00Z"
	newer := validArticle("Newer")
	newer["showOnHome"] = true
	newer["category"] = "summerCamp"
	draft := validArticle("Draft")
	draft["status"] = "draft"
	seed(t, a, "articles", older)
	newerDoc := seed(t, a, "articles", newer)
	seed(t, a, "articles", draft)

	seed(t, a, "testimonials", collections.Entity{"body": "Great\nschool", "author": "Parent", "date": "2024"})

	c := newClient(t, a)

	rec := c.do(http.MethodGet, "/api/banners/", nil, "")
	expectStatus(t, rec, http.StatusOK)
	banners := decode[[]Banner](t, rec)
	if len(banners) != 2 || banners[0].Title != "first" || banners[1].Title != "second" {
		t.Fatalf("banners = %+v", banners)
	}

	rec = c.do(http.MethodGet, "/api/articles/", nil, "")
	expectStatus(t, rec, http.StatusOK)
	arts := decode[[]ArticleSummary](t, rec)
	if len(arts) != 2 || arts[0].Title != "Newer" || arts[1].Title != "Older" {
		t.Fatalf("articles = %+v", arts)
	}
	if arts[0].Excerpt != "Hello" {
		t.Errorf("excerpt = %q", arts[0].Excerpt)
	}

	rec = c.do(http.MethodGet, "/api/articles/?home=1", nil, "")
	if arts := decode[[]ArticleSummary](t, rec); len(arts) != 1 || arts[0].ID != newerDoc.ID {
		t.Fatalf("home articles = %+v", arts)
	}
	rec = c.do(http.MethodGet, "/api/articles/?category=news", nil, "")
	if arts := decode[[]ArticleSummary](t, rec); len(arts) != 1 || arts[0].Title != "Older" {
		t.Fatalf("news articles = %+v", arts)
	}
	rec = c.do(http.MethodGet, "/api/articles/?category=nope", nil, "")
	expectStatus(t, rec, http.StatusBadRequest)

	rec = c.do(http.MethodGet, "/api/articles/"+newerDoc.ID+"/", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if art := decode[articleResponse](t, rec); art.Content != "<p>Hello</p>" || !strings.Contains(art.JsonLD, `"headline":"Newer"`) {
		t.Fatalf("article = %+v", art)
	}

	rec = c.do(http.MethodGet, "/api/testimonials/", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if ts := decode[[]Testimonial](t, rec); len(ts) != 1 || !strings.Contains(ts[0].BodyHTML, "<br") {
		t.Fatalf("testimonials = %+v", ts)
	}

	rec = c.do(http.MethodGet, "/feed.xml", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if body := rec.Body.String(); !strings.Contains(body, "<title>Newer</title>") || strings.Contains(body, "Draft") {
		t.Fatalf("feed = %s", body)
	}

	rec = c.do(http.MethodGet, "/sitemap.xml", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "http://campus.test/articles/"+newerDoc.ID+"/") {
		t.Fatalf("sitemap = %s", rec.Body.String())
	}
}

func TestAdminWritesInvalidatePublicCache(t *testing.T) {
	a := newTestApp(t, storage.NewMemoryStore(testMediaURL))
	c := newClient(t, a)

	rec := c.do(http.MethodGet, "/api/gallery/", nil, "")
	if items := decode[[]GalleryItem](t, rec); len(items) != 0 {
		t.Fatalf("expected empty gallery, got %v", items)
	}

	c.login()
	rec = c.json(http.MethodPost, "/admin/api/collections/gallery/", map[string]any{
		"title": "t", "titleEn": "t", "type": "image", "order": 1, "status": "published",
	})
	expectStatus(t, rec, http.StatusCreated)

	rec = c.do(http.MethodGet, "/api/gallery/", nil, "")
	if items := decode[[]GalleryItem](t, rec); len(items) != 1 {
		t.Fatalf("expected the new item after invalidation, got %v", items)
	}
}

func TestFieldUpload(t *testing.T) {
	mem := storage.NewMemoryStore(testMediaURL)
	a := newTestApp(t, mem)
	c := newClient(t, a)
	c.login()

	rec := c.upload("/admin/api/collections/articles/fields/cover/upload/", "file", "My Cover.png", pngBytes(t, 2000, 100), nil)
	expectStatus(t, rec, http.StatusCreated)
	up := decode[FieldUpload](t, rec)
	if up.Width != 1600 || up.Height != 80 {
		t.Errorf("size = %dx%d, want 1600x80", up.Width, up.Height)
	}
	if !strings.HasPrefix(up.Key, "articles/covers/") || !strings.HasSuffix(up.Key, "_my-cover.png") {
		t.Errorf("key = %q", up.Key)
	}
	if up.Value != up.URL || !strings.HasPrefix(up.URL, testMediaURL+"/articles/covers/") {
		t.Errorf("value = %q, url = %q", up.Value, up.URL)
	}
	stored, ok := mem.Bytes(up.Key)
	if !ok {
		t.Fatal("object not stored")
	}
	if cfg, err := png.DecodeConfig(bytes.NewReader(stored)); err != nil || cfg.Width != 1600 {
		t.Errorf("stored image: %v %+v", err, cfg)
	}

	rec = c.upload("/admin/api/collections/articles/fields/cover/upload/", "file", "notes.png", []byte("plain text"), nil)
	expectStatus(t, rec, http.StatusUnsupportedMediaType)

	rec = c.upload("/admin/api/collections/articles/fields/title/upload/", "file", "a.png", pngBytes(t, 2, 2), nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = c.do(http.MethodGet, "/admin/api/uploads/recent/", nil, "")
	expectStatus(t, rec, http.StatusOK)
	recent := decode[[]uploadlog.Record](t, rec)
	if len(recent) != 1 || recent[0].Key != up.Key || recent[0].Source != "field" || recent[0].State != "succeeded" {
		t.Fatalf("recent uploads = %+v", recent)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t, storage.NewMemoryStore(testMediaURL))
	c := newClient(t, a)
	c.login()

	rec := c.do(http.MethodGet, "/admin/metrics", nil, "")
	expectStatus(t, rec, http.StatusOK)
	for _, want := range []string{"campusadmin_editor_sessions", "go_goroutines"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}
