package campusadmin

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/eringen/campusadmin/collections"
	"github.com/eringen/campusadmin/content"
	"github.com/eringen/campusadmin/editor"
	"github.com/eringen/campusadmin/uploadlog"
)

// editorCacheControl is stored with embedded images; their keys are unique.
const editorCacheControl = "public,max-age=31536000,immutable"

// EditSession is a server-side rich-text document being edited in the admin,
// with the image uploads running into it.
type EditSession struct {
	ID         string
	Collection string
	DocumentID string // empty for a document not saved yet
	Field      string
	Doc        *editor.HTMLDocument
	Uploads    *editor.Controller
	Notices    *editor.NoticeQueue

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *EditSession) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *EditSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*EditSession
	ttl      time.Duration
	log      editor.Logger
	onChange func(open int)
	stop     chan struct{}
	once     sync.Once
}

func newSessionRegistry(ttl time.Duration, log editor.Logger, onChange func(int)) *sessionRegistry {
	r := &sessionRegistry{
		sessions: make(map[string]*EditSession),
		ttl:      ttl,
		log:      log,
		onChange: onChange,
		stop:     make(chan struct{}),
	}
	go r.sweepLoop(max(ttl/4, time.Second))
	return r
}

func (r *sessionRegistry) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			r.sweep(now)
		case <-r.stop:
			return
		}
	}
}

// sweep closes sessions idle for longer than the TTL and returns how many.
func (r *sessionRegistry) sweep(now time.Time) int {
	var expired []*EditSession
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) > r.ttl {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	open := len(r.sessions)
	r.mu.Unlock()

	for _, s := range expired {
		r.log.Infof("closing idle editing session %s (%s/%s)", s.ID, s.Collection, s.Field)
		s.Uploads.Close()
	}
	if len(expired) > 0 {
		r.changed(open)
	}
	return len(expired)
}

func (r *sessionRegistry) changed(open int) {
	if r.onChange != nil {
		r.onChange(open)
	}
}

func (r *sessionRegistry) add(s *EditSession) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	open := len(r.sessions)
	r.mu.Unlock()
	r.changed(open)
}

func (r *sessionRegistry) get(id string) (*EditSession, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		s.touch(time.Now())
	}
	return s, ok
}

// remove closes a session, cancelling its unfinished uploads.
func (r *sessionRegistry) remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	open := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Uploads.Close()
	r.changed(open)
	return true
}

func (r *sessionRegistry) close() {
	r.once.Do(func() { close(r.stop) })
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*EditSession)
	r.mu.Unlock()
	for _, s := range all {
		s.Uploads.Close()
	}
	r.changed(0)
}

// sessionView is the JSON shape of a session.
type sessionView struct {
	ID         string              `json:"id"`
	Collection string              `json:"collection"`
	DocumentID string              `json:"document_id,omitempty"`
	Field      string              `json:"field"`
	Content    string              `json:"content"`
	Pending    int                 `json:"pending"`
	Tasks      []editor.TaskStatus `json:"tasks"`
	Notices    []editor.Notice     `json:"notices,omitempty"`
}

func viewOf(s *EditSession, drain bool) sessionView {
	v := sessionView{
		ID:         s.ID,
		Collection: s.Collection,
		DocumentID: s.DocumentID,
		Field:      s.Field,
		Content:    s.Doc.String(),
		Pending:    s.Uploads.Pending(),
		Tasks:      s.Uploads.Tasks(),
	}
	if drain {
		v.Notices = s.Notices.Drain()
	}
	return v
}

type openSessionRequest struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Field      string `json:"field"`
}

func (a *App) handleOpenSession(c echo.Context) error {
	var req openSessionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	col, ok := collections.Get(req.Collection)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown collection")
	}
	if p, ok := col.Property(req.Field); !ok || !p.RichText {
		return echo.NewHTTPError(http.StatusBadRequest, "not a rich-text field")
	}
	var initial string
	if req.ID != "" {
		doc, err := a.Store.GetDocument(c.Request().Context(), col.ID, req.ID)
		if err != nil {
			return notFound(err)
		}
		initial, _ = doc.Data[req.Field].(string)
	}
	s := a.newEditSession(col.ID, req.ID, req.Field, initial)
	a.sessions.add(s)
	return c.JSON(http.StatusCreated, viewOf(s, false))
}

func (a *App) newEditSession(collection, docID, field, initial string) *EditSession {
	s := &EditSession{
		ID:         uuid.NewString(),
		Collection: collection,
		DocumentID: docID,
		Field:      field,
		Doc:        editor.NewHTMLDocument(initial),
		Notices:    &editor.NoticeQueue{},
		lastSeen:   time.Now(),
	}
	s.Uploads = editor.New(s.Doc, a.Objects,
		editor.WithFolder(a.Config.EditorFolder),
		editor.WithMaxSize(a.Config.MaxUploadSize),
		editor.WithCacheControl(editorCacheControl),
		editor.WithLogger(a.Echo.Logger),
		editor.WithNotifier(s.Notices),
		editor.WithFinishHook(func(st editor.TaskStatus) {
			a.editorUploadFinished(collection, st)
		}),
	)
	return s
}

func (a *App) editorUploadFinished(collection string, st editor.TaskStatus) {
	a.metrics.recordEditorUpload(st)
	if err := a.Uploads.Save(context.Background(), uploadlog.FromTask(collection, st)); err != nil {
		a.Echo.Logger.Errorf("record upload: %v", err)
	}
}

func (a *App) session(c echo.Context) (*EditSession, error) {
	s, ok := a.sessions.get(c.Param("sid"))
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "editing session not found")
	}
	return s, nil
}

func (a *App) handleGetSession(c echo.Context) error {
	s, err := a.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, viewOf(s, true))
}

func (a *App) handleCloseSession(c echo.Context) error {
	if !a.sessions.remove(c.Param("sid")) {
		return echo.NewHTTPError(http.StatusNotFound, "editing session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// editRequest positions count UTF-16 code units of the session content, as
// JavaScript string indices do.
type editRequest struct {
	Op     string `json:"op"` // insert or delete
	Pos    int    `json:"pos"`
	Text   string `json:"text"`
	Length int    `json:"length"`
}

// handleSessionEdit applies a user edit. Edits shift the placeholders of
// running uploads; deleting across a placeholder removes it whole.
func (a *App) handleSessionEdit(c echo.Context) error {
	s, err := a.session(c)
	if err != nil {
		return err
	}
	var req editRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	switch req.Op {
	case "insert":
		err = s.Doc.InsertUTF16(req.Pos, req.Text)
	case "delete":
		err = s.Doc.DeleteUTF16(req.Pos, req.Length)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "op must be insert or delete")
	}
	if err != nil {
		return editorHTTPError(err)
	}
	return c.JSON(http.StatusOK, viewOf(s, false))
}

type imageAccepted struct {
	Task    editor.TaskStatus `json:"task"`
	Content string            `json:"content"`
}

// handleSessionImage starts an upload of the multipart "image" file at form
// position "pos" (UTF-16 code units, like edits). "trigger" tells paste,
// drop and picker apart.
func (a *App) handleSessionImage(c echo.Context) error {
	s, err := a.session(c)
	if err != nil {
		return err
	}
	pos, err := strconv.Atoi(c.FormValue("pos"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid pos")
	}
	trigger, err := editor.ParseTrigger(c.FormValue("trigger"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no image provided")
	}

	src, err := fh.Open()
	if err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(src, a.Config.MaxUploadSize+1))
	src.Close()
	if err != nil {
		return err
	}
	f := editor.File{
		Name:     fh.Filename,
		MIMEType: detectedMIME(data),
		Size:     fh.Size,
	}
	// multipart temp files are removed when the request ends, so the
	// payload is buffered for the background upload
	if int64(len(data)) <= a.Config.MaxUploadSize {
		f.Size = int64(len(data))
		f.Body = bytes.NewReader(data)
	}

	at, err := s.Doc.ByteOffset(pos)
	if err != nil {
		return editorHTTPError(err)
	}
	st, err := s.Uploads.Insert(c.Request().Context(), f, at, trigger)
	if err != nil {
		return editorHTTPError(err)
	}
	return c.JSON(http.StatusAccepted, imageAccepted{Task: st, Content: s.Doc.String()})
}

func detectedMIME(data []byte) string {
	mime := mimetype.Detect(data).String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return mime
}

// handleGetTask returns one upload. ?wait=1 blocks until it finishes.
func (a *App) handleGetTask(c echo.Context) error {
	s, err := a.session(c)
	if err != nil {
		return err
	}
	tid := c.Param("tid")
	if c.QueryParam("wait") == "1" {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
		defer cancel()
		st, err := s.Uploads.Await(ctx, tid)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return editorHTTPError(err)
		}
		if err == nil {
			return c.JSON(http.StatusOK, st)
		}
	}
	st, ok := s.Uploads.Task(tid)
	if !ok {
		return editorHTTPError(editor.ErrUnknownTask)
	}
	return c.JSON(http.StatusOK, st)
}

func (a *App) handleCancelTask(c echo.Context) error {
	s, err := a.session(c)
	if err != nil {
		return err
	}
	tid := c.Param("tid")
	if err := s.Uploads.Cancel(tid); err != nil {
		return editorHTTPError(err)
	}
	st, _ := s.Uploads.Task(tid)
	return c.JSON(http.StatusAccepted, st)
}

// handleSaveSession writes the edited HTML back to its document. Sessions
// without a document just return the sanitized content.
func (a *App) handleSaveSession(c echo.Context) error {
	s, err := a.session(c)
	if err != nil {
		return err
	}
	if n := s.Uploads.Pending(); n > 0 {
		return echo.NewHTTPError(http.StatusConflict,
			strconv.Itoa(n)+" image upload(s) still in progress")
	}
	html := s.Doc.String()
	if s.DocumentID == "" {
		return c.JSON(http.StatusOK, map[string]string{"content": content.Sanitize(html)})
	}

	col, _ := collections.Get(s.Collection)
	ctx := c.Request().Context()
	existing, err := a.Store.GetDocument(ctx, col.ID, s.DocumentID)
	if err != nil {
		return notFound(err)
	}
	in := make(map[string]any, len(existing.Data)+1)
	for k, v := range existing.Data {
		in[k] = v
	}
	in[s.Field] = html
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

// editorHTTPError maps controller and document errors to HTTP statuses.
func editorHTTPError(err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, editor.ErrNotImage):
		code = http.StatusUnsupportedMediaType
	case errors.Is(err, editor.ErrTooLarge):
		code = http.StatusRequestEntityTooLarge
	case errors.Is(err, editor.ErrNoContent), errors.Is(err, editor.ErrOutOfRange):
		code = http.StatusBadRequest
	case errors.Is(err, editor.ErrInsideMarker):
		code = http.StatusConflict
	case errors.Is(err, editor.ErrClosed):
		code = http.StatusGone
	case errors.Is(err, editor.ErrUnknownTask):
		code = http.StatusNotFound
	default:
		return err
	}
	return echo.NewHTTPError(code, err.Error()).SetInternal(err)
}
