// Package editor implements the embedded image upload controller of the
// rich-text editor. A dropped, pasted or picked image is represented by a
// placeholder in the document while it uploads to object storage, and the
// placeholder is then swapped for an <img> reference or removed on failure.
package editor

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eringen/campusadmin/storage"
)

// DefaultMaxSize is the upload limit used when none is configured.
const DefaultMaxSize = 20 << 20

const placeholderTemplate = `<span class="image-upload-placeholder" data-upload-id="%s" contenteditable="false">Uploading %s... <span class="image-upload-progress">%d%%</span></span>`

func placeholderMarkup(id, name string, progress int) string {
	return fmt.Sprintf(placeholderTemplate, id, html.EscapeString(baseName(name)), progress)
}

// Option configures a Controller.
type Option func(*Controller)

// WithFolder sets the storage folder for uploaded images.
func WithFolder(folder string) Option {
	return func(c *Controller) {
		if folder != "" {
			c.folder = folder
		}
	}
}

// WithMaxSize sets the per-file size limit. Zero or less disables the check.
func WithMaxSize(n int64) Option {
	return func(c *Controller) { c.maxSize = n }
}

// WithCacheControl sets the Cache-Control metadata stored with each image.
func WithCacheControl(v string) Option {
	return func(c *Controller) { c.cacheControl = v }
}

// WithLogger sets the logger for upload failures. Nil keeps the default.
func WithLogger(l Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithNotifier sets where user-facing upload errors are reported. Nil keeps
// the default.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithFinishHook registers fn to be called once for every task that reaches
// a terminal state.
func WithFinishHook(fn func(TaskStatus)) Option {
	return func(c *Controller) { c.onFinish = fn }
}

// Controller owns the upload tasks of one document surface.
type Controller struct {
	surface      Surface
	store        storage.Store
	folder       string
	maxSize      int64
	cacheControl string
	log          Logger
	notifier     Notifier
	onFinish     func(TaskStatus)

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu     sync.Mutex
	tasks  map[string]*task
	order  []string
	closed bool
}

// New returns a controller writing into surface and uploading to store.
func New(surface Surface, store storage.Store, opts ...Option) *Controller {
	ctx, cancel := context.WithCancelCause(context.Background())
	c := &Controller{
		surface: surface,
		store:   store,
		folder:  DefaultFolder,
		maxSize: DefaultMaxSize,
		log:     defaultLogger(),
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(map[string]*task),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = logNotifier{log: c.log}
	}
	return c
}

// Paste handles an image pasted from the clipboard at pos.
func (c *Controller) Paste(ctx context.Context, f File, pos int) (TaskStatus, error) {
	return c.Insert(ctx, f, pos, TriggerPaste)
}

// Drop handles an image dropped onto the editor at pos.
func (c *Controller) Drop(ctx context.Context, f File, pos int) (TaskStatus, error) {
	return c.Insert(ctx, f, pos, TriggerDrop)
}

// Pick handles an image chosen with the toolbar file picker, inserted at pos.
func (c *Controller) Pick(ctx context.Context, f File, pos int) (TaskStatus, error) {
	return c.Insert(ctx, f, pos, TriggerPicker)
}

// Insert validates f, places a placeholder at pos and starts the upload in
// the background. The placeholder is in the document when Insert returns.
// The transfer runs on the controller's lifetime, not ctx; cancel it with
// Cancel or Close.
func (c *Controller) Insert(ctx context.Context, f File, pos int, trigger Trigger) (TaskStatus, error) {
	if err := ctx.Err(); err != nil {
		return TaskStatus{}, err
	}
	if !f.IsImage() {
		return TaskStatus{}, fmt.Errorf("%w: %q", ErrNotImage, f.MIMEType)
	}
	if c.maxSize > 0 && f.Size > c.maxSize {
		return TaskStatus{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, f.Size, c.maxSize)
	}
	if f.Body == nil {
		return TaskStatus{}, ErrNoContent
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return TaskStatus{}, ErrClosed
	}

	id := uuid.NewString()
	markerID, err := c.surface.InsertPlaceholder(pos, placeholderMarkup(id, f.Name, 0))
	if err != nil {
		return TaskStatus{}, fmt.Errorf("insert placeholder: %w", err)
	}

	tctx, cancel := context.WithCancelCause(c.ctx)
	t := &task{
		id:         id,
		markerID:   markerID,
		file:       f,
		targetPath: StorageKey(c.folder, id, f.Name),
		trigger:    trigger,
		state:      StatePending,
		startedAt:  time.Now(),
		cancel:     func() { cancel(ErrCancelled) },
		done:       make(chan struct{}),
	}
	c.tasks[id] = t
	c.order = append(c.order, id)
	st := t.status()

	go c.run(tctx, cancel, t)
	return st, nil
}

func (c *Controller) run(ctx context.Context, cancel context.CancelCauseFunc, t *task) {
	defer close(t.done)
	defer cancel(nil)

	c.mu.Lock()
	t.state = StateUploading
	c.mu.Unlock()

	err := c.store.Put(ctx, storage.Object{
		Key:          t.targetPath,
		ContentType:  t.file.MIMEType,
		CacheControl: c.cacheControl,
		Size:         t.file.Size,
		Body:         t.file.Body,
	}, func(sent, total int64) {
		c.progress(t, cancel, percent(sent, total))
	})
	if err != nil {
		if ctx.Err() != nil {
			c.cancelled(t, context.Cause(ctx), false)
			return
		}
		c.fail(t, &TransferError{Key: t.targetPath, Err: err})
		return
	}

	url, err := c.store.URL(ctx, t.targetPath)
	if err != nil {
		if ctx.Err() != nil {
			c.cancelled(t, context.Cause(ctx), true)
			return
		}
		c.fail(t, &ResolutionError{Key: t.targetPath, Err: err})
		return
	}
	if ctx.Err() != nil {
		c.cancelled(t, context.Cause(ctx), true)
		return
	}

	switch err := c.surface.ReplaceWithImage(t.markerID, url, baseName(t.file.Name)); {
	case errors.Is(err, ErrMarkerNotFound):
		c.cancelled(t, ErrPlaceholderRemoved, true)
	case err != nil:
		c.fail(t, fmt.Errorf("replace placeholder: %w", err))
	default:
		c.finish(t, StateSucceeded, nil, url)
	}
}

// progress applies a new percentage when it moves forward. A placeholder the
// user has deleted aborts the transfer.
func (c *Controller) progress(t *task, cancel context.CancelCauseFunc, p int) {
	p = min(max(p, 0), 100)
	c.mu.Lock()
	if p <= t.progress || t.state.Terminal() {
		c.mu.Unlock()
		return
	}
	t.progress = p
	c.mu.Unlock()

	err := c.surface.UpdatePlaceholder(t.markerID, placeholderMarkup(t.id, t.file.Name, p))
	if errors.Is(err, ErrMarkerNotFound) {
		cancel(ErrPlaceholderRemoved)
	} else if err != nil {
		c.log.Warnf("update placeholder for %s: %v", t.targetPath, err)
	}
}

func (c *Controller) fail(t *task, err error) {
	if rmErr := c.surface.RemoveMarker(t.markerID); rmErr != nil && !errors.Is(rmErr, ErrMarkerNotFound) {
		c.log.Errorf("remove placeholder for %s: %v", t.targetPath, rmErr)
	}
	c.log.Errorf("image upload %s failed: %v", t.targetPath, err)
	st := c.finish(t, StateFailed, err, "")
	c.notifier.Notify(Notice{
		TaskID:   st.ID,
		FileName: st.FileName,
		Message:  err.Error(),
		Time:     st.FinishedAt,
	})
}

func (c *Controller) cancelled(t *task, cause error, uploaded bool) {
	if cause == nil {
		cause = ErrCancelled
	}
	if err := c.surface.RemoveMarker(t.markerID); err != nil && !errors.Is(err, ErrMarkerNotFound) {
		c.log.Errorf("remove placeholder for %s: %v", t.targetPath, err)
	}
	if uploaded {
		dctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.store.Delete(dctx, t.targetPath); err != nil {
			c.log.Warnf("delete orphaned image %s: %v", t.targetPath, err)
		}
	}
	c.log.Infof("image upload %s cancelled: %v", t.targetPath, cause)
	c.finish(t, StateCancelled, cause, "")
}

func (c *Controller) finish(t *task, state State, err error, url string) TaskStatus {
	c.mu.Lock()
	t.state = state
	t.err = err
	t.resultURL = url
	t.finishedAt = time.Now()
	if state == StateSucceeded {
		t.progress = 100
	}
	st := t.status()
	c.mu.Unlock()

	if c.onFinish != nil {
		c.onFinish(st)
	}
	return st
}

// Cancel aborts one task. Cancelling a finished task is a no-op.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	if !ok {
		return ErrUnknownTask
	}
	if !t.state.Terminal() {
		t.cancel()
	}
	return nil
}

// Close cancels every unfinished task, waits for them and rejects further
// inserts. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel(ErrCancelled)
	c.Wait()
}

// Wait blocks until every task started so far is terminal.
func (c *Controller) Wait() {
	for _, done := range c.pendingDone() {
		<-done
	}
}

// Await blocks until task id is terminal or ctx is done.
func (c *Controller) Await(ctx context.Context, id string) (TaskStatus, error) {
	c.mu.Lock()
	t, ok := c.tasks[id]
	c.mu.Unlock()
	if !ok {
		return TaskStatus{}, ErrUnknownTask
	}
	select {
	case <-t.done:
	case <-ctx.Done():
		return TaskStatus{}, ctx.Err()
	}
	st, _ := c.Task(id)
	return st, nil
}

func (c *Controller) pendingDone() []chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []chan struct{}
	for _, t := range c.tasks {
		out = append(out, t.done)
	}
	return out
}

// Task returns a snapshot of task id.
func (c *Controller) Task(id string) (TaskStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	if !ok {
		return TaskStatus{}, false
	}
	return t.status(), true
}

// Tasks returns snapshots of all tasks in insertion order.
func (c *Controller) Tasks() []TaskStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TaskStatus, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tasks[id].status())
	}
	return out
}

// Pending returns the number of tasks that have not finished.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tasks {
		if !t.state.Terminal() {
			n++
		}
	}
	return n
}
