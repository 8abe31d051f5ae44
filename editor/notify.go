package editor

import (
	"sync"
	"time"

	"github.com/labstack/gommon/log"
)

// Notice is a user-facing message about an upload that could not complete.
type Notice struct {
	TaskID   string    `json:"task_id"`
	FileName string    `json:"file_name"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// Notifier delivers failure notices to the user.
type Notifier interface {
	Notify(Notice)
}

// NoticeQueue buffers notices until the UI drains them.
type NoticeQueue struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify implements Notifier.
func (q *NoticeQueue) Notify(n Notice) {
	q.mu.Lock()
	q.notices = append(q.notices, n)
	q.mu.Unlock()
}

// Drain returns and clears the queued notices.
func (q *NoticeQueue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.notices
	q.notices = nil
	return out
}

// Len returns the number of queued notices.
func (q *NoticeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.notices)
}

// Logger is the subset of echo.Logger the controller writes to.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

func defaultLogger() Logger {
	l := log.New("editor")
	l.SetLevel(log.INFO)
	return l
}

type logNotifier struct{ log Logger }

func (n logNotifier) Notify(no Notice) {
	n.log.Warnf("upload of %s failed: %s", no.FileName, no.Message)
}
