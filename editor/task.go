package editor

import (
	"context"
	"time"
)

// State is the lifecycle state of an upload task.
type State int

const (
	StatePending State = iota
	StateUploading
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateUploading:
		return "uploading"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// TaskStatus is an immutable snapshot of an upload task.
type TaskStatus struct {
	ID         string    `json:"id"`
	MarkerID   MarkerID  `json:"marker_id"`
	FileName   string    `json:"file_name"`
	MIMEType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	TargetPath string    `json:"target_path"`
	Trigger    Trigger   `json:"trigger"`
	Progress   int       `json:"progress"`
	State      State     `json:"state"`
	ResultURL  string    `json:"result_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Err        error     `json:"-"`
}

// task is the controller's mutable record; guarded by Controller.mu.
type task struct {
	id         string
	markerID   MarkerID
	file       File
	targetPath string
	trigger    Trigger
	progress   int
	state      State
	resultURL  string
	err        error
	startedAt  time.Time
	finishedAt time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

func (t *task) status() TaskStatus {
	st := TaskStatus{
		ID:         t.id,
		MarkerID:   t.markerID,
		FileName:   t.file.Name,
		MIMEType:   t.file.MIMEType,
		Size:       t.file.Size,
		TargetPath: t.targetPath,
		Trigger:    t.trigger,
		Progress:   t.progress,
		State:      t.state,
		ResultURL:  t.resultURL,
		StartedAt:  t.startedAt,
		FinishedAt: t.finishedAt,
		Err:        t.err,
	}
	if t.err != nil {
		st.Error = t.err.Error()
	}
	return st
}

// percent maps transferred bytes to [0,100]. Unknown totals report 0.
func percent(sent, total int64) int {
	if total <= 0 || sent <= 0 {
		return 0
	}
	if sent >= total {
		return 100
	}
	return int(sent * 100 / total)
}
