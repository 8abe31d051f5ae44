// Package uploadlog keeps an audit trail of image and file uploads and
// aggregates it for the admin dashboard.
package uploadlog

import (
	"time"

	"github.com/eringen/campusadmin/editor"
)

// Sources of an upload.
const (
	SourceEditor = "editor"
	SourceField  = "field"
)

// Record is one finished upload.
type Record struct {
	ID         int64     `json:"-"`
	TaskID     string    `json:"task_id"`
	Key        string    `json:"key"`
	Source     string    `json:"source"`     // editor or field
	Collection string    `json:"collection"` // collection the upload belongs to
	Trigger    string    `json:"trigger,omitempty"`
	MIMEType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	State      string    `json:"state"` // succeeded, failed, cancelled
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// FromTask builds a record for a finished editor upload.
func FromTask(collection string, st editor.TaskStatus) Record {
	finished := st.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	return Record{
		TaskID:     st.ID,
		Key:        st.TargetPath,
		Source:     SourceEditor,
		Collection: collection,
		Trigger:    st.Trigger.String(),
		MIMEType:   st.MIMEType,
		Size:       st.Size,
		State:      st.State.String(),
		Error:      st.Error,
		DurationMS: finished.Sub(st.StartedAt).Milliseconds(),
		Timestamp:  finished.UTC(),
	}
}

// Stats holds aggregated upload data.
type Stats struct {
	Period        string          `json:"period"`
	Total         int             `json:"total"`
	Succeeded     int             `json:"succeeded"`
	Failed        int             `json:"failed"`
	Cancelled     int             `json:"cancelled"`
	Bytes         int64           `json:"bytes"`
	AvgDurationMS int             `json:"avg_duration_ms"`
	TopMIMETypes  []DimensionStat `json:"mime_types"`
	ByCollection  []DimensionStat `json:"collections"`
	Series        []SeriesPoint   `json:"series"`
}

// DimensionStat is a count for one value of a dimension.
type DimensionStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SeriesPoint is the number of uploads in one hour, day or month.
type SeriesPoint struct {
	Date    string `json:"date"`
	Uploads int    `json:"uploads"`
}
