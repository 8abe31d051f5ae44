package uploadlog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/campusadmin/editor"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "uploads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store) time.Time {
	t.Helper()
	ts := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	records := []Record{
		{TaskID: "a", Key: "articles/images/a_1.png", Source: SourceEditor, Collection: "articles", MIMEType: "image/png", Size: 100, State: "succeeded", DurationMS: 100, Timestamp: ts},
		{TaskID: "b", Key: "articles/images/b_2.png", Source: SourceEditor, Collection: "articles", MIMEType: "image/png", Size: 200, State: "succeeded", DurationMS: 300, Timestamp: ts},
		{TaskID: "c", Key: "banners/c_3.jpg", Source: SourceField, Collection: "banners", MIMEType: "image/jpeg", Size: 50, State: "failed", Error: "connection reset", Timestamp: ts},
		{TaskID: "d", Key: "articles/images/d_4.png", Source: SourceEditor, Collection: "articles", MIMEType: "image/png", Size: 70, State: "cancelled", Timestamp: ts},
		{TaskID: "old", Key: "articles/images/old.png", Source: SourceEditor, Collection: "articles", MIMEType: "image/gif", Size: 1, State: "succeeded", Timestamp: ts.AddDate(0, 0, -40)},
	}
	for _, r := range records {
		require.NoError(t, s.Save(context.Background(), r))
	}
	return ts
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ts := seed(t, s)

	from, to := calcTimeRange(time.Now().UTC(), 7, false)
	stats, err := s.Stats(context.Background(), from, to, false, false)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, int64(300), stats.Bytes)
	assert.Equal(t, 200, stats.AvgDurationMS)
	assert.Equal(t, []DimensionStat{{Name: "image/png", Count: 3}, {Name: "image/jpeg", Count: 1}}, stats.TopMIMETypes)
	assert.Equal(t, []DimensionStat{{Name: "articles", Count: 3}, {Name: "banners", Count: 1}}, stats.ByCollection)
	assert.Equal(t, []SeriesPoint{{Date: ts.Format("2006-01-02"), Uploads: 4}}, stats.Series)
}

func TestStatsEmptyRange(t *testing.T) {
	s := newTestStore(t)
	from := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	stats, err := s.Stats(context.Background(), from, from.AddDate(0, 1, 0), false, true)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Empty(t, stats.Series)
	assert.NotNil(t, stats.Series)
}

func TestRecentAndCleanup(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	recent, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, "d", recent[0].TaskID)
	assert.Equal(t, "old", recent[4].TaskID)
	assert.Equal(t, "connection reset", recent[1].Error)

	n, err := s.Cleanup(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recent, err = s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 4)
}

func TestSchemaVersion(t *testing.T) {
	s := newTestStore(t)
	v, err := s.GetSetting("schema_version")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	v, err = s.GetSetting("missing")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestFromTask(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	r := FromTask("articles", editor.TaskStatus{
		ID:         "t1",
		TargetPath: "articles/images/t1_cat.png",
		MIMEType:   "image/png",
		Size:       42,
		Trigger:    editor.TriggerDrop,
		State:      editor.StateFailed,
		Error:      "boom",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	})
	assert.Equal(t, Record{
		TaskID:     "t1",
		Key:        "articles/images/t1_cat.png",
		Source:     SourceEditor,
		Collection: "articles",
		Trigger:    "drop",
		MIMEType:   "image/png",
		Size:       42,
		State:      "failed",
		Error:      "boom",
		DurationMS: 1500,
		Timestamp:  start.Add(1500 * time.Millisecond),
	}, r)
}

func TestHandlers(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	e := echo.New()
	NewHandler(s).RegisterRoutes(e.Group("/admin"))

	req := httptest.NewRequest(http.MethodGet, "/admin/api/uploads/stats/?period=today", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "today", resp.Period)
	assert.True(t, resp.Hourly)
	assert.Equal(t, 4, resp.Stats.Total)
	assert.Len(t, resp.Stats.Series, 24)

	req = httptest.NewRequest(http.MethodGet, "/admin/api/uploads/recent/?limit=2", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)
}

func TestParsePeriod(t *testing.T) {
	p, days, hourly, monthly := parsePeriod("year")
	assert.Equal(t, "year", p)
	assert.Equal(t, 365, days)
	assert.False(t, hourly)
	assert.True(t, monthly)

	p, days, _, _ = parsePeriod("bogus")
	assert.Equal(t, "week", p)
	assert.Equal(t, 7, days)
}
