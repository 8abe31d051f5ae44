package uploadlog

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Handler serves upload log data to the admin dashboard.
type Handler struct {
	store *Store
}

// NewHandler creates a new upload log handler.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// StatsResponse is the JSON response for the stats endpoint.
type StatsResponse struct {
	Stats      *Stats `json:"stats"`
	Period     string `json:"period"`
	PeriodDays int    `json:"period_days"`
	Hourly     bool   `json:"hourly"`
	Monthly    bool   `json:"monthly"`
}

// GetStats returns upload statistics as JSON.
func (h *Handler) GetStats(c echo.Context) error {
	period, days, hourly, monthly := parsePeriod(c.QueryParam("period"))

	now := time.Now().UTC()
	from, to := calcTimeRange(now, days, hourly)

	stats, err := h.store.Stats(c.Request().Context(), from, to, hourly, monthly)
	if err != nil {
		c.Logger().Errorf("Failed to get upload stats: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	if hourly {
		stats.Series = fillHourlyData(stats.Series, from)
	}

	return c.JSON(http.StatusOK, StatsResponse{
		Stats:      stats,
		Period:     period,
		PeriodDays: days,
		Hourly:     hourly,
		Monthly:    monthly,
	})
}

// GetRecent returns the latest uploads. ?limit= caps the list at 100.
func (h *Handler) GetRecent(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	records, err := h.store.Recent(c.Request().Context(), limit)
	if err != nil {
		c.Logger().Errorf("Failed to list recent uploads: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, records)
}

// RegisterRoutes registers the upload log API under the admin group.
func (h *Handler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/api/uploads/stats/", h.GetStats)
	admin.GET("/api/uploads/recent/", h.GetRecent)
}

// parsePeriod parses the period query parameter
func parsePeriod(period string) (string, int, bool, bool) {
	switch period {
	case "today":
		return period, 1, true, false
	case "month":
		return period, 30, false, false
	case "year":
		return period, 365, false, true
	case "week":
		return period, 7, false, false
	}
	return "week", 7, false, false
}

// calcTimeRange returns the from/to times for the given period.
func calcTimeRange(now time.Time, days int, hourly bool) (time.Time, time.Time) {
	if hourly {
		currentHour := now.Truncate(time.Hour)
		from := currentHour.Add(-23 * time.Hour)
		return from, now.Add(time.Second)
	}
	from := now.AddDate(0, 0, -days).Truncate(24 * time.Hour)
	to := now.Add(24 * time.Hour).Truncate(24 * time.Hour)
	return from, to
}

// fillHourlyData ensures all 24 hourly slots are present, filling gaps with zero.
func fillHourlyData(sparse []SeriesPoint, from time.Time) []SeriesPoint {
	counts := make(map[string]int, len(sparse))
	for _, p := range sparse {
		counts[p.Date] = p.Uploads
	}
	result := make([]SeriesPoint, 24)
	for i := range result {
		hour := from.Add(time.Duration(i) * time.Hour)
		label := fmt.Sprintf("%02d:00", hour.Hour())
		result[i] = SeriesPoint{Date: label, Uploads: counts[label]}
	}
	return result
}
