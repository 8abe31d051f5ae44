package campusadmin

import (
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eringen/campusadmin/editor"
	"github.com/eringen/campusadmin/storage"
)

const metricsNamespace = "campusadmin"

type appMetrics struct {
	storage        *storage.PrometheusObserver
	editorUploads  *prometheus.CounterVec
	fieldUploads   *prometheus.CounterVec
	editorSessions prometheus.Gauge
}

func newAppMetrics(reg *prometheus.Registry) (*appMetrics, error) {
	obs, err := storage.NewPrometheusObserver(metricsNamespace+"_storage", reg)
	if err != nil {
		return nil, err
	}
	m := &appMetrics{
		storage: obs,
		editorUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "editor_uploads_total",
			Help:      "Finished editor image uploads by outcome and trigger.",
		}, []string{"state", "trigger"}),
		fieldUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "field_uploads_total",
			Help:      "Files uploaded to collection fields.",
		}, []string{"collection"}),
		editorSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "editor_sessions",
			Help:      "Open rich-text editing sessions.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.editorUploads,
		m.fieldUploads,
		m.editorSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

func (m *appMetrics) recordEditorUpload(st editor.TaskStatus) {
	m.editorUploads.WithLabelValues(st.State.String(), st.Trigger.String()).Inc()
}

func (a *App) handleMetrics(c echo.Context) error {
	h := promhttp.HandlerFor(a.Metrics, promhttp.HandlerOpts{})
	h.ServeHTTP(c.Response(), c.Request())
	return nil
}
