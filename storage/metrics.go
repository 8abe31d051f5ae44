package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for store operations.
type Observer interface {
	RecordUpload(duration time.Duration, sizeBytes int64, err error)
	RecordResolve(duration time.Duration, err error)
	RecordDelete(duration time.Duration, err error)
}

// PrometheusObserver exports store metrics to Prometheus.
type PrometheusObserver struct {
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	uploadBytes prometheus.Counter
}

// NewPrometheusObserver registers upload/resolve/delete metrics on reg.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "campusadmin_storage"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency for object store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of object store failures.",
		}, []string{"operation"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative payload size successfully uploaded to object storage.",
		}),
	}
	collectors := []prometheus.Collector{o.duration, o.errors, o.uploadBytes}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, fmt.Errorf("register storage metric: %w", err)
		}
	}
	return o, nil
}

// RecordUpload tracks upload duration, size, and failures.
func (o *PrometheusObserver) RecordUpload(duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues("upload").Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues("upload").Inc()
		return
	}
	if sizeBytes > 0 {
		o.uploadBytes.Add(float64(sizeBytes))
	}
}

func (o *PrometheusObserver) RecordResolve(duration time.Duration, err error) {
	recordOperation(o, "resolve", duration, err)
}

func (o *PrometheusObserver) RecordDelete(duration time.Duration, err error) {
	recordOperation(o, "delete", duration, err)
}

func recordOperation(o *PrometheusObserver, op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues(op).Inc()
	}
}

type instrumented struct {
	Store
	obs Observer
}

// Instrument wraps s so every operation is reported to obs.
func Instrument(s Store, obs Observer) Store {
	if obs == nil {
		return s
	}
	return &instrumented{Store: s, obs: obs}
}

func (i *instrumented) Put(ctx context.Context, obj Object, onProgress ProgressFunc) error {
	start := time.Now()
	err := i.Store.Put(ctx, obj, onProgress)
	i.obs.RecordUpload(time.Since(start), obj.Size, err)
	return err
}

func (i *instrumented) URL(ctx context.Context, key string) (string, error) {
	start := time.Now()
	u, err := i.Store.URL(ctx, key)
	i.obs.RecordResolve(time.Since(start), err)
	return u, err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.Store.Delete(ctx, key)
	i.obs.RecordDelete(time.Since(start), err)
	return err
}
