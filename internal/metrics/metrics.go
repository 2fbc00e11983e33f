// Package metrics exposes capture telemetry to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jtejido/kioskscanner/internal/scanner"
)

const namespace = "kiosk_scanner"

// Collector owns a private registry so tests and multiple instances never
// collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	Captures        *prometheus.CounterVec
	Attempts        *prometheus.CounterVec
	CaptureDuration *prometheus.HistogramVec
	AttemptDuration prometheus.Histogram
	LibrariesLoaded prometheus.Gauge
	DevicesPresent  prometheus.Gauge
	Busy            prometheus.Counter
}

// New registers every collector, plus process and Go runtime metrics.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		Captures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "requests_total",
				Help:      "Capture requests by final outcome kind (ok on success)",
			},
			[]string{"outcome"},
		),
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "attempts_total",
				Help:      "Individual capture attempts by outcome kind",
			},
			[]string{"outcome"},
		),
		CaptureDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "duration_seconds",
				Help:      "Wall time of a capture request including retries",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		AttemptDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "attempt_duration_seconds",
				Help:      "Wall time of one capture attempt",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		LibrariesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sdk",
				Name:      "libraries_loaded",
				Help:      "Vendor libraries resolved (0=no, 1=primary, 2=fallback)",
			},
		),
		DevicesPresent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sdk",
				Name:      "devices",
				Help:      "Readers found at the last enumeration",
			},
		),
		Busy: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "busy_rejections_total",
				Help:      "Capture requests refused because the reader was in use",
			},
		),
	}

	c.registry.MustRegister(
		c.Captures, c.Attempts, c.CaptureDuration, c.AttemptDuration,
		c.LibrariesLoaded, c.DevicesPresent, c.Busy,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func outcome(kind scanner.Kind) string {
	if kind == scanner.KindNone {
		return "ok"
	}
	return string(kind)
}

// AttemptFinished implements scanner.Observer.
func (c *Collector) AttemptFinished(_ int, kind scanner.Kind, elapsed time.Duration) {
	c.Attempts.WithLabelValues(outcome(kind)).Inc()
	c.AttemptDuration.Observe(elapsed.Seconds())
}

// CaptureFinished implements scanner.Observer.
func (c *Collector) CaptureFinished(kind scanner.Kind, _ int, elapsed time.Duration) {
	o := outcome(kind)
	c.Captures.WithLabelValues(o).Inc()
	c.CaptureDuration.WithLabelValues(o).Observe(elapsed.Seconds())
	if kind == scanner.KindDeviceBusy {
		c.Busy.Inc()
	}
}

// SetLibraries records the resolution state.
func (c *Collector) SetLibraries(lib *scanner.ResolvedLibraries) {
	switch {
	case lib == nil:
		c.LibrariesLoaded.Set(0)
	case lib.Tier() == scanner.TierFallback:
		c.LibrariesLoaded.Set(2)
	default:
		c.LibrariesLoaded.Set(1)
	}
}

// SetDevices records the last enumeration count.
func (c *Collector) SetDevices(n int) { c.DevicesPresent.Set(float64(n)) }
