package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackrun",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of successful service spawns.",
		}, []string{"service"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackrun",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of requested stops that completed.",
		}, []string{"service"},
	)
	serviceCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackrun",
			Subsystem: "service",
			Name:      "crashes_total",
			Help:      "Number of exits that were not requested.",
		}, []string{"service"},
	)
	serviceRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stackrun",
			Subsystem: "service",
			Name:      "running",
			Help:      "Whether the service process currently exists (1 or 0).",
		}, []string{"service"},
	)
	healthProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackrun",
			Subsystem: "health",
			Name:      "probes_total",
			Help:      "Liveness probes by terminal outcome.",
		}, []string{"service", "outcome"},
	)
	healthProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stackrun",
			Subsystem: "health",
			Name:      "probe_duration_seconds",
			Help:      "Latency of individual liveness probe requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"},
	)
	healthWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stackrun",
			Subsystem: "health",
			Name:      "wait_seconds",
			Help:      "Time from spawn until the liveness poll settled.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30, 60},
		}, []string{"service", "outcome"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		serviceStarts, serviceStops, serviceCrashes, serviceRunning,
		serviceCPUPercent, serviceMemoryMB,
		healthProbes, healthProbeDuration, healthWait,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer; the caller owns the HTTP server.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called, so packages can
// record unconditionally.

func IncStart(service string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(service).Inc()
	}
}

func IncStop(service string) {
	if regOK.Load() {
		serviceStops.WithLabelValues(service).Inc()
	}
}

func IncCrash(service string) {
	if regOK.Load() {
		serviceCrashes.WithLabelValues(service).Inc()
	}
}

func SetRunning(service string, up bool) {
	if regOK.Load() {
		v := 0.0
		if up {
			v = 1.0
		}
		serviceRunning.WithLabelValues(service).Set(v)
	}
}

func IncProbe(service, outcome string) {
	if regOK.Load() {
		healthProbes.WithLabelValues(service, outcome).Inc()
	}
}

func ObserveProbeDuration(service string, seconds float64) {
	if regOK.Load() {
		healthProbeDuration.WithLabelValues(service).Observe(seconds)
	}
}

func ObserveHealthWait(service, outcome string, seconds float64) {
	if regOK.Load() {
		healthWait.WithLabelValues(service, outcome).Observe(seconds)
	}
}
