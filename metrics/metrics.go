// Package metrics exposes the Prometheus surface for the middleware: HTTP
// call counters/latency/in-flight gauges plus a handful of domain gauges
// describing the beacon store's freshness.
package metrics

import (
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Calindra/cartesi-drand/common/log"
)

var (
	// Registry is the process-wide registry every collector below is bound to.
	Registry = prometheus.NewRegistry()

	// HTTPCallCounter counts completed HTTP requests by status code and method.
	HTTPCallCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_call_counter",
		Help: "Number of HTTP calls received",
	}, []string{"code", "method"})

	// HTTPLatency tracks HTTP handler duration.
	HTTPLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_duration_seconds",
		Help:    "Histogram of request latencies",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	// HTTPInFlight is a gauge of requests currently being served.
	HTTPInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight",
		Help: "A gauge of requests currently being served.",
	})

	// LastBeaconRound is the round number of the newest beacon accepted by
	// the store.
	LastBeaconRound = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "last_beacon_round",
		Help: "Round number of the most recently stored beacon",
	})

	// PendingBeaconTimestamp is the timestamp callers are currently waiting
	// on (0 when nothing is pending).
	PendingBeaconTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pending_beacon_timestamp",
		Help: "Timestamp of the beacon required to unblock deferred randomness requests",
	})

	// QueueDepth is the number of opaque rollup inputs waiting to be
	// drained by the application.
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "input_queue_depth",
		Help: "Number of buffered rollup inputs awaiting a finish drain",
	})

	// RandomnessServedTotal counts successful /random responses.
	RandomnessServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "randomness_served_total",
		Help: "Number of randomness requests served",
	})

	// RandomnessDeferredTotal counts /random requests that had to be deferred.
	RandomnessDeferredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "randomness_deferred_total",
		Help: "Number of randomness requests deferred pending a fresher beacon",
	})

	registered = false
)

func register() error {
	if registered {
		return nil
	}
	registered = true

	if err := Registry.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if err := Registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return err
	}

	collectorList := []prometheus.Collector{
		HTTPCallCounter,
		HTTPLatency,
		HTTPInFlight,
		LastBeaconRound,
		PendingBeaconTimestamp,
		QueueDepth,
		RandomnessServedTotal,
		RandomnessDeferredTotal,
	}
	for _, c := range collectorList {
		if err := Registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Start binds the collectors and serves /metrics on metricsBind. It returns
// the listener so the caller can close it on shutdown; a nil return means
// metrics are disabled for this run.
func Start(metricsBind string) net.Listener {
	if err := register(); err != nil {
		log.DefaultLogger().Warnw("metrics setup failed", "err", err)
		return nil
	}

	if !strings.Contains(metricsBind, ":") {
		metricsBind = "localhost:" + metricsBind
	}
	l, err := net.Listen("tcp", metricsBind)
	if err != nil {
		log.DefaultLogger().Warnw("metrics listen failed", "err", err)
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))
	s := &http.Server{Handler: mux}
	go func() {
		log.DefaultLogger().Warnw("metrics server stopped", "err", s.Serve(l))
	}()
	return l
}
