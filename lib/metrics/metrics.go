// Package metrics holds the Prometheus collectors of the api and watcher services.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "safesave"

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	indexerCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "call_duration_seconds",
			Help:      "Duration of indexer calls by operation and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"op", "success"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result.",
		},
		[]string{"result"},
	)

	datumFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datum",
			Name:      "decode_failures_total",
			Help:      "Inline datums that could not be decoded.",
		},
	)

	ledgerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "ledger_events_total",
			Help:      "Ledger events emitted per contract and kind.",
		},
		[]string{"contract", "kind"},
	)

	watchTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "ticks_total",
			Help:      "Watcher polls per contract and outcome.",
		},
		[]string{"contract", "success"},
	)
)

func init() { //nolint:gochecknoinits // collectors registration
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		indexerCalls,
		cacheLookups,
		datumFailures,
		ledgerEvents,
		watchTicks,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations of next, labelled with the route template of router the request
// matches. Requests no route serves, replied 404 or 405 by the router, are labelled unmatched.
func Middleware(router *mux.Router, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routeOf(router, r)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.Status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

func routeOf(router *mux.Router, r *http.Request) string {
	var m mux.RouteMatch
	if !router.Match(r, &m) || m.MatchErr != nil || m.Route == nil {
		return "unmatched"
	}

	tpl, err := m.Route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}

	return tpl
}

// IndexerCall records the duration of an indexer operation.
func IndexerCall(op string, start time.Time, err error) {
	indexerCalls.WithLabelValues(op, strconv.FormatBool(err == nil)).Observe(time.Since(start).Seconds())
}

// CacheLookup counts a cache hit or miss.
func CacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
	} else {
		cacheLookups.WithLabelValues("miss").Inc()
	}
}

// DatumFailure counts an undecodable datum.
func DatumFailure() {
	datumFailures.Inc()
}

// LedgerEvent counts an emitted ledger event.
func LedgerEvent(contract, kind string) {
	ledgerEvents.WithLabelValues(contract, kind).Inc()
}

// WatchTick counts a watcher poll.
func WatchTick(contract string, err error) {
	watchTicks.WithLabelValues(contract, strconv.FormatBool(err == nil)).Inc()
}

// StatusRecorder keeps the status code written by a handler.
type StatusRecorder struct {
	http.ResponseWriter
	Status int
}

// WriteHeader records code.
func (r *StatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}
