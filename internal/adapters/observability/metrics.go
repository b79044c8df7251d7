package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "tripdeals"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	ListingsScored = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "listings_total", Help: "Feed listings by outcome."},
		[]string{"deal_type", "outcome"}, // outcome: deal|scored|skipped|failed
	)
	ScanRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "scan_runs_total", Help: "Scan cycles by result."},
		[]string{"result"},
	)
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "scan_duration_seconds",
			Help:    "Scan cycle duration seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
	WatchEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "watch_events_total", Help: "Watch events emitted."},
		[]string{"event_type"},
	)
	BrokerConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "broker_connections", Help: "Live realtime connections."},
	)
	BrokerDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "broker_deliveries_total", Help: "Realtime message deliveries."},
		[]string{"type", "result"}, // result: ok|failed
	)
)

// Serve starts a standalone metrics listener on addr. Empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents,
		ListingsScored, ScanRuns, ScanDuration, WatchEvents, BrokerConnections, BrokerDeliveries,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveListing(dealType, outcome string) {
	ListingsScored.WithLabelValues(dealType, outcome).Inc()
}

func ObserveScan(err error, dur time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ScanRuns.WithLabelValues(result).Inc()
	ScanDuration.Observe(dur.Seconds())
}

func ObserveWatchEvent(eventType string) {
	WatchEvents.WithLabelValues(eventType).Inc()
}

func ObserveDelivery(msgType string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	BrokerDeliveries.WithLabelValues(msgType, result).Inc()
}

func SetConnections(n int) { BrokerConnections.Set(float64(n)) }

