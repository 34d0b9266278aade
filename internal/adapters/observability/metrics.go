package observability

import (
	"fmt"
	"github.com/rs/zerolog/log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "eats", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eats", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "eats", Name: "external_requests_total", Help: "Calls to object storage."},
		[]string{"service", "op", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eats", Name: "external_request_duration_seconds",
			Help:    "Object storage call duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "op"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "eats", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	Aggregations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "eats", Name: "reviews_aggregated_total", Help: "Rating aggregation transactions."},
		[]string{"result"}, // ok|error
	)
	TxRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "eats", Name: "tx_retries_total", Help: "Store transactions re-run after a conflict."},
	)
	LiveSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "eats", Name: "live_subscriptions", Help: "Open live subscriptions."},
	)
)

func Serve() {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents,
		Aggregations, TxRetries, LiveSubscriptions)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, op string, err error, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, op, LabelErr(err)).Inc()
	ExternalLatency.WithLabelValues(service, op).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|skip|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveAggregation(result string) { Aggregations.WithLabelValues(result).Inc() }

func ObserveTxRetry() { TxRetries.Inc() }

func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}
