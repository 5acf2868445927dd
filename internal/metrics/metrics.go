package metrics

/*
domaincheck — WHOIS, DNS, geolocation and TLS lookups for lists of domains
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	registry           = prometheus.NewRegistry()
	defaultRegisterer  = promauto.With(registry)
	metricsInitialized sync.Once
	metricsEnabled     bool
	metricsServer      *http.Server
)

// Metrics contains all the Prometheus metrics for the application
type Metrics struct {
	// Per-stage lookup metrics (whois, resolve, reverse, geo, headers, tls)
	LookupDuration *prometheus.HistogramVec
	LookupErrors   *prometheus.CounterVec

	// Batch metrics
	DomainsProcessed *prometheus.CounterVec
	DomainsSkipped   prometheus.Counter
	BatchesRunning   prometheus.Gauge

	// Geolocation limiter and cache
	GeoLimiterWait prometheus.Histogram
	GeoCacheHits   prometheus.Counter

	// Results file
	ResultBytesWritten prometheus.Counter

	// HTTP service
	HTTPRequestsTotal *prometheus.CounterVec
	StreamClients     prometheus.Gauge
}

// Global instance of metrics
var globalMetrics *Metrics
var metricsOnce sync.Once

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics()
	})
	return globalMetrics
}

// EnableMetrics enables metrics collection
func EnableMetrics() {
	metricsEnabled = true
}

// IsMetricsEnabled returns whether metrics collection is enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// newMetrics creates and registers all metrics
func newMetrics() *Metrics {
	buckets := []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

	return &Metrics{
		LookupDuration: defaultRegisterer.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "domaincheck_lookup_duration_seconds",
				Help:    "Time spent in each lookup stage",
				Buckets: buckets,
			},
			[]string{"stage"},
		),
		LookupErrors: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "domaincheck_lookup_errors_total",
				Help: "Total number of failed lookups per stage",
			},
			[]string{"stage"},
		),
		DomainsProcessed: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "domaincheck_domains_processed_total",
				Help: "Total number of domains processed, by outcome",
			},
			[]string{"outcome"},
		),
		DomainsSkipped: defaultRegisterer.NewCounter(
			prometheus.CounterOpts{
				Name: "domaincheck_domains_skipped_total",
				Help: "Domains dropped by input validation",
			},
		),
		BatchesRunning: defaultRegisterer.NewGauge(
			prometheus.GaugeOpts{
				Name: "domaincheck_batches_running",
				Help: "Number of batches currently being processed",
			},
		),
		GeoLimiterWait: defaultRegisterer.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "domaincheck_geo_limiter_wait_seconds",
				Help:    "Time spent waiting on the geolocation rate limiter",
				Buckets: buckets,
			},
		),
		GeoCacheHits: defaultRegisterer.NewCounter(
			prometheus.CounterOpts{
				Name: "domaincheck_geo_cache_hits_total",
				Help: "Geolocation answers served from cache",
			},
		),
		ResultBytesWritten: defaultRegisterer.NewCounter(
			prometheus.CounterOpts{
				Name: "domaincheck_result_bytes_written_total",
				Help: "Bytes appended to the results file",
			},
		),
		HTTPRequestsTotal: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "domaincheck_http_requests_total",
				Help: "Requests handled by the HTTP service",
			},
			[]string{"route", "code"},
		),
		StreamClients: defaultRegisterer.NewGauge(
			prometheus.GaugeOpts{
				Name: "domaincheck_stream_clients",
				Help: "Connected server-sent-event clients",
			},
		),
	}
}

// Handler returns the HTTP handler exposing the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StartMetricsServer starts an HTTP server to expose Prometheus metrics
func StartMetricsServer(addr string) error {
	if !metricsEnabled {
		return nil
	}

	// Only start once
	metricsInitialized.Do(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", Handler())

		metricsServer = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Infof("Starting metrics server on %s", addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Metrics server error: %v", err)
			}
		}()
	})

	return nil
}

// ShutdownMetricsServer gracefully shuts down the metrics server
func ShutdownMetricsServer(ctx context.Context) error {
	if metricsServer != nil {
		log.Info("Shutting down metrics server...")
		return metricsServer.Shutdown(ctx)
	}
	return nil
}

// MeasureStage returns a func that records the elapsed time for stage when called.
// A non-nil error passed to the returned func also counts as a stage failure.
func MeasureStage(stage string) func(err error) {
	if !metricsEnabled {
		return func(error) {}
	}

	m := GetMetrics()
	start := time.Now()
	return func(err error) {
		m.LookupDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		if err != nil {
			m.LookupErrors.WithLabelValues(stage).Inc()
		}
	}
}

// RecordOutcome counts a processed domain under outcome ("registered", "available", "error").
func RecordOutcome(outcome string) {
	if !metricsEnabled {
		return
	}
	GetMetrics().DomainsProcessed.WithLabelValues(outcome).Inc()
}

// RecordSkipped counts a domain dropped by validation.
func RecordSkipped() {
	if !metricsEnabled {
		return
	}
	GetMetrics().DomainsSkipped.Inc()
}

// AddResultBytes records n bytes appended to the results file.
func AddResultBytes(n int) {
	if !metricsEnabled || n <= 0 {
		return
	}
	GetMetrics().ResultBytesWritten.Add(float64(n))
}

// ObserveGeoWait records time spent blocked on the geolocation limiter.
func ObserveGeoWait(d time.Duration) {
	if !metricsEnabled {
		return
	}
	GetMetrics().GeoLimiterWait.Observe(d.Seconds())
}

// RecordGeoCacheHit counts a cached geolocation answer.
func RecordGeoCacheHit() {
	if !metricsEnabled {
		return
	}
	GetMetrics().GeoCacheHits.Inc()
}

// BatchStarted increments the running-batch gauge and returns the matching decrement.
func BatchStarted() func() {
	if !metricsEnabled {
		return func() {}
	}
	g := GetMetrics().BatchesRunning
	g.Inc()
	return g.Dec
}

// RecordRequest counts an HTTP request for route with status code.
func RecordRequest(route string, code int) {
	if !metricsEnabled {
		return
	}
	GetMetrics().HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// StreamClientConnected increments the SSE client gauge and returns the matching decrement.
func StreamClientConnected() func() {
	if !metricsEnabled {
		return func() {}
	}
	g := GetMetrics().StreamClients
	g.Inc()
	return g.Dec
}
