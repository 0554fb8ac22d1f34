// Package metrics provides a Prometheus metrics registry for the gateway.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// gateway_inflight_requests
	inFlight prometheus.Gauge

	// gateway_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// gateway_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// gateway_upstream_attempts_total{model,mode,outcome}
	upstreamAttempts *prometheus.CounterVec

	// gateway_upstream_attempt_duration_seconds{model,mode}
	upstreamDuration *prometheus.HistogramVec

	// gateway_race_wins_total{model}
	raceWins *prometheus.CounterVec

	// gateway_retries_total{outcome}
	retries *prometheus.CounterVec

	// gateway_friendly_errors_total{category}
	friendlyErrors *prometheus.CounterVec

	// gateway_build_info{version}
	buildInfo *prometheus.GaugeVec
}

// New creates a Registry with all collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_inflight_requests",
			Help: "Number of requests currently being handled.",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total HTTP requests by route and status.",
		}, []string{"route", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "End-to-end HTTP request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		upstreamAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_upstream_attempts_total",
			Help: "Upstream attempts by model, mode, and outcome.",
		}, []string{"model", "mode", "outcome"}),

		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_upstream_attempt_duration_seconds",
			Help:    "Per-attempt upstream call duration.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3.5, 5, 8, 10},
		}, []string{"model", "mode"}),

		raceWins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_race_wins_total",
			Help: "Adopted successful attempts by model.",
		}, []string{"model"}),

		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_retries_total",
			Help: "Lite-mode retries by outcome.",
		}, []string{"outcome"}),

		friendlyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_friendly_errors_total",
			Help: "Terminal failures by friendly category.",
		}, []string{"category"}),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_build_info",
			Help: "Build information. Value is always 1.",
		}, []string{"version"}),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.upstreamAttempts,
		r.upstreamDuration,
		r.raceWins,
		r.retries,
		r.friendlyErrors,
		r.buildInfo,
	)

	return r
}

// SetBuildInfo sets the build info gauge.
func (r *Registry) SetBuildInfo(version string) {
	r.buildInfo.WithLabelValues(version).Set(1)
}

// IncInFlight / DecInFlight track requests currently being handled.
func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records one completed HTTP request.
func (r *Registry) ObserveHTTP(route string, status int, dur time.Duration) {
	r.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// ObserveUpstreamAttempt records one upstream call.
func (r *Registry) ObserveUpstreamAttempt(model, mode, outcome string, dur time.Duration) {
	r.upstreamAttempts.WithLabelValues(model, mode, outcome).Inc()
	r.upstreamDuration.WithLabelValues(model, mode).Observe(dur.Seconds())
}

// RecordRaceWin counts an adopted successful attempt for a model.
func (r *Registry) RecordRaceWin(model string) {
	r.raceWins.WithLabelValues(model).Inc()
}

// RecordRetry counts the single transient-failure retry.
func (r *Registry) RecordRetry(ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	r.retries.WithLabelValues(outcome).Inc()
}

// RecordFriendlyError counts a terminal failure by category.
func (r *Registry) RecordFriendlyError(category string) {
	r.friendlyErrors.WithLabelValues(category).Inc()
}

// Handler returns a fasthttp handler serving the Prometheus exposition format.
func (r *Registry) Handler() fasthttp.RequestHandler {
	h := promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
	return fasthttpadaptor.NewFastHTTPHandler(h)
}
