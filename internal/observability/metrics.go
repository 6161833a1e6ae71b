package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
	httpErrorsTotal        *prometheus.CounterVec
	loginAttemptsTotal     *prometheus.CounterVec
	verificationCodesTotal *prometheus.CounterVec
	sessionStreamsActive   prometheus.Gauge
	sessionEventsTotal     *prometheus.CounterVec
	redirectsTotal         *prometheus.CounterVec
	relayDeliveriesTotal   *prometheus.CounterVec
	uploadRequestsTotal    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roster_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		loginAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_login_attempts_total",
			Help: "Login attempts partitioned by resolved path and outcome.",
		}, []string{"path", "outcome"})

		verificationCodesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_verification_codes_total",
			Help: "Verification code issuance attempts by result.",
		}, []string{"result"})

		sessionStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roster_session_streams_active",
			Help: "Number of open session observation streams.",
		})

		sessionEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_session_events_total",
			Help: "Session change events by kind and origin.",
		}, []string{"kind", "origin"})

		redirectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_redirects_total",
			Help: "Redirect decisions by destination, including dropped re-entrant events.",
		}, []string{"destination"})

		relayDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_relay_deliveries_total",
			Help: "Verification emails handled by the relay by result.",
		}, []string{"result"})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_upload_requests_total",
			Help: "Image uploads proxied by the relay by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			loginAttemptsTotal,
			verificationCodesTotal,
			sessionStreamsActive,
			sessionEventsTotal,
			redirectsTotal,
			relayDeliveriesTotal,
			uploadRequestsTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// LoginAttempts exposes the login outcome counter.
func LoginAttempts() *prometheus.CounterVec {
	RegisterMetrics()
	return loginAttemptsTotal
}

// VerificationCodes exposes the code issuance counter.
func VerificationCodes() *prometheus.CounterVec {
	RegisterMetrics()
	return verificationCodesTotal
}

// SessionStreamsActive exposes the open stream gauge.
func SessionStreamsActive() prometheus.Gauge {
	RegisterMetrics()
	return sessionStreamsActive
}

// SessionEvents exposes the session change counter.
func SessionEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return sessionEventsTotal
}

// Redirects exposes the redirect decision counter.
func Redirects() *prometheus.CounterVec {
	RegisterMetrics()
	return redirectsTotal
}

// RelayDeliveries exposes the relay email counter.
func RelayDeliveries() *prometheus.CounterVec {
	RegisterMetrics()
	return relayDeliveriesTotal
}

// UploadRequests exposes the relay upload counter.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}
