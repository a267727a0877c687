package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics surface used by the device-flow services and the
// HTTP layer. A noop implementation backs disabled metrics and tests.
type Recorder interface {
	// Device flow
	RecordAuthorizationCreated(success bool)
	RecordAuthorizationDecision(decision string) // "approved" or "denied"
	RecordTokenPoll(result string)               // "approved", "pending", "denied", "expired", "invalid"
	RecordTokenIssued(generationTime time.Duration)
	RecordIdentityValidation(result string) // "success", "invalid"
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the subsystem
type Metrics struct {
	AuthorizationsTotal      *prometheus.CounterVec
	AuthorizationDecisions   *prometheus.CounterVec
	TokenPollsTotal          *prometheus.CounterVec
	TokenGenerationDuration  prometheus.Histogram
	IdentityValidationsTotal *prometheus.CounterVec

	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on the enabled flag. Prometheus collectors
// are registered once per process; repeated calls return the same set.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = &Metrics{
			AuthorizationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "deviceauth_authorizations_total",
				Help: "Device authorization requests by result",
			}, []string{"result"}),
			AuthorizationDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "deviceauth_decisions_total",
				Help: "Human decisions on pending authorizations",
			}, []string{"decision"}),
			TokenPollsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "deviceauth_token_polls_total",
				Help: "Token poll outcomes by device-grant result",
			}, []string{"result"}),
			TokenGenerationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "deviceauth_token_generation_seconds",
				Help:    "Access token generation latency",
				Buckets: prometheus.DefBuckets,
			}),
			IdentityValidationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "deviceauth_identity_validations_total",
				Help: "Approval-surface identity validations by result",
			}, []string{"result"}),

			HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "deviceauth_http_requests_total",
				Help: "HTTP requests by method, route and status",
			}, []string{"method", "path", "status"}),
			HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "deviceauth_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "path"}),
			HTTPRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "deviceauth_http_requests_in_flight",
				Help: "In-flight HTTP requests",
			}),
		}
	})

	return defaultMetrics
}

func (m *Metrics) RecordAuthorizationCreated(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.AuthorizationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordAuthorizationDecision(decision string) {
	m.AuthorizationDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) RecordTokenPoll(result string) {
	m.TokenPollsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTokenIssued(generationTime time.Duration) {
	m.TokenGenerationDuration.Observe(generationTime.Seconds())
}

func (m *Metrics) RecordIdentityValidation(result string) {
	m.IdentityValidationsTotal.WithLabelValues(result).Inc()
}
