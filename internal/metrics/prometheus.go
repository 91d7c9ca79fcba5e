package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "promptpix"

// PrometheusRecorder exports metrics through a dedicated Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	generations         *prometheus.CounterVec
	providerDuration    *prometheus.HistogramVec
	providerFailures    *prometheus.CounterVec
	creditsDebited      prometheus.Counter
	usersRegistered     prometheus.Counter
	transactionsCreated *prometheus.CounterVec
	eventsPublished     *prometheus.CounterVec
	eventsProcessed     *prometheus.CounterVec
	eventQueueDepth     prometheus.Gauge
	creditsReconciled   prometheus.Counter
}

// NewPrometheus creates a recorder with its own registry, including Go runtime collectors.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()

	p := &PrometheusRecorder{
		registry: reg,
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Image generation requests by outcome.",
		}, []string{"outcome"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of calls to the image provider.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		}, []string{"provider"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Failed provider calls by provider and failure kind.",
		}, []string{"provider", "kind"}),
		creditsDebited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_debited_total",
			Help:      "Credits consumed by successful generations.",
		}),
		usersRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_registered_total",
			Help:      "Registered users.",
		}),
		transactionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_created_total",
			Help:      "Credit purchases initiated, by plan.",
		}, []string{"plan"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Generation events written to the event stream.",
		}, []string{"status"}),
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Generation events consumed by the event worker, by status.",
		}, []string{"status"}),
		eventQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_queue_depth",
			Help:      "Pending plus unread events for the worker consumer group.",
		}),
		creditsReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_reconciled_total",
			Help:      "Credits debited late for generations whose inline debit failed.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.generations,
		p.providerDuration,
		p.providerFailures,
		p.creditsDebited,
		p.usersRegistered,
		p.transactionsCreated,
		p.eventsPublished,
		p.eventsProcessed,
		p.eventQueueDepth,
		p.creditsReconciled,
	)

	return p
}

// Handler serves the registry in Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusRecorder) IncGeneration(outcome string) {
	p.generations.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveProviderDuration(provider string, duration time.Duration) {
	p.providerDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncProviderFailure(provider, kind string) {
	p.providerFailures.WithLabelValues(provider, kind).Inc()
}

func (p *PrometheusRecorder) IncCreditsDebited(amount int64) {
	p.creditsDebited.Add(float64(amount))
}

func (p *PrometheusRecorder) IncUserRegistered() {
	p.usersRegistered.Inc()
}

func (p *PrometheusRecorder) IncTransactionCreated(plan string) {
	p.transactionsCreated.WithLabelValues(plan).Inc()
}

func (p *PrometheusRecorder) IncEventPublished(status string) {
	p.eventsPublished.WithLabelValues(status).Inc()
}

// IncEventProcessed counts consumed events by status.
func (p *PrometheusRecorder) IncEventProcessed(status string) {
	p.eventsProcessed.WithLabelValues(status).Inc()
}

// SetEventQueueDepth records the consumer backlog.
func (p *PrometheusRecorder) SetEventQueueDepth(depth int64) {
	p.eventQueueDepth.Set(float64(depth))
}

// IncCreditsReconciled adds to the late-debit total.
func (p *PrometheusRecorder) IncCreditsReconciled(amount int64) {
	p.creditsReconciled.Add(float64(amount))
}
