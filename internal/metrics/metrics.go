// Package metrics exposes Prometheus collectors for workflow operations,
// collaborator calls, circuit breakers and the HTTP API.
package metrics

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/harshangpate/hospital-crm/internal/application/service"
	domainwf "github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

const namespace = "hospital_workflow"

// Collector owns a private registry so several instances can coexist in tests
type Collector struct {
	registry *prometheus.Registry

	transitionsTotal     *prometheus.CounterVec
	transitionDuration   *prometheus.HistogramVec
	collaboratorCalls    *prometheus.CounterVec
	collaboratorDuration *prometheus.HistogramVec
	breakerState         *prometheus.GaugeVec
	reconciledTotal      prometheus.Counter
	reconcileErrors      prometheus.Counter
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
}

// NewCollector creates and registers all collectors
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Workflow operations by entity type, action and result code",
			},
			[]string{"entity_type", "action", "code"},
		),
		transitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transition_duration_seconds",
				Help:      "Duration of workflow operations including collaborator calls and commit",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"entity_type", "action"},
		),
		collaboratorCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_calls_total",
				Help:      "Calls to billing, notification and bed inventory",
			},
			[]string{"collaborator", "status"},
		),
		collaboratorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collaborator_call_duration_seconds",
				Help:      "Duration of collaborator calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"collaborator"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open",
			},
			[]string{"breaker"},
		),
		reconciledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_reconciled_total",
			Help:      "Deferred invoices created by the billing reconciler",
		}),
		reconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_reconcile_errors_total",
			Help:      "Failed billing reconciler runs",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	c.registry.MustRegister(
		c.transitionsTotal,
		c.transitionDuration,
		c.collaboratorCalls,
		c.collaboratorDuration,
		c.breakerState,
		c.reconciledTotal,
		c.reconcileErrors,
		c.httpRequestsTotal,
		c.httpRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// RegisterDB exports connection pool statistics for db
func (c *Collector) RegisterDB(db *sql.DB, name string) error {
	return c.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveTransition records a workflow operation outcome
func (c *Collector) ObserveTransition(entityType domainwf.EntityType, action string, err error, elapsed time.Duration) {
	et := entityType.String()
	if et == "" {
		et = "unknown"
	}
	c.transitionsTotal.WithLabelValues(et, action, service.ErrorCode(err)).Inc()
	c.transitionDuration.WithLabelValues(et, action).Observe(elapsed.Seconds())
}

// ObserveCollaborator records a collaborator call
func (c *Collector) ObserveCollaborator(collaborator string, err error, elapsed time.Duration) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		status = "rejected"
	default:
		status = "error"
	}
	c.collaboratorCalls.WithLabelValues(collaborator, status).Inc()
	c.collaboratorDuration.WithLabelValues(collaborator).Observe(elapsed.Seconds())
}

// BreakerStateChanged tracks the current state of a circuit breaker
func (c *Collector) BreakerStateChanged(name string, from, to gobreaker.State) {
	c.breakerState.WithLabelValues(name).Set(float64(to))
}

// ObserveReconcile records one billing reconciler run
func (c *Collector) ObserveReconcile(reconciled int, err error) {
	c.reconciledTotal.Add(float64(reconciled))
	if err != nil {
		c.reconcileErrors.Inc()
	}
}

// GinMiddleware records request count and latency per route template
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus scrape handler for this registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
