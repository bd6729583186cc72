// Package metrics exposes Prometheus collectors for the register core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "register"

type Metrics struct {
	registersCreated  prometheus.Counter
	registersDeleted  prometheus.Counter
	txStored          prometheus.Counter
	docketsSealed     prometheus.Counter
	sealConflicts     prometheus.Counter
	lastSealedHeight  prometheus.Gauge
	sealDuration      prometheus.Histogram
	validationErrors  *prometheus.CounterVec
	eventsPublished   *prometheus.CounterVec
	eventPublishFails *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	chainChecks       *prometheus.CounterVec
	chainValid        *prometheus.GaugeVec
	registerHeight    *prometheus.GaugeVec
}

// New registers the collectors with reg. Passing prometheus.DefaultRegisterer
// exposes them on promhttp.Handler().
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		registersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registers_created_total",
			Help:      "Registers created",
		}),
		registersDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registers_deleted_total",
			Help:      "Registers deleted",
		}),
		txStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_stored_total",
			Help:      "Transactions accepted by StoreTransaction",
		}),
		docketsSealed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dockets_sealed_total",
			Help:      "Dockets sealed across all registers",
		}),
		sealConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seal_conflicts_total",
			Help:      "Seals rejected because the register height moved",
		}),
		lastSealedHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sealed_height",
			Help:      "Register height produced by the most recent seal",
		}),
		sealDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "seal_duration_seconds",
			Help:      "Time spent in the atomic seal repository call",
			Buckets:   prometheus.DefBuckets,
		}),
		validationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Caller errors by operation",
		}, []string{"operation"}),
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events handed to the publisher",
		}, []string{"kind"}),
		eventPublishFails: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Domain events the publisher rejected",
		}, []string{"kind"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by use case and result",
		}, []string{"use_case", "result"}),
		chainChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_verifications_total",
			Help:      "Chain verifications by result (valid, invalid, error)",
		}, []string{"result"}),
		chainValid: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_valid",
			Help:      "1 when the register's last chain verification passed, 0 otherwise",
		}, []string{"register"}),
		registerHeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "register_height",
			Help:      "Register height seen by the last chain verification",
		}, []string{"register"}),
	}
}

func (m *Metrics) RegisterCreated() {
	if m != nil {
		m.registersCreated.Inc()
	}
}

func (m *Metrics) RegisterDeleted() {
	if m != nil {
		m.registersDeleted.Inc()
	}
}

func (m *Metrics) TransactionStored() {
	if m != nil {
		m.txStored.Inc()
	}
}

// DocketSealed records a successful seal that moved a register to height.
func (m *Metrics) DocketSealed(height uint64, took time.Duration) {
	if m == nil {
		return
	}
	m.docketsSealed.Inc()
	m.lastSealedHeight.Set(float64(height))
	m.sealDuration.Observe(took.Seconds())
}

func (m *Metrics) SealConflict() {
	if m != nil {
		m.sealConflicts.Inc()
	}
}

func (m *Metrics) ValidationError(operation string) {
	if m != nil {
		m.validationErrors.WithLabelValues(operation).Inc()
	}
}

// EventPublished records one publish attempt for kind.
func (m *Metrics) EventPublished(kind string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.eventPublishFails.WithLabelValues(kind).Inc()
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}

// CacheLookup matches cachemanager.LookupObserver.
func (m *Metrics) CacheLookup(useCase string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(useCase, result).Inc()
}

// ChainVerified records the outcome of one chain verification.
func (m *Metrics) ChainVerified(registerID string, height uint64, valid bool) {
	if m == nil {
		return
	}
	result, v := "invalid", 0.0
	if valid {
		result, v = "valid", 1
	}
	m.chainChecks.WithLabelValues(result).Inc()
	m.chainValid.WithLabelValues(registerID).Set(v)
	m.registerHeight.WithLabelValues(registerID).Set(float64(height))
}

// ChainVerifyFailed records a verification that could not read the register.
func (m *Metrics) ChainVerifyFailed(registerID string) {
	if m == nil {
		return
	}
	m.chainChecks.WithLabelValues("error").Inc()
	m.chainValid.DeleteLabelValues(registerID)
	m.registerHeight.DeleteLabelValues(registerID)
}
