package sync

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "phasesync"

type metrics struct {
	queueLength        prometheus.Gauge
	itemsProcessed     prometheus.Counter
	itemsFailed        prometheus.Counter
	itemsDropped       prometheus.Counter
	conflicts          *prometheus.CounterVec
	validationFailures prometheus.Counter
	propagations       prometheus.Counter
	itemDuration       prometheus.Histogram
}

// newMetrics builds the coordinator collectors and registers them on reg.
// Collectors already registered by an earlier coordinator on the same
// registry are reused.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &metrics{
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queue_length",
			Help:      "Number of sync items waiting in the queue",
		}),
		itemsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_processed_total",
			Help:      "Total number of sync items persisted successfully",
		}),
		itemsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_failed_total",
			Help:      "Total number of failed sync attempts",
		}),
		itemsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_dropped_total",
			Help:      "Total number of sync items dropped after exhausting retries",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "conflicts_total",
			Help:      "Total number of conflicts resolved, by strategy",
		}, []string{"strategy"}),
		validationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "validation_failures_total",
			Help:      "Total number of writes rejected before queueing",
		}),
		propagations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "propagations_total",
			Help:      "Total number of derived writes queued by cross-phase rules",
		}),
		itemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "item_duration_seconds",
			Help:      "Time spent processing one sync item",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	var err error

	m.queueLength, err = register(reg, m.queueLength)
	if err != nil {
		return nil, err
	}

	m.itemsProcessed, err = register(reg, m.itemsProcessed)
	if err != nil {
		return nil, err
	}

	m.itemsFailed, err = register(reg, m.itemsFailed)
	if err != nil {
		return nil, err
	}

	m.itemsDropped, err = register(reg, m.itemsDropped)
	if err != nil {
		return nil, err
	}

	m.conflicts, err = register(reg, m.conflicts)
	if err != nil {
		return nil, err
	}

	m.validationFailures, err = register(reg, m.validationFailures)
	if err != nil {
		return nil, err
	}

	m.propagations, err = register(reg, m.propagations)
	if err != nil {
		return nil, err
	}

	m.itemDuration, err = register(reg, m.itemDuration)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}

	var zero C

	return zero, fmt.Errorf("sync: registering metrics: %w", err)
}
