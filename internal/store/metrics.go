package store

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/medtrack/internal/model"
)

// Operation result label values.
const (
	resultOK        = "ok"
	resultDuplicate = "duplicate"
	resultNotFound  = "not_found"
	resultError     = "error"
)

// Metrics holds the store's Prometheus collectors.
type Metrics struct {
	stored     prometheus.Gauge
	operations *prometheus.CounterVec
}

// NewMetrics creates the store collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "medtrack_medicines_stored",
			Help: "Number of medicine records currently stored",
		}),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medtrack_medicine_operations_total",
				Help: "Total number of medicine store operations",
			},
			[]string{"operation", "result"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.stored, m.operations)
	}

	return m
}

// InstrumentedStore records metrics for every mutation of the wrapped Store.
type InstrumentedStore struct {
	Store
	metrics *Metrics
}

// NewInstrumentedStore wraps s so that adds and deletes are counted. The
// stored gauge starts from the current size of s and then follows
// successful mutations.
func NewInstrumentedStore(s Store, metrics *Metrics) *InstrumentedStore {
	if n, err := s.Len(context.Background()); err == nil {
		metrics.stored.Set(float64(n))
	}

	return &InstrumentedStore{
		Store:   s,
		metrics: metrics,
	}
}

// Add inserts a record and updates the metrics.
func (s *InstrumentedStore) Add(ctx context.Context, name string, expirationDate model.Date) (bool, error) {
	added, err := s.Store.Add(ctx, name, expirationDate)
	if s.observe("add", added, err, resultDuplicate) {
		s.metrics.stored.Inc()
	}
	return added, err
}

// Delete removes a record and updates the metrics.
func (s *InstrumentedStore) Delete(ctx context.Context, name string, expirationDate model.Date) (bool, error) {
	deleted, err := s.Store.Delete(ctx, name, expirationDate)
	if s.observe("delete", deleted, err, resultNotFound) {
		s.metrics.stored.Dec()
	}
	return deleted, err
}

// observe counts one operation and reports whether it changed the store.
func (s *InstrumentedStore) observe(op string, ok bool, err error, failure string) bool {
	result := resultOK
	switch {
	case err != nil:
		result = resultError
	case !ok:
		result = failure
	}

	s.metrics.operations.WithLabelValues(op, result).Inc()

	return result == resultOK
}
