package differ

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the differ's Prometheus collectors.
type Metrics struct {
	diffDuration *prometheus.HistogramVec
	poolChanges  *prometheus.CounterVec
}

// NewMetrics registers the differ collectors with registry, reusing collectors another
// differ already registered there.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	diffDuration, err := register(registry, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fixedrate_snapshot_diff_duration_seconds",
		Help:    "Time spent diffing two snapshots.",
		Buckets: prometheus.DefBuckets,
	}, []string{}))
	if err != nil {
		return nil, err
	}
	poolChanges, err := register(registry, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fixedrate_snapshot_pool_changes_total",
		Help: "Pools added, updated or deleted between snapshots.",
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}
	return &Metrics{diffDuration: diffDuration, poolChanges: poolChanges}, nil
}

func register[T prometheus.Collector](registry prometheus.Registerer, c T) (T, error) {
	if err := registry.Register(c); err != nil {
		var registered prometheus.AlreadyRegisteredError
		if errors.As(err, &registered) {
			if existing, ok := registered.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}
