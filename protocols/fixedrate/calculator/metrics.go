package calculator

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the calculator's Prometheus collectors.
type Metrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewMetrics registers the calculator collectors with registry. Calculators sharing a
// registry share its collectors.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	duration, err := register(registry, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fixedrate_calculator_duration_seconds",
		Help:    "Time spent in a calculator operation.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}, []string{"op"}))
	if err != nil {
		return nil, err
	}
	errorsTotal, err := register(registry, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fixedrate_calculator_errors_total",
		Help: "Calculator operations that returned an error.",
	}, []string{"op"}))
	if err != nil {
		return nil, err
	}
	return &Metrics{duration: duration, errors: errorsTotal}, nil
}

// register adds c to registry, returning the collector already registered under the same
// descriptor if there is one.
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
