package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Solve outcomes used as the "outcome" label
const (
	OutcomeOK                 = "ok"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeConversionError    = "conversion_error"
	OutcomeIntegrationBound   = "integration_bound"
	OutcomeWeatherUnavailable = "weather_unavailable"
	OutcomeCanceled           = "canceled"
	OutcomeError              = "error"
)

// SolveCollector bundles Prometheus metrics for release solves and exposes
// them over HTTP.
type SolveCollector struct {
	gatherer prometheus.Gatherer

	Solves           *prometheus.CounterVec
	SolveDurations   *prometheus.HistogramVec
	IntegrationSteps *prometheus.HistogramVec
	TimeOfFlight     prometheus.Gauge
	StoredSolutions  prometheus.Gauge
}

// NewSolveCollector registers solve metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewSolveCollector(reg prometheus.Registerer) (*SolveCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	solves, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ccrp_solves_total",
		Help: "Total number of release solves, labeled by outcome.",
	}, []string{"outcome"}), "ccrp_solves_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ccrp_solve_duration_seconds",
		Help:    "Wall-clock duration of a release solve in seconds.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"drag_model"}), "ccrp_solve_duration_seconds")
	if err != nil {
		return nil, err
	}

	steps, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ccrp_integration_steps",
		Help:    "Number of integrator steps taken per successful solve.",
		Buckets: prometheus.ExponentialBuckets(10, 4, 8),
	}, []string{"drag_model"}), "ccrp_integration_steps")
	if err != nil {
		return nil, err
	}

	tof, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ccrp_last_time_of_flight_seconds",
		Help: "Time of flight of the most recent successful solve.",
	}), "ccrp_last_time_of_flight_seconds")
	if err != nil {
		return nil, err
	}

	stored, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ccrp_stored_solutions",
		Help: "Number of solutions in the history store.",
	}), "ccrp_stored_solutions")
	if err != nil {
		return nil, err
	}

	return &SolveCollector{
		gatherer:         gatherer,
		Solves:           solves,
		SolveDurations:   durations,
		IntegrationSteps: steps,
		TimeOfFlight:     tof,
		StoredSolutions:  stored,
	}, nil
}

// ObserveSolve records one solve. steps and timeOfFlight are only recorded
// for successful solves.
func (c *SolveCollector) ObserveSolve(outcome, dragModel string, took time.Duration, steps int, timeOfFlight float64) {
	if c == nil {
		return
	}
	c.Solves.WithLabelValues(outcome).Inc()
	c.SolveDurations.WithLabelValues(dragModel).Observe(took.Seconds())
	if outcome == OutcomeOK {
		c.IntegrationSteps.WithLabelValues(dragModel).Observe(float64(steps))
		c.TimeOfFlight.Set(timeOfFlight)
	}
}

// SetStoredSolutions updates the history size gauge
func (c *SolveCollector) SetStoredSolutions(n int) {
	if c == nil {
		return
	}
	c.StoredSolutions.Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SolveCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
