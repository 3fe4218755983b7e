package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/dmolinero/pvbess/core/metrics"
)

// PromSink records simulation events as Prometheus metrics.
type PromSink struct {
	runs       prometheus.Counter
	cycles     *prometheus.CounterVec
	extensions prometheus.Counter
	fallbacks  prometheus.Counter
	duration   prometheus.Histogram
	discharge  prometheus.Gauge
}

// NewPromSink registers the simulation metrics on the default Prometheus
// registerer. The HTTP exposure of /metrics is wired separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global one.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulation_runs_total",
		Help: "Total number of completed simulation runs",
	})
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simulation_cycles_total",
		Help: "Total number of accepted dispatch cycles",
	}, []string{"fallback"})
	extensions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulation_horizon_extensions_total",
		Help: "Total number of cycle window extensions",
	})
	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulation_solver_fallbacks_total",
		Help: "Total number of cycles resolved with the zero-decision fallback",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "simulation_run_duration_seconds",
		Help:    "Wall time of a full simulation run",
		Buckets: prometheus.DefBuckets,
	})
	discharge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simulation_last_run_discharge_mwh",
		Help: "Battery energy discharged during the most recent run",
	})

	s := &PromSink{runs: runs, cycles: cycles, extensions: extensions,
		fallbacks: fallbacks, duration: duration, discharge: discharge}
	for _, c := range []prometheus.Collector{runs, cycles, extensions, fallbacks, duration, discharge} {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// register tolerates re-registration so repeated sink construction in one
// process reuses the existing collectors.
func register(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// RecordRun updates the run-level metrics.
func (s *PromSink) RecordRun(m coremetrics.RunMetrics) error {
	s.runs.Inc()
	s.duration.Observe(m.Duration.Seconds())
	s.discharge.Set(m.DischargeMWh)
	return nil
}

// RecordCycle counts the cycle and its extensions.
func (s *PromSink) RecordCycle(m coremetrics.CycleMetrics) error {
	s.cycles.WithLabelValues(strconv.FormatBool(m.Fallback)).Inc()
	s.extensions.Add(float64(m.Extensions))
	if m.Fallback {
		s.fallbacks.Inc()
	}
	return nil
}
