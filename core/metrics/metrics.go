// Package metrics defines the observability events emitted by the simulation
// pipeline and the sink interface that records them. Concrete sinks live in
// infra/metrics.
package metrics

import "time"

// RunMetrics summarizes one full simulation run.
type RunMetrics struct {
	RunID          string
	Steps          int
	Cycles         int
	Extensions     int
	Fallbacks      int
	ChargeMWh      float64
	DischargeMWh   float64
	CurtailmentMWh float64
	Duration       time.Duration
	Time           time.Time
}

// CycleMetrics describes one accepted dispatch cycle within a run.
type CycleMetrics struct {
	RunID      string
	Start      int
	End        int
	Extensions int
	Fallback   bool
	Time       time.Time
}

// Sink records simulation events for observability purposes.
type Sink interface {
	RecordRun(m RunMetrics) error
	RecordCycle(m CycleMetrics) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordRun(RunMetrics) error     { return nil }
func (NopSink) RecordCycle(CycleMetrics) error { return nil }

// MultiSink fans events out to multiple sinks, returning the first error
// encountered.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordRun(ev RunMetrics) error {
	for _, s := range m.Sinks {
		if err := s.RecordRun(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordCycle(ev CycleMetrics) error {
	for _, s := range m.Sinks {
		if err := s.RecordCycle(ev); err != nil {
			return err
		}
	}
	return nil
}
