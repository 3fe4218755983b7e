package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/dmolinero/pvbess/core/metrics"
)

func gatherValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	if err := sink.RecordRun(coremetrics.RunMetrics{
		RunID: "r1", Steps: 24, Cycles: 2, DischargeMWh: 1.5,
		Duration: 20 * time.Millisecond, Time: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := sink.RecordCycle(coremetrics.CycleMetrics{RunID: "r1", Start: 0, End: 12, Extensions: 3}); err != nil {
		t.Fatal(err)
	}
	if err := sink.RecordCycle(coremetrics.CycleMetrics{RunID: "r1", Start: 12, End: 24, Fallback: true}); err != nil {
		t.Fatal(err)
	}

	if got := gatherValue(t, reg, "simulation_runs_total"); got != 1 {
		t.Errorf("runs_total = %v, want 1", got)
	}
	if got := gatherValue(t, reg, "simulation_cycles_total"); got != 2 {
		t.Errorf("cycles_total = %v, want 2", got)
	}
	if got := gatherValue(t, reg, "simulation_horizon_extensions_total"); got != 3 {
		t.Errorf("extensions_total = %v, want 3", got)
	}
	if got := gatherValue(t, reg, "simulation_solver_fallbacks_total"); got != 1 {
		t.Errorf("fallbacks_total = %v, want 1", got)
	}
	if got := gatherValue(t, reg, "simulation_last_run_discharge_mwh"); got != 1.5 {
		t.Errorf("discharge gauge = %v, want 1.5", got)
	}
}

func TestPromSinkReregistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("second registration should reuse collectors: %v", err)
	}
}

func TestNewSinksDefaultsToNop(t *testing.T) {
	sink, err := NewSinks(coremetrics.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.(coremetrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", sink)
	}
}
