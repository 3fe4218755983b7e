package scheduler

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/dmolinero/pvbess/core/battery"
	"github.com/dmolinero/pvbess/core/horizon"
	"github.com/dmolinero/pvbess/core/series"
)

func buildSeries(load, production, price []float64) *series.Series {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]series.Point, len(load))
	for i := range load {
		pts[i] = series.Point{
			Time:       base.Add(time.Duration(i) * time.Hour),
			Price:      price[i],
			Load:       load[i],
			Production: production[i],
		}
	}
	return series.Derive(pts)
}

func defaultConfig(bat battery.Params) Config {
	var cfg Config
	cfg.SetDefaults(bat)
	return cfg
}

func checkInvariants(t *testing.T, res *Result, bat battery.Params) {
	t.Helper()
	sr := res.Series
	const tol = 1e-6
	for i := 0; i < sr.Len(); i++ {
		if res.Charge[i] < -tol || res.Charge[i] > math.Min(sr.Excess[i], bat.PowerLimitMW)+tol {
			t.Errorf("charge[%d] = %v violates bounds", i, res.Charge[i])
		}
		if res.Discharge[i] < -tol || res.Discharge[i] > math.Min(sr.Deficit[i], bat.PowerLimitMW)+tol {
			t.Errorf("discharge[%d] = %v violates bounds", i, res.Discharge[i])
		}
		if res.GridImport[i] < -tol {
			t.Errorf("grid_import[%d] = %v negative", i, res.GridImport[i])
		}
		if res.Curtailment[i] < -tol {
			t.Errorf("curtailment[%d] = %v negative", i, res.Curtailment[i])
		}
		if res.Soc[i] < bat.SocMin-tol || res.Soc[i] > bat.SocMax+tol {
			t.Errorf("soc[%d] = %v outside [%v, %v]", i, res.Soc[i], bat.SocMin, bat.SocMax)
		}
	}
}

func TestRunNoSurplusIsPassive(t *testing.T) {
	bat := battery.Params{
		CapacityMWh: 1, PowerLimitMW: 1,
		ChargeEfficiency: 0.95, DischargeEfficiency: 0.95,
		SocMin: 0.1, SocMax: 0.9, SocInitial: 0.1,
	}
	sr := buildSeries([]float64{1, 1, 1}, []float64{0, 0, 0}, []float64{10, 20, 30})
	s, err := New(bat, defaultConfig(bat), nil)
	if err != nil {
		t.Fatal(err)
	}
	res := s.Run(sr)
	for i := 0; i < 3; i++ {
		if res.Charge[i] != 0 || res.Discharge[i] != 0 {
			t.Errorf("step %d: battery should be untouched", i)
		}
		if res.GridImport[i] != 1 {
			t.Errorf("grid_import[%d] = %v, want 1", i, res.GridImport[i])
		}
		if res.Curtailment[i] != 0 {
			t.Errorf("curtailment[%d] = %v, want 0", i, res.Curtailment[i])
		}
		if res.Soc[i] != bat.SocInitial {
			t.Errorf("soc[%d] = %v, want %v", i, res.Soc[i], bat.SocInitial)
		}
	}
	if len(res.Cycles) != 0 {
		t.Errorf("passive run should have no cycles, got %d", len(res.Cycles))
	}
}

func TestRunSubThresholdSurplusIsPassiveWithZeroCurtailment(t *testing.T) {
	bat := battery.Params{
		CapacityMWh: 1, PowerLimitMW: 1,
		ChargeEfficiency: 1, DischargeEfficiency: 1,
		SocMin: 0, SocMax: 1, SocInitial: 0.5,
	}
	cfg := defaultConfig(bat)
	cfg.ExcessThreshold = 10
	sr := buildSeries([]float64{1, 1}, []float64{3, 3}, []float64{10, 10})
	s, err := New(bat, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	res := s.Run(sr)
	for i := 0; i < 2; i++ {
		if res.Curtailment[i] != 0 {
			t.Errorf("sub-threshold surplus must not count as curtailment, got %v", res.Curtailment[i])
		}
		if res.Soc[i] != 0.5 {
			t.Errorf("soc[%d] = %v, want constant 0.5", i, res.Soc[i])
		}
	}
}

func TestRunSingleCycleChargesAndDischargesAtBestPrice(t *testing.T) {
	bat := battery.Params{
		CapacityMWh: 1, PowerLimitMW: 1,
		ChargeEfficiency: 0.95, DischargeEfficiency: 0.95,
		SocMin: 0.1, SocMax: 0.9, SocInitial: 0.1,
	}
	sr := buildSeries(
		[]float64{1, 1, 1, 1, 1},
		[]float64{0, 0, 3, 0, 0},
		[]float64{10, 20, 5, 30, 15},
	)
	s, err := New(bat, defaultConfig(bat), nil)
	if err != nil {
		t.Fatal(err)
	}
	res := s.Run(sr)
	checkInvariants(t, res, bat)

	if len(res.Cycles) != 1 {
		t.Fatalf("expected a single cycle, got %+v", res.Cycles)
	}
	if res.Cycles[0].Start != 2 || res.Cycles[0].End != 5 {
		t.Errorf("cycle window = [%d, %d), want [2, 5)", res.Cycles[0].Start, res.Cycles[0].End)
	}
	if res.Cycles[0].Fallback {
		t.Fatal("unexpected solver fallback")
	}
	// The only surplus is at t=2 (excess 2, bounded by the 1 MW limit and
	// the 0.8 usable band); discharge belongs at t=3, the priciest deficit.
	if res.Charge[2] <= 0 {
		t.Errorf("charge[2] = %v, want > 0", res.Charge[2])
	}
	if res.Discharge[3] <= 0 {
		t.Errorf("discharge[3] = %v, want > 0", res.Discharge[3])
	}
	if got := sr.Deficit[3] - res.Discharge[3]; math.Abs(res.GridImport[3]-got) > 1e-9 {
		t.Errorf("grid_import[3] = %v, want deficit - discharge = %v", res.GridImport[3], got)
	}
	if res.GridImport[3] >= sr.Deficit[3] {
		t.Error("discharge should reduce the import at the priciest step")
	}
	// Pre-cycle steps are passive.
	for i := 0; i < 2; i++ {
		if res.Charge[i] != 0 || res.Discharge[i] != 0 {
			t.Errorf("step %d precedes the first cycle, battery must be idle", i)
		}
		if res.Soc[i] != bat.SocInitial {
			t.Errorf("soc[%d] = %v, want %v", i, res.Soc[i], bat.SocInitial)
		}
	}
}

func TestRunIsDeterministic(t *testing.T) {
	bat := battery.Params{
		CapacityMWh: 2, PowerLimitMW: 1,
		ChargeEfficiency: 0.9, DischargeEfficiency: 0.9,
		SocMin: 0.05, SocMax: 0.95, SocInitial: 0.2,
	}
	load := []float64{1, 2, 1, 1, 3, 1, 2, 1}
	prod := []float64{0, 0, 4, 2, 0, 0, 3, 0}
	price := []float64{15, 40, 5, 8, 60, 30, 4, 25}
	s, err := New(bat, defaultConfig(bat), nil)
	if err != nil {
		t.Fatal(err)
	}
	a := s.Run(buildSeries(load, prod, price))
	b := s.Run(buildSeries(load, prod, price))
	if !reflect.DeepEqual(a.Charge, b.Charge) || !reflect.DeepEqual(a.Discharge, b.Discharge) ||
		!reflect.DeepEqual(a.Soc, b.Soc) {
		t.Error("identical inputs must produce identical outputs")
	}
	checkInvariants(t, a, bat)
}

// windowSolver records every solve request and always returns zero decisions,
// simulating a battery that can never free headroom.
type windowSolver struct {
	windows [][2]int
	base    []float64
}

func (f *windowSolver) Solve(req horizon.Request) horizon.Solution {
	n := len(req.Excess)
	f.windows = append(f.windows, [2]int{n, n})
	return horizon.Solution{Charge: make([]float64, n), Discharge: make([]float64, n)}
}

func TestRunExtendsMergedWindowWhenBoundaryIsFull(t *testing.T) {
	bat := battery.Params{
		CapacityMWh: 1, PowerLimitMW: 1,
		ChargeEfficiency: 1, DischargeEfficiency: 1,
		SocMin: 0.1, SocMax: 0.9,
		SocInitial: 0.9, // full from the start, no decision frees headroom
	}
	cfg := defaultConfig(bat)
	s, err := New(bat, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	fake := &windowSolver{}
	s.solver = fake

	// Candidates at t=1, t=3 and t=5.
	sr := buildSeries(
		[]float64{1, 0, 1, 0, 1, 0, 1, 1},
		[]float64{0, 2, 0, 2, 0, 2, 0, 0},
		[]float64{10, 10, 10, 10, 10, 10, 10, 10},
	)
	res := s.Run(sr)
	checkInvariants(t, res, bat)

	// The first window [1,3) ends on a full boundary, so it extends to
	// [1,5) and then to [1,8), which ends at the series boundary.
	wantLens := []int{2, 4, 7}
	if len(fake.windows) != len(wantLens) {
		t.Fatalf("solver invoked %d times, want %d", len(fake.windows), len(wantLens))
	}
	for i, want := range wantLens {
		if fake.windows[i][0] != want {
			t.Errorf("solve %d window length = %d, want %d", i, fake.windows[i][0], want)
		}
	}
	if len(res.Cycles) != 1 {
		t.Fatalf("expected one merged cycle, got %+v", res.Cycles)
	}
	c := res.Cycles[0]
	if c.Start != 1 || c.End != 8 || c.Extensions != 2 {
		t.Errorf("cycle = %+v, want start=1 end=8 extensions=2", c)
	}
	if c.Extensions > cfg.MaxExtensionSteps {
		t.Errorf("extensions %d exceed cap %d", c.Extensions, cfg.MaxExtensionSteps)
	}
}

func TestRunExtensionCapGuaranteesTermination(t *testing.T) {
	bat := battery.Params{
		CapacityMWh: 1, PowerLimitMW: 1,
		ChargeEfficiency: 1, DischargeEfficiency: 1,
		SocMin: 0.1, SocMax: 0.9, SocInitial: 0.9,
	}
	cfg := defaultConfig(bat)
	cfg.MaxExtensionSteps = 2
	s, err := New(bat, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	fake := &windowSolver{}
	s.solver = fake

	// Surplus every other step: far more candidates than the cap allows
	// extensions, so windows must be accepted while still "full".
	load := make([]float64, 20)
	prod := make([]float64, 20)
	price := make([]float64, 20)
	for i := range load {
		load[i] = 1
		price[i] = 10
		if i%2 == 1 {
			prod[i] = 3
		}
	}
	res := s.Run(buildSeries(load, prod, price))

	cands := 10
	if got, bound := len(fake.windows), cands*(cfg.MaxExtensionSteps+1); got > bound {
		t.Errorf("solver invoked %d times, bound is %d", got, bound)
	}
	for _, c := range res.Cycles {
		if c.Extensions > cfg.MaxExtensionSteps {
			t.Errorf("cycle %+v exceeds extension cap", c)
		}
	}
}

func TestRunZeroPowerLimitTerminates(t *testing.T) {
	bat := battery.Params{
		CapacityMWh: 1, PowerLimitMW: 0,
		ChargeEfficiency: 1, DischargeEfficiency: 1,
		SocMin: 0.1, SocMax: 0.9, SocInitial: 0.5,
	}
	sr := buildSeries(
		[]float64{1, 0, 1, 0},
		[]float64{0, 2, 0, 2},
		[]float64{10, 10, 10, 10},
	)
	s, err := New(bat, defaultConfig(bat), nil)
	if err != nil {
		t.Fatal(err)
	}
	res := s.Run(sr)
	checkInvariants(t, res, bat)
	for i := range res.Charge {
		if res.Charge[i] != 0 || res.Discharge[i] != 0 {
			t.Errorf("zero power limit must force zero decisions at %d", i)
		}
	}
}

func TestNewRejectsInvalidParams(t *testing.T) {
	bat := battery.Params{
		CapacityMWh: 1, PowerLimitMW: 1,
		ChargeEfficiency: 1, DischargeEfficiency: 1,
		SocMin: 0.9, SocMax: 0.1, SocInitial: 0.5,
	}
	if _, err := New(bat, defaultConfig(bat), nil); err == nil {
		t.Fatal("inverted soc band must be rejected")
	}
}
