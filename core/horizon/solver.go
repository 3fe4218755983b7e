// Package horizon formulates and solves the per-cycle dispatch optimization.
// One call covers one half-open window of the time series: given the starting
// state of charge and the window's excess, deficit and price columns, it
// returns per-step charge and discharge decisions from a single bounded
// linear program.
package horizon

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/dmolinero/pvbess/core/battery"
)

// Request describes one optimization window. The slices are window-local:
// index 0 is the first step of the window. All slices must have equal length.
type Request struct {
	Excess  []float64
	Deficit []float64
	Prices  []float64
	Soc0    float64

	Battery battery.Params

	// EndSocTarget is the soft ceiling for the state of charge at the end
	// of the window; exceeding it costs EndSocPenalty per MWh of slack.
	EndSocTarget  float64
	EndSocPenalty float64

	// ChargeBonus rewards charge placed early in the window, weighted by
	// Shape across the steps.
	ChargeBonus float64
	Shape       WeightShape
}

// Solution carries the per-step decisions for one window. Fallback marks a
// window where the solver failed and the zero-decision fallback was applied;
// the vectors are then all zero but still sized to the window.
type Solution struct {
	Charge    []float64
	Discharge []float64
	Fallback  bool
}

// Solver solves dispatch windows with gonum's simplex method. The zero value
// is ready to use.
type Solver struct{}

// Solve formulates the window LP and returns its decisions. A zero-length
// window returns empty vectors without invoking the solver. A solver failure
// returns the all-zero fallback solution rather than an error, so a single
// degenerate window never breaks the full-series trajectory.
func (Solver) Solve(req Request) Solution {
	n := len(req.Excess)
	if n <= 0 {
		return Solution{}
	}

	bat := req.Battery
	chUB := make([]float64, n)
	disUB := make([]float64, n)
	for i := 0; i < n; i++ {
		chUB[i] = min(req.Excess[i], bat.PowerLimitMW)
		disUB[i] = min(req.Deficit[i], bat.PowerLimitMW)
	}

	// Decision vector x = [charge_0..n-1, discharge_0..n-1, slack].
	nv := 2*n + 1

	// Objective: grid cost minus the constant sum(deficit*price) term, so
	// minimize -sum(price*discharge) - bonus*sum(w*charge) + penalty*slack.
	w := req.Shape.Weights(n)
	c := make([]float64, nv)
	for i := 0; i < n; i++ {
		c[i] = -req.ChargeBonus * w[i]
		c[n+i] = -req.Prices[i]
	}
	c[2*n] = req.EndSocPenalty

	// General-form inequalities G x <= h. Convert treats variables as
	// free, so the bounds carry explicit non-negativity rows.
	rows := 4*n + 1 + 2*n + 1
	g := mat.NewDense(rows, nv, nil)
	h := make([]float64, rows)
	row := 0
	for i := 0; i < n; i++ {
		g.Set(row, i, 1)
		h[row] = chUB[i]
		row++
		g.Set(row, i, -1)
		row++
		g.Set(row, n+i, 1)
		h[row] = disUB[i]
		row++
		g.Set(row, n+i, -1)
		row++
	}
	g.Set(row, 2*n, -1) // slack >= 0
	row++

	// Cumulative state of charge relative to soc0 after each step, kept
	// inside the operating band via lower-triangular sums.
	chCoef := bat.ChargeEfficiency / bat.CapacityMWh
	disCoef := 1 / (bat.DischargeEfficiency * bat.CapacityMWh)
	for k := 0; k < n; k++ {
		for j := 0; j <= k; j++ {
			g.Set(row, j, chCoef)
			g.Set(row, n+j, -disCoef)
			g.Set(row+1, j, -chCoef)
			g.Set(row+1, n+j, disCoef)
		}
		h[row] = bat.SocMax - req.Soc0
		h[row+1] = -(bat.SocMin - req.Soc0)
		row += 2
	}

	// Soft terminal constraint: soc_end - slack/capacity <= target.
	for j := 0; j < n; j++ {
		g.Set(row, j, chCoef)
		g.Set(row, n+j, -disCoef)
	}
	g.Set(row, 2*n, -1/bat.CapacityMWh)
	h[row] = req.EndSocTarget - req.Soc0

	x, err := lpSolve(c, g, h)
	if err != nil {
		return Solution{Charge: make([]float64, n), Discharge: make([]float64, n), Fallback: true}
	}

	sol := Solution{Charge: make([]float64, n), Discharge: make([]float64, n)}
	for i := 0; i < n; i++ {
		sol.Charge[i] = clamp(x[i], 0, chUB[i])
		sol.Discharge[i] = clamp(x[n+i], 0, disUB[i])
	}
	return sol
}

// solveLP converts the general-form program to standard form and runs the
// simplex method. Convert splits each free variable into a positive and a
// negative part, so the original value is the difference of the two halves.
func solveLP(c []float64, g *mat.Dense, h []float64) ([]float64, error) {
	cStd, aStd, bStd := lp.Convert(c, g, h, nil, nil)
	_, sol, err := lp.Simplex(cStd, aStd, bStd, 1e-7, nil)
	if err != nil {
		return nil, err
	}
	nv := len(c)
	x := make([]float64, nv)
	for i := range x {
		x[i] = sol[i] - sol[nv+i]
	}
	return x, nil
}

// lpSolve points to the function used to solve the LP. It can be overridden
// in tests to simulate solver failures.
var lpSolve = solveLP

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
