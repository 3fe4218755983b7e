package scheduler

import (
	"fmt"

	"github.com/dmolinero/pvbess/core/battery"
	"github.com/dmolinero/pvbess/core/cycle"
	"github.com/dmolinero/pvbess/core/horizon"
	"github.com/dmolinero/pvbess/core/logger"
	"github.com/dmolinero/pvbess/core/series"
)

// Solver produces the per-step decisions for one optimization window.
// Implemented by horizon.Solver; replaced by fakes in tests.
type Solver interface {
	Solve(req horizon.Request) horizon.Solution
}

// CycleStat describes one accepted cycle: its half-open window, how many
// times it was extended before acceptance, and whether the final solve fell
// back to zero decisions.
type CycleStat struct {
	Start      int
	End        int
	Extensions int
	Fallback   bool
}

// Result holds the per-timestep dispatch decisions for a whole run. The
// buffers are pre-sized to the series length and written exactly once per
// index by the scheduler; no other component mutates them.
type Result struct {
	Series *series.Series

	Charge      []float64
	Discharge   []float64
	GridImport  []float64
	Curtailment []float64
	// Soc is the state of charge after each step's decision was applied.
	Soc []float64

	Cycles []CycleStat
}

// Extensions returns the total number of window extensions across all cycles.
func (r *Result) Extensions() int {
	n := 0
	for _, c := range r.Cycles {
		n += c.Extensions
	}
	return n
}

// Fallbacks returns how many accepted cycles used the zero-decision fallback.
func (r *Result) Fallbacks() int {
	n := 0
	for _, c := range r.Cycles {
		if c.Fallback {
			n++
		}
	}
	return n
}

// Scheduler owns the sequential construction of dispatch cycles and the
// running state-of-charge trajectory.
type Scheduler struct {
	bat    battery.Params
	cfg    Config
	solver Solver
	log    logger.Logger
}

// New validates the parameters and returns a scheduler backed by the LP
// horizon solver.
func New(bat battery.Params, cfg Config, log logger.Logger) (*Scheduler, error) {
	if err := bat.Validate(); err != nil {
		return nil, fmt.Errorf("battery params: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler config: %w", err)
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Scheduler{bat: bat, cfg: cfg, solver: horizon.Solver{}, log: log}, nil
}

// Run dispatches the battery over the whole series and returns the filled
// output buffers. The input series is read-only.
func (s *Scheduler) Run(sr *series.Series) *Result {
	n := sr.Len()
	res := &Result{
		Series:      sr,
		Charge:      make([]float64, n),
		Discharge:   make([]float64, n),
		GridImport:  make([]float64, n),
		Curtailment: make([]float64, n),
		Soc:         make([]float64, n),
	}
	// soc[k] is the state of charge entering step k; soc[n] closes the run.
	soc := make([]float64, n+1)
	soc[0] = s.bat.SocInitial

	cands := cycle.Candidates(sr.Excess, s.cfg.ExcessThreshold)
	if len(cands) == 0 {
		// No recharge opportunity anywhere: the battery never acts and
		// surplus below the threshold is not counted as curtailed.
		s.log.Infof("no surplus candidates, passive run over %d steps", n)
		for t := 0; t < n; t++ {
			res.GridImport[t] = sr.Deficit[t]
			res.Soc[t] = soc[0]
		}
		return res
	}

	// First cycle starts at the first candidate with charging headroom.
	// The battery is passive before the first cycle, so the soc at every
	// candidate equals soc_initial: either the first candidate qualifies
	// or none does, and a fully charged battery starts there regardless.
	tStart := cands[0]
	s.passive(res, sr, soc, 0, tStart)

	current := tStart
	candIdx := 1

	for current < n {
		tEnd := n
		if candIdx < len(cands) {
			tEnd = cands[candIdx]
		}

		// Solve the tentative window, extending it while its end would
		// leave no room to charge at the next recharge opportunity. The
		// cap guarantees termination for batteries that structurally
		// cannot free headroom.
		steps := 0
		var sol horizon.Solution
		for {
			sol = s.solver.Solve(s.request(sr, current, tEnd, soc[current]))
			socEnd := s.replay(soc[current], sol)

			hasSpace := true
			if tEnd < n && sr.Excess[tEnd] > s.cfg.ExcessThreshold {
				hasSpace = cycle.HasHeadroom(socEnd, s.bat.SocMax, s.cfg.SocFullEpsilon)
			}
			if hasSpace || tEnd == n || steps >= s.cfg.MaxExtensionSteps {
				break
			}

			candIdx++
			tEnd = n
			if candIdx < len(cands) {
				tEnd = cands[candIdx]
			}
			steps++
		}

		if sol.Fallback {
			s.log.Warnf("solver fallback for window [%d, %d): zero decisions applied", current, tEnd)
		}
		s.apply(res, sr, soc, current, sol)
		res.Cycles = append(res.Cycles, CycleStat{Start: current, End: tEnd, Extensions: steps, Fallback: sol.Fallback})
		s.log.Debugw("cycle accepted", map[string]any{
			"start": current, "end": tEnd, "extensions": steps, "fallback": sol.Fallback, "soc": soc[tEnd],
		})

		current = tEnd
		for candIdx < len(cands) && cands[candIdx] < current {
			candIdx++
		}

		// The battery is passive between cycles, so its state of charge
		// holds through the gap: either the next candidate can accept
		// charge now, or none ever will.
		next, after, ok := cycle.NextStart(cands[candIdx:], current, soc[current], s.bat.SocMax, s.cfg.SocFullEpsilon)
		if !ok {
			s.passive(res, sr, soc, current, n)
			break
		}
		s.passive(res, sr, soc, current, next)
		candIdx += after
		current = next
	}

	copy(res.Soc, soc[1:])
	return res
}

// request builds the window-local solver input for [start, end).
func (s *Scheduler) request(sr *series.Series, start, end int, soc0 float64) horizon.Request {
	return horizon.Request{
		Excess:        sr.Excess[start:end],
		Deficit:       sr.Deficit[start:end],
		Prices:        sr.Prices[start:end],
		Soc0:          soc0,
		Battery:       s.bat,
		EndSocTarget:  s.cfg.EndSocTarget,
		EndSocPenalty: s.cfg.EndSocPenaltyRate,
		ChargeBonus:   s.cfg.ChargeEarlyBonusRate,
		Shape:         s.cfg.Shape(),
	}
}

// replay walks a window's decisions to find the state of charge at its end,
// clipping each step into the operating band as a numerical safety net.
func (s *Scheduler) replay(soc0 float64, sol horizon.Solution) float64 {
	soc := soc0
	for i := range sol.Charge {
		soc = s.bat.Step(soc, sol.Charge[i], sol.Discharge[i])
	}
	return soc
}

// apply commits an accepted window's decisions to the output buffers and the
// soc trajectory, starting at index start.
func (s *Scheduler) apply(res *Result, sr *series.Series, soc []float64, start int, sol horizon.Solution) {
	for i := range sol.Charge {
		k := start + i
		res.Charge[k] = sol.Charge[i]
		res.Discharge[k] = sol.Discharge[i]
		res.GridImport[k] = sr.Deficit[k] - sol.Discharge[i]
		res.Curtailment[k] = sr.Excess[k] - sol.Charge[i]
		soc[k+1] = s.bat.Step(soc[k], sol.Charge[i], sol.Discharge[i])
	}
}

// passive fills [from, to) with no battery action: deficit is imported,
// surplus is curtailed and the state of charge holds.
func (s *Scheduler) passive(res *Result, sr *series.Series, soc []float64, from, to int) {
	for t := from; t < to; t++ {
		res.GridImport[t] = sr.Deficit[t]
		res.Curtailment[t] = sr.Excess[t]
		soc[t+1] = soc[t]
	}
}
