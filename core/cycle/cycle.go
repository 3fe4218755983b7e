// Package cycle locates the surplus-block boundaries that delimit dispatch
// cycles. A candidate is the first step of a contiguous block where solar
// excess rises above the detection threshold; cycles start and end on
// candidates so every cycle ends where a real recharge opportunity begins.
package cycle

// Candidates returns the ordered indices where a surplus block begins:
// excess[i] > threshold and the previous step (if any) was at or below it.
// The result is strictly increasing and never contains duplicates.
func Candidates(excess []float64, threshold float64) []int {
	var cands []int
	prevAbove := false
	for i, e := range excess {
		above := e > threshold
		if above && !prevAbove {
			cands = append(cands, i)
		}
		prevAbove = above
	}
	return cands
}

// HasHeadroom reports whether a battery at the given state of charge can
// still absorb energy, within the fullness tolerance eps.
func HasHeadroom(soc, socMax, eps float64) bool {
	return soc < socMax-eps
}

// NextStart returns the first candidate at or after cursor where the battery
// has charging headroom. The battery is passive between cycles, so a single
// soc value describes the whole scan range. The second return is the position
// just past the chosen candidate, for advancing a consumption pointer. When
// no candidate qualifies it returns (-1, len(cands), false).
func NextStart(cands []int, cursor int, soc, socMax, eps float64) (int, int, bool) {
	for j, c := range cands {
		if c < cursor {
			continue
		}
		if HasHeadroom(soc, socMax, eps) {
			return c, j + 1, true
		}
		// A full battery stays full through the passive stretch, so no
		// later candidate can qualify either.
		return -1, len(cands), false
	}
	return -1, len(cands), false
}
