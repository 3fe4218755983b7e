package series

import "time"

// Point is one aligned timestep of market and site data. Price is the grid
// energy price for the step, Load the site consumption and Production the
// solar output, both in energy units over the step.
type Point struct {
	Time       time.Time
	Price      float64
	Load       float64
	Production float64
}

// Series is the columnar form of the aligned inputs plus the derived columns
// consumed by the dispatch scheduler. Build it once with Derive and treat it
// as read-only afterwards.
type Series struct {
	Times       []time.Time
	Prices      []float64
	Loads       []float64
	Productions []float64

	// Excess is production above load, floored at zero.
	Excess []float64
	// Deficit is load above production, floored at zero.
	Deficit []float64
	// DirectUse is production consumed on site within the same step.
	DirectUse []float64
}

// Derive builds the columnar series and its derived columns from aligned
// input points. The input order is preserved; points are expected to be
// timestamp ascending.
func Derive(points []Point) *Series {
	n := len(points)
	s := &Series{
		Times:       make([]time.Time, n),
		Prices:      make([]float64, n),
		Loads:       make([]float64, n),
		Productions: make([]float64, n),
		Excess:      make([]float64, n),
		Deficit:     make([]float64, n),
		DirectUse:   make([]float64, n),
	}
	for i, p := range points {
		s.Times[i] = p.Time
		s.Prices[i] = p.Price
		s.Loads[i] = p.Load
		s.Productions[i] = p.Production
		if p.Production > p.Load {
			s.Excess[i] = p.Production - p.Load
			s.DirectUse[i] = p.Load
		} else {
			s.Deficit[i] = p.Load - p.Production
			s.DirectUse[i] = p.Production
		}
	}
	return s
}

// Len returns the number of timesteps.
func (s *Series) Len() int {
	return len(s.Times)
}
