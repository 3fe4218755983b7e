package horizon

// WeightShape selects how the early-charge bonus decays across a window.
type WeightShape int

const (
	// WeightLinear decays from 1 at the window start to 0 at its end,
	// rewarding charge placed as early as possible.
	WeightLinear WeightShape = iota
	// WeightUniform applies the bonus equally to every step.
	WeightUniform
)

// ParseWeightShape maps a configuration value to a shape. "linear" selects
// the decaying profile; any other value falls back to uniform.
func ParseWeightShape(s string) WeightShape {
	if s == "linear" {
		return WeightLinear
	}
	return WeightUniform
}

// String returns the configuration name of the shape.
func (w WeightShape) String() string {
	switch w {
	case WeightLinear:
		return "linear"
	case WeightUniform:
		return "uniform"
	default:
		return "unknown"
	}
}

// Weights returns the per-step bonus weights for a window of length n.
func (w WeightShape) Weights(n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if w == WeightLinear && n > 1 {
		step := 1.0 / float64(n-1)
		for i := range out {
			out[i] = 1 - float64(i)*step
		}
		return out
	}
	for i := range out {
		out[i] = 1
	}
	return out
}
