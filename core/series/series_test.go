package series

import (
	"testing"
	"time"
)

func TestDerive(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	points := []Point{
		{Time: base, Price: 50, Load: 1.0, Production: 0.0},
		{Time: base.Add(time.Hour), Price: 40, Load: 1.0, Production: 1.0},
		{Time: base.Add(2 * time.Hour), Price: 30, Load: 1.0, Production: 2.5},
		{Time: base.Add(3 * time.Hour), Price: 60, Load: 2.0, Production: 0.5},
	}
	s := Derive(points)
	if s.Len() != 4 {
		t.Fatalf("expected 4 steps, got %d", s.Len())
	}

	checks := []struct {
		name string
		got  []float64
		want []float64
	}{
		{"excess", s.Excess, []float64{0, 0, 1.5, 0}},
		{"deficit", s.Deficit, []float64{1, 0, 0, 1.5}},
		{"direct_use", s.DirectUse, []float64{0, 1, 1, 0.5}},
		{"prices", s.Prices, []float64{50, 40, 30, 60}},
	}
	for _, c := range checks {
		for i := range c.want {
			if c.got[i] != c.want[i] {
				t.Errorf("%s[%d] = %v, want %v", c.name, i, c.got[i], c.want[i])
			}
		}
	}
	if !s.Times[2].Equal(base.Add(2 * time.Hour)) {
		t.Errorf("timestamp not preserved: %v", s.Times[2])
	}
}

func TestDeriveEmpty(t *testing.T) {
	s := Derive(nil)
	if s.Len() != 0 {
		t.Fatalf("expected empty series, got %d steps", s.Len())
	}
}

func TestDeriveBalanced(t *testing.T) {
	s := Derive([]Point{{Load: 2, Production: 2}})
	if s.Excess[0] != 0 || s.Deficit[0] != 0 {
		t.Errorf("balanced step should have no excess or deficit: excess=%v deficit=%v", s.Excess[0], s.Deficit[0])
	}
	if s.DirectUse[0] != 2 {
		t.Errorf("direct_use = %v, want 2", s.DirectUse[0])
	}
}
