package battery

import "errors"

// Params defines the physical battery parameters and its operating band.
// Capacity is in MWh, the power limit in MW, efficiencies and state-of-charge
// bounds are fractions in [0, 1].
type Params struct {
	CapacityMWh         float64 `json:"capacity_mwh"`
	PowerLimitMW        float64 `json:"power_limit_mw"`
	ChargeEfficiency    float64 `json:"charge_efficiency"`
	DischargeEfficiency float64 `json:"discharge_efficiency"`
	SocMin              float64 `json:"soc_min"`
	SocMax              float64 `json:"soc_max"`
	SocInitial          float64 `json:"soc_initial"`
}

// SetDefaults fills optional fields. An unset initial state of charge starts
// at the bottom of the operating band.
func (p *Params) SetDefaults() {
	if p.SocInitial == 0 {
		p.SocInitial = p.SocMin
	}
}

// Validate checks the parameters against their physical domain.
func (p Params) Validate() error {
	if p.CapacityMWh <= 0 {
		return errors.New("capacity_mwh must be > 0")
	}
	if p.PowerLimitMW < 0 {
		return errors.New("power_limit_mw must be >= 0")
	}
	if p.ChargeEfficiency <= 0 || p.ChargeEfficiency > 1 {
		return errors.New("charge_efficiency must be in (0, 1]")
	}
	if p.DischargeEfficiency <= 0 || p.DischargeEfficiency > 1 {
		return errors.New("discharge_efficiency must be in (0, 1]")
	}
	if p.SocMin < 0 || p.SocMin > 1 || p.SocMax < 0 || p.SocMax > 1 {
		return errors.New("soc_min and soc_max must be in [0, 1]")
	}
	if p.SocMin >= p.SocMax {
		return errors.New("soc_min must be < soc_max")
	}
	if p.SocInitial < p.SocMin || p.SocInitial > p.SocMax {
		return errors.New("soc_initial must be within [soc_min, soc_max]")
	}
	return nil
}

// Clamp clips a state of charge into the operating band.
func (p Params) Clamp(soc float64) float64 {
	if soc < p.SocMin {
		return p.SocMin
	}
	if soc > p.SocMax {
		return p.SocMax
	}
	return soc
}

// Step applies one step's charge and discharge (grid-side energies, MWh) to
// the state of charge and clamps the result into the operating band. The
// clamp is a numerical safety net on top of the solver's own constraints.
func (p Params) Step(soc, charge, discharge float64) float64 {
	soc += (charge*p.ChargeEfficiency - discharge/p.DischargeEfficiency) / p.CapacityMWh
	return p.Clamp(soc)
}
