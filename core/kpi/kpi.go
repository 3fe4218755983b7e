// Package kpi aggregates a dispatch run into the financial and energy
// indicators reported to users: levelized costs for the solar plant and the
// battery, cost scenarios with and without the assets, self-consumption
// fractions and curtailment share.
package kpi

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/dmolinero/pvbess/core/battery"
	"github.com/dmolinero/pvbess/core/scheduler"
)

// Economics holds the investment and financing assumptions.
type Economics struct {
	// CapexPVPerKWp is the solar plant investment in EUR per kWp.
	CapexPVPerKWp float64 `json:"capex_pv_eur_per_kwp"`
	// CapexBatPerKWh is the battery investment in EUR per kWh.
	CapexBatPerKWh float64 `json:"capex_bat_eur_per_kwh"`
	// DiscountRate is the annual discount rate as a fraction, e.g. 0.06.
	DiscountRate float64 `json:"discount_rate"`
	// PVLifetimeYears is the solar plant's useful life.
	PVLifetimeYears int `json:"pv_lifetime_years"`
	// BatGuaranteedCycles is the manufacturer's guaranteed cycle count.
	BatGuaranteedCycles int `json:"bat_guaranteed_cycles"`
	// RoundTripEfficiency overrides the charge*discharge efficiency
	// product when set.
	RoundTripEfficiency float64 `json:"round_trip_efficiency"`
}

// Validate checks the assumptions against their domain.
func (e Economics) Validate() error {
	if e.CapexPVPerKWp < 0 || e.CapexBatPerKWh < 0 {
		return errors.New("capex values must be >= 0")
	}
	if e.DiscountRate < 0 || e.DiscountRate >= 1 {
		return errors.New("discount_rate must be in [0, 1)")
	}
	if e.PVLifetimeYears <= 0 {
		return errors.New("pv_lifetime_years must be > 0")
	}
	if e.BatGuaranteedCycles <= 0 {
		return errors.New("bat_guaranteed_cycles must be > 0")
	}
	if e.RoundTripEfficiency < 0 || e.RoundTripEfficiency > 1 {
		return errors.New("round_trip_efficiency must be in [0, 1]")
	}
	return nil
}

// KPIs is the full indicator set for one run. LCOE values may be NaN when the
// run gives them no denominator (no utilized solar energy, no cycling); NaN
// is legal here and only sanitized at the API boundary.
type KPIs struct {
	CostGridOnly      float64 `json:"cost_grid_only_eur"`
	CostPVGrid        float64 `json:"cost_pv_grid_eur"`
	CostPVBatteryGrid float64 `json:"cost_pv_battery_grid_eur"`

	PVDirectSharePct  float64 `json:"pv_direct_share_pct"`
	PVBatterySharePct float64 `json:"pv_battery_share_pct"`

	PVEquivalentHoursYear float64 `json:"pv_equivalent_hours_per_year"`
	LCOEPV                float64 `json:"lcoe_pv_eur_per_mwh"`
	CurtailmentPct        float64 `json:"curtailment_pct"`

	BatteryCyclesPerYear float64 `json:"battery_cycles_per_year"`
	BatteryLifeYears     int     `json:"battery_life_years"`
	LCOEBattery          float64 `json:"lcoe_battery_eur_per_mwh"`

	RoundTripEfficiency float64 `json:"round_trip_efficiency"`
}

// Map returns the indicators keyed by their JSON names, for sanitizing and
// reporting without reflection.
func (k KPIs) Map() map[string]float64 {
	return map[string]float64{
		"cost_grid_only_eur":           k.CostGridOnly,
		"cost_pv_grid_eur":             k.CostPVGrid,
		"cost_pv_battery_grid_eur":     k.CostPVBatteryGrid,
		"pv_direct_share_pct":          k.PVDirectSharePct,
		"pv_battery_share_pct":         k.PVBatterySharePct,
		"pv_equivalent_hours_per_year": k.PVEquivalentHoursYear,
		"lcoe_pv_eur_per_mwh":          k.LCOEPV,
		"curtailment_pct":              k.CurtailmentPct,
		"battery_cycles_per_year":      k.BatteryCyclesPerYear,
		"battery_life_years":           float64(k.BatteryLifeYears),
		"lcoe_battery_eur_per_mwh":     k.LCOEBattery,
		"round_trip_efficiency":        k.RoundTripEfficiency,
	}
}

// AnnualizationFactor returns the sum of discounted unit flows over n years:
// (1 - (1+r)^-n) / r, or n when the rate is zero.
func AnnualizationFactor(r float64, n int) float64 {
	if r == 0 {
		return float64(n)
	}
	return (1 - math.Pow(1+r, -float64(n))) / r
}

// Compute derives the indicator set from a finished run. pvMW is the
// installed solar capacity the production column was scaled to.
func Compute(res *scheduler.Result, bat battery.Params, eco Economics, pvMW float64) KPIs {
	sr := res.Series

	years := float64(sr.Len()) / 8760.0
	etaRT := eco.RoundTripEfficiency
	if etaRT == 0 {
		etaRT = bat.ChargeEfficiency * bat.DischargeEfficiency
	}

	pvTotal := floats.Sum(sr.Productions)
	curtailed := floats.Sum(res.Curtailment)
	utilized := pvTotal - curtailed

	curtailmentPct := 0.0
	if pvTotal > 0 {
		curtailmentPct = curtailed / pvTotal * 100
	}

	eqHoursTotal := pvTotal / years / pvMW
	eqHoursUtilized := utilized / years / pvMW

	faPV := AnnualizationFactor(eco.DiscountRate, eco.PVLifetimeYears)
	lcoePV := math.NaN()
	if eqHoursUtilized > 0 {
		lcoePV = eco.CapexPVPerKWp / eqHoursUtilized / faPV * 1000
	}

	discharged := floats.Sum(res.Discharge)
	cyclesPerYear := discharged / bat.CapacityMWh / years

	lifeYears := 0
	lcoeBat := math.NaN()
	if cyclesPerYear > 0 {
		lifeYears = int(math.Floor(float64(eco.BatGuaranteedCycles) / cyclesPerYear))
		faBat := 1.0
		if lifeYears > 0 {
			faBat = AnnualizationFactor(eco.DiscountRate, lifeYears)
		}
		if faBat > 0 {
			lcoeBat = eco.CapexBatPerKWh / (cyclesPerYear * etaRT * faBat) * 1000
		}
	}

	lcoePVSafe := nanToZero(lcoePV)
	lcoeBatSafe := nanToZero(lcoeBat)

	costGridOnly := floats.Dot(sr.Loads, sr.Prices)

	costPVGrid := 0.0
	for i := range sr.Loads {
		gridNoBatt := sr.Loads[i] - sr.DirectUse[i]
		if gridNoBatt < 0 {
			gridNoBatt = 0
		}
		costPVGrid += gridNoBatt*sr.Prices[i] + sr.DirectUse[i]*lcoePVSafe
	}

	costPVBattGrid := floats.Dot(res.GridImport, sr.Prices) +
		floats.Sum(sr.DirectUse)*lcoePVSafe +
		discharged*lcoeBatSafe

	loadTotal := floats.Sum(sr.Loads)
	directShare, battShare := 0.0, 0.0
	if loadTotal > 0 {
		directShare = floats.Sum(sr.DirectUse) / loadTotal * 100
		battShare = (floats.Sum(sr.DirectUse) + discharged) / loadTotal * 100
	}

	return KPIs{
		CostGridOnly:          costGridOnly,
		CostPVGrid:            costPVGrid,
		CostPVBatteryGrid:     costPVBattGrid,
		PVDirectSharePct:      directShare,
		PVBatterySharePct:     battShare,
		PVEquivalentHoursYear: eqHoursTotal,
		LCOEPV:                lcoePV,
		CurtailmentPct:        curtailmentPct,
		BatteryCyclesPerYear:  cyclesPerYear,
		BatteryLifeYears:      lifeYears,
		LCOEBattery:           lcoeBat,
		RoundTripEfficiency:   etaRT,
	}
}

func nanToZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
