package scheduler

import (
	"errors"

	"github.com/dmolinero/pvbess/core/battery"
	"github.com/dmolinero/pvbess/core/horizon"
)

// Config holds the dispatch tuning knobs beyond the physical battery
// parameters.
type Config struct {
	// ExcessThreshold is the minimum solar surplus, in MWh per step, for a
	// step to count as the start of a recharge opportunity.
	ExcessThreshold float64 `json:"excess_threshold"`
	// SocFullEpsilon is the headroom tolerance: a battery within this
	// distance of soc_max counts as full.
	SocFullEpsilon float64 `json:"soc_full_epsilon"`
	// EndSocTarget is the soft ceiling for the state of charge at the end
	// of each cycle. Negative means "use soc_min".
	EndSocTarget float64 `json:"end_soc_target"`
	// EndSocPenaltyRate prices, in EUR per MWh, ending a cycle above the
	// target.
	EndSocPenaltyRate float64 `json:"end_soc_penalty_rate"`
	// ChargeEarlyBonusRate rewards, in EUR per MWh, charge placed early in
	// a cycle, weighted by ChargeEarlyShape.
	ChargeEarlyBonusRate float64 `json:"charge_early_bonus_rate"`
	// ChargeEarlyShape is "linear" for a bonus decaying across the cycle;
	// any other value weights every step equally.
	ChargeEarlyShape string `json:"charge_early_shape"`
	// MaxExtensionSteps caps how many times a cycle may be extended to the
	// next candidate before its window is accepted regardless of headroom.
	MaxExtensionSteps int `json:"max_extension_steps"`
}

// SetDefaults fills unset fields with the standard tuning. EndSocTarget
// defaults to the battery's soc_min; set it negative to force that default
// explicitly.
func (c *Config) SetDefaults(bat battery.Params) {
	if c.ExcessThreshold == 0 {
		c.ExcessThreshold = 1e-6
	}
	if c.SocFullEpsilon == 0 {
		c.SocFullEpsilon = 1e-4
	}
	if c.EndSocTarget <= 0 {
		c.EndSocTarget = bat.SocMin
	}
	if c.EndSocPenaltyRate == 0 {
		c.EndSocPenaltyRate = 2000
	}
	if c.ChargeEarlyBonusRate == 0 {
		c.ChargeEarlyBonusRate = 0.01
	}
	if c.ChargeEarlyShape == "" {
		c.ChargeEarlyShape = "linear"
	}
	if c.MaxExtensionSteps == 0 {
		c.MaxExtensionSteps = 10
	}
}

// Validate checks the tuning values.
func (c Config) Validate() error {
	if c.ExcessThreshold < 0 {
		return errors.New("excess_threshold must be >= 0")
	}
	if c.SocFullEpsilon <= 0 {
		return errors.New("soc_full_epsilon must be > 0")
	}
	if c.EndSocPenaltyRate < 0 {
		return errors.New("end_soc_penalty_rate must be >= 0")
	}
	if c.MaxExtensionSteps < 0 {
		return errors.New("max_extension_steps must be >= 0")
	}
	return nil
}

// Shape returns the early-charge weighting strategy selected by the config.
func (c Config) Shape() horizon.WeightShape {
	return horizon.ParseWeightShape(c.ChargeEarlyShape)
}
