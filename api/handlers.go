package api

import (
	"bytes"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmolinero/pvbess/config"
	"github.com/dmolinero/pvbess/infra/logger"
	"github.com/dmolinero/pvbess/pkg/export"
)

type handler struct {
	cfg       *config.Config
	runner    Runner
	log       logger.Logger
	downloads *downloadStore
}

// ErrorResponse is the envelope for all error replies.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorJSON(c *gin.Context, status int, code, msg string) {
	c.JSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: msg}})
}

// SimulateRequest carries optional scalar overrides of the base
// configuration. Pointers distinguish "absent" from zero values.
type SimulateRequest struct {
	PVMW          *float64 `json:"pv_mw"`
	PVReferenceMW *float64 `json:"pv_reference_mw"`

	BatteryCapacityMWh  *float64 `json:"battery_capacity_mwh"`
	BatteryPowerLimitMW *float64 `json:"battery_power_limit_mw"`
	ChargeEfficiency    *float64 `json:"charge_efficiency"`
	DischargeEfficiency *float64 `json:"discharge_efficiency"`
	SocMin              *float64 `json:"soc_min"`
	SocMax              *float64 `json:"soc_max"`
	SocInitial          *float64 `json:"soc_initial"`

	CapexPVPerKWp       *float64 `json:"capex_pv_eur_per_kwp"`
	CapexBatPerKWh      *float64 `json:"capex_bat_eur_per_kwh"`
	DiscountRate        *float64 `json:"discount_rate"`
	PVLifetimeYears     *int     `json:"pv_lifetime_years"`
	BatGuaranteedCycles *int     `json:"bat_guaranteed_cycles"`

	AllowExport         *bool `json:"allow_export"`
	AllowChargeFromGrid *bool `json:"allow_charge_from_grid"`
}

// apply merges the overrides into a copy of the base configuration.
func (r SimulateRequest) apply(base *config.Config) *config.Config {
	cfg := base.Clone()
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setF(&cfg.Data.PVMW, r.PVMW)
	setF(&cfg.Data.PVReferenceMW, r.PVReferenceMW)
	setF(&cfg.Simulation.Battery.CapacityMWh, r.BatteryCapacityMWh)
	setF(&cfg.Simulation.Battery.PowerLimitMW, r.BatteryPowerLimitMW)
	setF(&cfg.Simulation.Battery.ChargeEfficiency, r.ChargeEfficiency)
	setF(&cfg.Simulation.Battery.DischargeEfficiency, r.DischargeEfficiency)
	setF(&cfg.Simulation.Battery.SocMin, r.SocMin)
	setF(&cfg.Simulation.Battery.SocMax, r.SocMax)
	setF(&cfg.Simulation.Battery.SocInitial, r.SocInitial)
	setF(&cfg.Economics.CapexPVPerKWp, r.CapexPVPerKWp)
	setF(&cfg.Economics.CapexBatPerKWh, r.CapexBatPerKWh)
	setF(&cfg.Economics.DiscountRate, r.DiscountRate)
	if r.PVLifetimeYears != nil {
		cfg.Economics.PVLifetimeYears = *r.PVLifetimeYears
	}
	if r.BatGuaranteedCycles != nil {
		cfg.Economics.BatGuaranteedCycles = *r.BatGuaranteedCycles
	}
	if r.AllowExport != nil {
		cfg.Simulation.AllowExport = *r.AllowExport
	}
	if r.AllowChargeFromGrid != nil {
		cfg.Simulation.AllowChargeFromGrid = *r.AllowChargeFromGrid
	}
	return cfg
}

// SimulateResponse is the success reply of the simulate endpoint.
type SimulateResponse struct {
	RunID         string              `json:"run_id"`
	KPIs          map[string]any      `json:"kpis"`
	Chart         export.ChartPayload `json:"chart"`
	DownloadToken string              `json:"download_token,omitempty"`
}

func (h *handler) simulate(c *gin.Context) {
	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	cfg := req.apply(h.cfg)
	if err := cfg.Finalize(); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}

	out, err := h.runner.Simulate(c.Request.Context(), cfg)
	if err != nil {
		h.log.Errorf("simulate: %v", err)
		errorJSON(c, http.StatusInternalServerError, "SIMULATION_FAILED", err.Error())
		return
	}

	resp := SimulateResponse{
		RunID: out.RunID,
		KPIs:  sanitize(out.KPIs.Map()),
		Chart: export.ChartData(out.Result),
	}
	if cfg.Simulation.AllowExport {
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, out.Result, out.Costs); err != nil {
			h.log.Errorf("render csv: %v", err)
			errorJSON(c, http.StatusInternalServerError, "EXPORT_FAILED", err.Error())
			return
		}
		resp.DownloadToken = h.downloads.put(buf.Bytes())
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) download(c *gin.Context) {
	token := c.Param("token")
	data, ok := h.downloads.pop(token)
	if !ok {
		errorJSON(c, http.StatusNotFound, "UNKNOWN_TOKEN", "token is invalid or was already used")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="results.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}

// sanitize replaces NaN and infinite values with null so the response stays
// valid JSON.
func sanitize(m map[string]float64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[k] = nil
		} else {
			out[k] = v
		}
	}
	return out
}
