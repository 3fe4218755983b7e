// Package export renders a finished simulation into the tabular and chart
// formats consumed downstream: CSV and JSON result tables with the derived
// hourly cost columns, a KPI report and the compact per-series arrays the
// front end plots.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/dmolinero/pvbess/core/kpi"
	"github.com/dmolinero/pvbess/core/scheduler"
)

// Costs carries the per-MWh energy costs and the battery capacity used to
// derive the hourly cost and stored-energy columns. NaN LCOE values count
// as zero, matching the KPI cost scenarios.
type Costs struct {
	LCOEPV      float64
	LCOEBattery float64
	CapacityMWh float64
}

// FromKPIs builds the cost inputs from a computed KPI set.
func FromKPIs(k kpi.KPIs, capacityMWh float64) Costs {
	return Costs{LCOEPV: k.LCOEPV, LCOEBattery: k.LCOEBattery, CapacityMWh: capacityMWh}
}

func (c Costs) hourly(res *scheduler.Result, i int) float64 {
	sr := res.Series
	return res.GridImport[i]*sr.Prices[i] +
		sr.DirectUse[i]*nanToZero(c.LCOEPV) +
		res.Discharge[i]*nanToZero(c.LCOEBattery)
}

var columns = []string{
	"timestamp", "price", "load", "production",
	"excess", "deficit", "direct_use",
	"charge", "discharge", "grid_import", "curtailment", "soc",
	"hourly_cost", "battery_energy",
}

// WriteCSV writes the full result table to w.
func WriteCSV(w io.Writer, res *scheduler.Result, costs Costs) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	sr := res.Series
	for i := 0; i < sr.Len(); i++ {
		rec := []string{
			sr.Times[i].Format(time.RFC3339),
			formatFloat(sr.Prices[i]),
			formatFloat(sr.Loads[i]),
			formatFloat(sr.Productions[i]),
			formatFloat(sr.Excess[i]),
			formatFloat(sr.Deficit[i]),
			formatFloat(sr.DirectUse[i]),
			formatFloat(res.Charge[i]),
			formatFloat(res.Discharge[i]),
			formatFloat(res.GridImport[i]),
			formatFloat(res.Curtailment[i]),
			formatFloat(res.Soc[i]),
			formatFloat(costs.hourly(res, i)),
			formatFloat(res.Soc[i] * costs.CapacityMWh),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Row is one timestep of the JSON result table.
type Row struct {
	Timestamp     time.Time `json:"timestamp"`
	Price         float64   `json:"price"`
	Load          float64   `json:"load"`
	Production    float64   `json:"production"`
	Excess        float64   `json:"excess"`
	Deficit       float64   `json:"deficit"`
	DirectUse     float64   `json:"direct_use"`
	Charge        float64   `json:"charge"`
	Discharge     float64   `json:"discharge"`
	GridImport    float64   `json:"grid_import"`
	Curtailment   float64   `json:"curtailment"`
	Soc           float64   `json:"soc"`
	HourlyCost    float64   `json:"hourly_cost"`
	BatteryEnergy float64   `json:"battery_energy"`
}

// WriteJSON writes the result table to w as a JSON array.
func WriteJSON(w io.Writer, res *scheduler.Result, costs Costs) error {
	sr := res.Series
	rows := make([]Row, sr.Len())
	for i := range rows {
		rows[i] = Row{
			Timestamp:     sr.Times[i],
			Price:         sr.Prices[i],
			Load:          sr.Loads[i],
			Production:    sr.Productions[i],
			Excess:        sr.Excess[i],
			Deficit:       sr.Deficit[i],
			DirectUse:     sr.DirectUse[i],
			Charge:        res.Charge[i],
			Discharge:     res.Discharge[i],
			GridImport:    res.GridImport[i],
			Curtailment:   res.Curtailment[i],
			Soc:           res.Soc[i],
			HourlyCost:    costs.hourly(res, i),
			BatteryEnergy: res.Soc[i] * costs.CapacityMWh,
		}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(rows)
}

// WriteKPIJSON writes the KPI set to w, with NaN and infinite values encoded
// as null so the document stays valid JSON.
func WriteKPIJSON(w io.Writer, k kpi.KPIs) error {
	m := k.Map()
	sanitized := make(map[string]any, len(m))
	for name, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			sanitized[name] = nil
		} else {
			sanitized[name] = v
		}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(sanitized)
}

// ChartPayload is the columnar form the chart front end consumes: timestamps
// once, then one array per plotted series.
type ChartPayload struct {
	Timestamps  []string  `json:"timestamps"`
	Price       []float64 `json:"price"`
	Load        []float64 `json:"load"`
	Production  []float64 `json:"production"`
	Charge      []float64 `json:"charge"`
	Discharge   []float64 `json:"discharge"`
	GridImport  []float64 `json:"grid_import"`
	Curtailment []float64 `json:"curtailment"`
	Soc         []float64 `json:"soc"`
}

// ChartData builds the chart arrays from a result.
func ChartData(res *scheduler.Result) ChartPayload {
	sr := res.Series
	stamps := make([]string, sr.Len())
	for i, ts := range sr.Times {
		stamps[i] = ts.Format(time.RFC3339)
	}
	return ChartPayload{
		Timestamps:  stamps,
		Price:       sr.Prices,
		Load:        sr.Loads,
		Production:  sr.Productions,
		Charge:      res.Charge,
		Discharge:   res.Discharge,
		GridImport:  res.GridImport,
		Curtailment: res.Curtailment,
		Soc:         res.Soc,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func nanToZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
