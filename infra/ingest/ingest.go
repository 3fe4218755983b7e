// Package ingest loads the aligned price, solar and consumption series from
// CSV files. The three files are joined on their datetime column onto the
// price grid and the solar column is rescaled from the reference plant size
// to the configured one.
package ingest

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"

	pvseries "github.com/dmolinero/pvbess/core/series"
)

// FileConfig locates one input series inside a CSV file.
type FileConfig struct {
	Path           string `json:"path"`
	DatetimeColumn string `json:"datetime_column"`
	ValueColumn    string `json:"value_column"`
}

// Config defines the three input files and the solar scaling.
type Config struct {
	Prices      FileConfig `json:"prices"`
	Solar       FileConfig `json:"solar"`
	Consumption FileConfig `json:"consumption"`

	// PVMW is the installed solar capacity to simulate; the solar file is
	// assumed to describe a PVReferenceMW plant and is scaled accordingly.
	PVMW          float64 `json:"pv_mw"`
	PVReferenceMW float64 `json:"pv_reference_mw"`

	// TimeLayout parses the datetime columns, in Go reference-time form.
	TimeLayout string `json:"time_layout"`
}

// SetDefaults fills optional fields.
func (c *Config) SetDefaults() {
	if c.TimeLayout == "" {
		c.TimeLayout = "2006-01-02 15:04:05"
	}
	if c.Prices.DatetimeColumn == "" {
		c.Prices.DatetimeColumn = "datetime"
	}
	if c.Solar.DatetimeColumn == "" {
		c.Solar.DatetimeColumn = "datetime"
	}
	if c.Consumption.DatetimeColumn == "" {
		c.Consumption.DatetimeColumn = "datetime"
	}
}

// Validate checks that every file and column is configured.
func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		fc   FileConfig
	}{{"prices", c.Prices}, {"solar", c.Solar}, {"consumption", c.Consumption}} {
		if f.fc.Path == "" {
			return fmt.Errorf("%s.path is required", f.name)
		}
		if f.fc.ValueColumn == "" {
			return fmt.Errorf("%s.value_column is required", f.name)
		}
	}
	if c.PVMW <= 0 {
		return errors.New("pv_mw must be > 0")
	}
	if c.PVReferenceMW <= 0 {
		return errors.New("pv_reference_mw must be > 0")
	}
	return nil
}

// Load reads and joins the three files into timestamp-ascending points.
func Load(cfg Config) ([]pvseries.Point, error) {
	prices, err := readFrame(cfg.Prices, "price")
	if err != nil {
		return nil, fmt.Errorf("prices: %w", err)
	}
	solar, err := readFrame(cfg.Solar, "solar")
	if err != nil {
		return nil, fmt.Errorf("solar: %w", err)
	}
	cons, err := readFrame(cfg.Consumption, "load")
	if err != nil {
		return nil, fmt.Errorf("consumption: %w", err)
	}

	joined := prices.LeftJoin(solar, "datetime").LeftJoin(cons, "datetime")
	if joined.Err != nil {
		return nil, fmt.Errorf("join on datetime: %w", joined.Err)
	}
	if joined.Nrow() == 0 {
		return nil, errors.New("joined series is empty")
	}

	stamps := joined.Col("datetime").Records()
	priceCol := joined.Col("price").Float()
	solarCol := joined.Col("solar").Float()
	loadCol := joined.Col("load").Float()

	scale := cfg.PVMW / cfg.PVReferenceMW
	points := make([]pvseries.Point, joined.Nrow())
	for i := range points {
		ts, err := time.Parse(cfg.TimeLayout, stamps[i])
		if err != nil {
			return nil, fmt.Errorf("parse datetime %q: %w", stamps[i], err)
		}
		if math.IsNaN(solarCol[i]) {
			return nil, fmt.Errorf("missing solar value at %s", stamps[i])
		}
		if math.IsNaN(loadCol[i]) {
			return nil, fmt.Errorf("missing consumption value at %s", stamps[i])
		}
		if math.IsNaN(priceCol[i]) {
			return nil, fmt.Errorf("missing price value at %s", stamps[i])
		}
		points[i] = pvseries.Point{
			Time:       ts,
			Price:      priceCol[i],
			Load:       loadCol[i],
			Production: solarCol[i] * scale,
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}

// readFrame loads one CSV and reduces it to a (datetime, value) frame with
// the value column renamed to its canonical name.
func readFrame(fc FileConfig, valueName string) (dataframe.DataFrame, error) {
	f, err := os.Open(fc.Path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer f.Close()

	df := dataframe.ReadCSV(f)
	if df.Err != nil {
		return df, fmt.Errorf("read %s: %w", fc.Path, df.Err)
	}
	if !hasColumn(df, fc.DatetimeColumn) {
		return df, fmt.Errorf("%s: missing column %q", fc.Path, fc.DatetimeColumn)
	}
	if !hasColumn(df, fc.ValueColumn) {
		return df, fmt.Errorf("%s: missing column %q", fc.Path, fc.ValueColumn)
	}
	df = df.Select([]string{fc.DatetimeColumn, fc.ValueColumn})
	df = df.Rename("datetime", fc.DatetimeColumn)
	df = df.Rename(valueName, fc.ValueColumn)
	if df.Err != nil {
		return df, fmt.Errorf("shape %s: %w", fc.Path, df.Err)
	}
	return df, nil
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}
