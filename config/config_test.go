package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataFiles(t *testing.T, dir string) (string, string, string) {
	t.Helper()
	mk := func(name, header string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(header), 0o644))
		return path
	}
	p := mk("prices.csv", "datetime,price\n2025-06-01 00:00:00,42\n")
	s := mk("solar.csv", "datetime,pv\n2025-06-01 00:00:00,1\n")
	c := mk("consumption.csv", "datetime,load\n2025-06-01 00:00:00,2\n")
	return p, s, c
}

func writeConfig(t *testing.T, dir, prices, solar, cons string) string {
	t.Helper()
	content := `
data:
  prices:
    path: ` + prices + `
    value_column: price
  solar:
    path: ` + solar + `
    value_column: pv
  consumption:
    path: ` + cons + `
    value_column: load
  pv_mw: 5
  pv_reference_mw: 49
simulation:
  battery:
    capacity_mwh: 10
    power_limit_mw: 5
    charge_efficiency: 0.95
    discharge_efficiency: 0.95
    soc_min: 0.1
    soc_max: 0.9
  allow_export: true
economics:
  capex_pv_eur_per_kwp: 600
  capex_bat_eur_per_kwh: 250
  discount_rate: 0.06
  pv_lifetime_years: 25
  bat_guaranteed_cycles: 6000
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	p, s, c := writeDataFiles(t, dir)
	path := writeConfig(t, dir, p, s, c)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1e-6, cfg.Simulation.Dispatch.ExcessThreshold)
	assert.Equal(t, 1e-4, cfg.Simulation.Dispatch.SocFullEpsilon)
	assert.Equal(t, 2000.0, cfg.Simulation.Dispatch.EndSocPenaltyRate)
	assert.Equal(t, "linear", cfg.Simulation.Dispatch.ChargeEarlyShape)
	assert.Equal(t, 10, cfg.Simulation.Dispatch.MaxExtensionSteps)
	// end_soc_target defaults to the battery floor.
	assert.Equal(t, 0.1, cfg.Simulation.Dispatch.EndSocTarget)
	// unset soc_initial starts at soc_min.
	assert.Equal(t, 0.1, cfg.Simulation.Battery.SocInitial)
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.True(t, cfg.Simulation.AllowExport)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	p, s, c := writeDataFiles(t, dir)
	path := writeConfig(t, dir, p, s, c)

	t.Setenv("PVBESS_SIMULATION__BATTERY__CAPACITY_MWH", "20")
	t.Setenv("PVBESS_OUTPUT_DIR", "elsewhere")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20.0, cfg.Simulation.Battery.CapacityMWh)
	assert.Equal(t, "elsewhere", cfg.OutputDir)
}

func TestLoadRejectsInvalidBattery(t *testing.T) {
	dir := t.TempDir()
	p, s, c := writeDataFiles(t, dir)
	path := writeConfig(t, dir, p, s, c)

	t.Setenv("PVBESS_SIMULATION__BATTERY__SOC_MIN", "0.95")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soc_min")
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := Load("config.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")
}

func TestCloneIsIndependent(t *testing.T) {
	dir := t.TempDir()
	p, s, c := writeDataFiles(t, dir)
	path := writeConfig(t, dir, p, s, c)

	cfg, err := Load(path)
	require.NoError(t, err)

	cp := cfg.Clone()
	cp.Simulation.Battery.CapacityMWh = 99
	assert.Equal(t, 10.0, cfg.Simulation.Battery.CapacityMWh)
}
