// Package config loads and validates the application configuration from a
// YAML or JSON file, with PVBESS_-prefixed environment overrides, e.g.
// PVBESS_SIMULATION__DISPATCH__EXCESS_THRESHOLD.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dmolinero/pvbess/core/battery"
	"github.com/dmolinero/pvbess/core/kpi"
	"github.com/dmolinero/pvbess/core/metrics"
	"github.com/dmolinero/pvbess/core/scheduler"
	"github.com/dmolinero/pvbess/infra/ingest"
	"github.com/dmolinero/pvbess/infra/mqtt"
)

// Config is the full application configuration.
type Config struct {
	Data       ingest.Config    `json:"data"`
	Simulation SimulationConfig `json:"simulation"`
	Economics  kpi.Economics    `json:"economics"`
	API        APIConfig        `json:"api"`
	MQTT       mqtt.Config      `json:"mqtt"`
	Metrics    metrics.Config   `json:"metrics"`
	// OutputDir receives the result files of batch runs.
	OutputDir string `json:"output_dir"`
}

// SimulationConfig groups the physical battery and the dispatch tuning.
type SimulationConfig struct {
	Battery  battery.Params   `json:"battery"`
	Dispatch scheduler.Config `json:"dispatch"`

	// AllowExport enables the one-time result downloads offered by the
	// API. The scheduler itself never exports to the grid.
	AllowExport bool `json:"allow_export"`
	// AllowChargeFromGrid is accepted for compatibility with older
	// configurations; the dispatcher only charges from solar surplus.
	AllowChargeFromGrid bool `json:"allow_charge_from_grid"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Addr string `json:"addr"`
}

// SetDefaults fills optional fields.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// Load reads the configuration file, applies environment overrides, fills
// defaults and validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// Optional environment overrides.
	if err := k.Load(env.Provider("PVBESS_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "pvbess_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize applies defaults and validates the whole configuration. It is
// called by Load and again after API overrides are merged.
func (c *Config) Finalize() error {
	c.Data.SetDefaults()
	c.Simulation.Battery.SetDefaults()
	c.Simulation.Dispatch.SetDefaults(c.Simulation.Battery)
	c.API.SetDefaults()
	c.MQTT.SetDefaults()
	c.Metrics.SetDefaults()
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}

	if err := c.Data.Validate(); err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if err := c.Simulation.Battery.Validate(); err != nil {
		return fmt.Errorf("simulation.battery: %w", err)
	}
	if err := c.Simulation.Dispatch.Validate(); err != nil {
		return fmt.Errorf("simulation.dispatch: %w", err)
	}
	if err := c.Economics.Validate(); err != nil {
		return fmt.Errorf("economics: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

// Clone returns a deep-enough copy for per-request override merging: every
// section is a value type, so assignment copies it.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
