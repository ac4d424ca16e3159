// Package config holds the tuning constants for economy ticks and move
// resolution, loaded from a YAML file and the process environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full set of turn-resolution constants. It is passed by value
// into the tick engine and the move validator.
type Config struct {
	Economy   Economy   `yaml:"economy"`
	Resources Resources `yaml:"resources"`
	Military  Military  `yaml:"military"`
	Moves     Moves     `yaml:"moves"`
}

type Economy struct {
	BaseTaxPerPop        float64 `yaml:"base_tax_per_pop"`
	AdminCostPerProvince float64 `yaml:"admin_cost_per_province"`
}

type Resources struct {
	ProductionPerProvince int `yaml:"resource_production"`
	CapPerProvince        int `yaml:"resource_cap_per_province"`
}

type Military struct {
	PopPerUnit      int     `yaml:"pop_per_unit"`
	BaseUnitRatio   float64 `yaml:"base_unit_ratio"`
	UnitLimitBuffer int     `yaml:"unit_limit_buffer"`
}

type Moves struct {
	Logging         bool `yaml:"logging"`
	BatchValidation bool `yaml:"batch_validation"`
}

// Default returns the constants the game ships with.
func Default() Config {
	return Config{
		Economy: Economy{
			BaseTaxPerPop:        0.5,
			AdminCostPerProvince: 2,
		},
		Resources: Resources{
			ProductionPerProvince: 10,
			CapPerProvince:        100,
		},
		Military: Military{
			PopPerUnit:      1000,
			BaseUnitRatio:   0.02,
			UnitLimitBuffer: 5,
		},
		Moves: Moves{
			Logging:         true,
			BatchValidation: true,
		},
	}
}

// Load reads a YAML tuning file over the defaults. A missing file leaves the
// defaults in place.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects constants the formulas cannot work with.
func (c Config) Validate() error {
	var errs []error
	if c.Military.PopPerUnit <= 0 {
		errs = append(errs, fmt.Errorf("military.pop_per_unit must be positive, got %d", c.Military.PopPerUnit))
	}
	if c.Economy.BaseTaxPerPop < 0 {
		errs = append(errs, fmt.Errorf("economy.base_tax_per_pop must not be negative"))
	}
	if c.Economy.AdminCostPerProvince < 0 {
		errs = append(errs, fmt.Errorf("economy.admin_cost_per_province must not be negative"))
	}
	if c.Resources.ProductionPerProvince < 0 {
		errs = append(errs, fmt.Errorf("resources.resource_production must not be negative"))
	}
	if c.Resources.CapPerProvince < 0 {
		errs = append(errs, fmt.Errorf("resources.resource_cap_per_province must not be negative"))
	}
	if c.Military.BaseUnitRatio < 0 {
		errs = append(errs, fmt.Errorf("military.base_unit_ratio must not be negative"))
	}
	return errors.Join(errs...)
}

// Env holds process-level settings read from the environment.
type Env struct {
	DBPath     string `env:"TGSIM_DB_PATH" envDefault:"data/tgsim.db"`
	ConfigPath string `env:"TGSIM_CONFIG" envDefault:"config.yaml"`
	LogLevel   string `env:"TGSIM_LOG_LEVEL" envDefault:"info"`
	MovesDir   string `env:"TGSIM_MOVES_DIR" envDefault:"moves"`
	Addr       string `env:"TGSIM_ADDR" envDefault:":8080"`
	AdminKey   string `env:"TGSIM_ADMIN_KEY"` // empty disables POST endpoints
}

// ParseEnv loads Env from environment variables.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (e Env) SlogLevel() slog.Level {
	switch strings.ToLower(e.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
