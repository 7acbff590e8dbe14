// Package config loads the run configuration from a YAML file with
// environment-variable overrides for the deployment-specific endpoints.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"SecSubledger/internal/gl"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Accounts is the chart of accounts the subledger posts to, held as explicit
// configuration rather than ad hoc constants.
type Accounts struct {
	Cash          int32 `yaml:"cash"`
	SecurityAsset int32 `yaml:"security_asset"`
	RealizedPnL   int32 `yaml:"realized_pnl"`
	UnrealizedPnL int32 `yaml:"unrealized_pnl"`
	Revaluation   int32 `yaml:"revaluation"`
}

// DataPaths locates the four staging feeds.
type DataPaths struct {
	Trades        string `yaml:"trades"`
	Positions     string `yaml:"positions"`
	Valuations    string `yaml:"valuations"`
	MTMTimeseries string `yaml:"mtm_timeseries"`
}

// Config is the full run configuration.
type Config struct {
	AsOfDate          *time.Time
	Data              DataPaths
	OutputDir         string
	PostgresDSN       string
	NATSURL           string
	MetricsAddr       string
	Workers           int
	Tolerance         decimal.Decimal
	ClampNegativeCost bool
	Accounts          Accounts
}

// raw is the YAML shape before conversion of dates and decimals.
type raw struct {
	AsOfDate          string    `yaml:"as_of_date,omitempty"`
	Data              DataPaths `yaml:"data"`
	OutputDir         string    `yaml:"output_dir,omitempty"`
	PostgresDSN       string    `yaml:"postgres_dsn,omitempty"`
	NATSURL           string    `yaml:"nats_url,omitempty"`
	MetricsAddr       string    `yaml:"metrics_addr,omitempty"`
	Workers           int       `yaml:"workers,omitempty"`
	Tolerance         string    `yaml:"tolerance,omitempty"`
	ClampNegativeCost bool      `yaml:"clamp_negative_cost,omitempty"`
	Accounts          *Accounts `yaml:"accounts,omitempty"`
}

// Default returns the configuration used when a field is absent.
func Default() Config {
	chart := gl.DefaultChart()
	return Config{
		Data: DataPaths{
			Trades:        "data/sec_trades.csv",
			Positions:     "data/sec_positions.csv",
			Valuations:    "data/fo_sec_positions.csv",
			MTMTimeseries: "data/fo_mtm_timeseries.csv",
		},
		OutputDir:   "out",
		MetricsAddr: ":9091",
		Tolerance:   decimal.New(1, -9),
		Accounts: Accounts{
			Cash:          chart.Cash,
			SecurityAsset: chart.SecurityAsset,
			RealizedPnL:   chart.RealizedPnL,
			UnrealizedPnL: chart.UnrealizedPnL,
			Revaluation:   chart.Revaluation,
		},
	}
}

// Load reads the YAML file at path (when non-empty) over the defaults, then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}

		var r raw
		if err := yaml.Unmarshal(data, &r); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		if err := cfg.apply(r); err != nil {
			return Config{}, err
		}
	}

	cfg.PostgresDSN = envOrDefault("SUBLEDGER_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.NATSURL = envOrDefault("SUBLEDGER_NATS_URL", cfg.NATSURL)
	cfg.MetricsAddr = envOrDefault("SUBLEDGER_METRICS_ADDR", cfg.MetricsAddr)
	cfg.Workers = envIntOrDefault("SUBLEDGER_WORKERS", cfg.Workers)

	return cfg, nil
}

func (c *Config) apply(r raw) error {
	if r.AsOfDate != "" {
		d, err := time.Parse("2006-01-02", r.AsOfDate)
		if err != nil {
			return fmt.Errorf("parse as_of_date: %w", err)
		}
		c.AsOfDate = &d
	}
	if r.Data.Trades != "" {
		c.Data.Trades = r.Data.Trades
	}
	if r.Data.Positions != "" {
		c.Data.Positions = r.Data.Positions
	}
	if r.Data.Valuations != "" {
		c.Data.Valuations = r.Data.Valuations
	}
	if r.Data.MTMTimeseries != "" {
		c.Data.MTMTimeseries = r.Data.MTMTimeseries
	}
	if r.OutputDir != "" {
		c.OutputDir = r.OutputDir
	}
	if r.PostgresDSN != "" {
		c.PostgresDSN = r.PostgresDSN
	}
	if r.NATSURL != "" {
		c.NATSURL = r.NATSURL
	}
	if r.MetricsAddr != "" {
		c.MetricsAddr = r.MetricsAddr
	}
	if r.Workers != 0 {
		c.Workers = r.Workers
	}
	if r.Tolerance != "" {
		tol, err := decimal.NewFromString(r.Tolerance)
		if err != nil {
			return fmt.Errorf("parse tolerance: %w", err)
		}
		c.Tolerance = tol
	}
	c.ClampNegativeCost = r.ClampNegativeCost
	if r.Accounts != nil {
		c.Accounts = *r.Accounts
	}
	return nil
}

// Chart converts the configured account codes into the GL chart.
func (c Config) Chart() gl.Chart {
	return gl.Chart{
		Cash:          c.Accounts.Cash,
		SecurityAsset: c.Accounts.SecurityAsset,
		RealizedPnL:   c.Accounts.RealizedPnL,
		UnrealizedPnL: c.Accounts.UnrealizedPnL,
		Revaluation:   c.Accounts.Revaluation,
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
