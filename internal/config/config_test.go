package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"SecSubledger/internal/config"
)

func TestDefault_CarriesOriginalAccountCodes(t *testing.T) {
	cfg := config.Default()

	if cfg.Accounts.Cash != 100000 {
		t.Errorf("cash account = %d, want 100000", cfg.Accounts.Cash)
	}
	if cfg.Accounts.SecurityAsset != 200100 {
		t.Errorf("security asset account = %d, want 200100", cfg.Accounts.SecurityAsset)
	}
	if cfg.Accounts.RealizedPnL != 300100 {
		t.Errorf("realized pnl account = %d, want 300100", cfg.Accounts.RealizedPnL)
	}
	if cfg.Accounts.UnrealizedPnL != 400100 {
		t.Errorf("unrealized pnl account = %d, want 400100", cfg.Accounts.UnrealizedPnL)
	}
	if cfg.Accounts.Revaluation != 400200 {
		t.Errorf("revaluation account = %d, want 400200", cfg.Accounts.Revaluation)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Data.Trades != "data/sec_trades.csv" {
		t.Errorf("trades path = %s, want default", cfg.Data.Trades)
	}
	if cfg.ClampNegativeCost {
		t.Error("clamp_negative_cost should default off")
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
as_of_date: "2024-01-31"
output_dir: /tmp/subledger-out
workers: 4
tolerance: "0.01"
clamp_negative_cost: true
data:
  trades: /data/trades.csv
accounts:
  cash: 111111
  security_asset: 222222
  realized_pnl: 333333
  unrealized_pnl: 444444
  revaluation: 555555
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AsOfDate == nil || cfg.AsOfDate.Format("2006-01-02") != "2024-01-31" {
		t.Errorf("as_of_date = %v, want 2024-01-31", cfg.AsOfDate)
	}
	if cfg.OutputDir != "/tmp/subledger-out" {
		t.Errorf("output dir = %s", cfg.OutputDir)
	}
	if cfg.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Workers)
	}
	if cfg.Tolerance.String() != "0.01" {
		t.Errorf("tolerance = %s, want 0.01", cfg.Tolerance)
	}
	if !cfg.ClampNegativeCost {
		t.Error("clamp_negative_cost not applied")
	}
	if cfg.Data.Trades != "/data/trades.csv" {
		t.Errorf("trades path = %s", cfg.Data.Trades)
	}
	// Unset data paths keep their defaults.
	if cfg.Data.Positions != "data/sec_positions.csv" {
		t.Errorf("positions path = %s, want default", cfg.Data.Positions)
	}
	if cfg.Chart().Cash != 111111 {
		t.Errorf("chart cash = %d, want 111111", cfg.Chart().Cash)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("SUBLEDGER_POSTGRES_DSN", "postgres://env-host/db")
	t.Setenv("SUBLEDGER_WORKERS", "16")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PostgresDSN != "postgres://env-host/db" {
		t.Errorf("dsn = %s, want env value", cfg.PostgresDSN)
	}
	if cfg.Workers != 16 {
		t.Errorf("workers = %d, want 16", cfg.Workers)
	}
}

func TestLoad_BadAsOfDateFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("as_of_date: \"31/01/2024\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := config.Load(path); err == nil {
		t.Error("malformed as_of_date did not error")
	}
}
