package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsAreValidForReplay(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.MaxBarsWait != 12 || cfg.RetestPct != 0.003 || cfg.Mode != ModeReplay {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Fatalf("reconnect delay default = %v", cfg.ReconnectDelay)
	}
	if cfg.RESTHost != mainnetREST || cfg.WSPublicURL != mainnetWS {
		t.Fatalf("unexpected hosts %s %s", cfg.RESTHost, cfg.WSPublicURL)
	}
}

func TestYAMLThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.yaml")
	body := "symbol: ethusdt\ntimeframe: 15m\nretest_pct: 0.005\nreconnect_delay: 2s\ntestnet: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RETEST_PCT", "0.004")
	t.Setenv("RECONNECT_DELAY", "7")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Symbol != "ETHUSDT" {
		t.Errorf("symbol = %s", cfg.Symbol)
	}
	if cfg.Timeframe != "15m" {
		t.Errorf("timeframe = %s", cfg.Timeframe)
	}
	if cfg.RetestPct != 0.004 {
		t.Errorf("env should override yaml, got %v", cfg.RetestPct)
	}
	if cfg.ReconnectDelay != 7*time.Second {
		t.Errorf("reconnect delay = %v", cfg.ReconnectDelay)
	}
	if cfg.RESTHost != testnetREST || cfg.WSPublicURL != testnetWS {
		t.Errorf("testnet hosts not selected: %s %s", cfg.RESTHost, cfg.WSPublicURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.resolveHosts()
	cfg.RetestPct = 0
	cfg.OrderPercent = 1.5
	cfg.TakeProfitPct = -0.1
	cfg.Timeframe = "7m"
	cfg.WSPublicURL = "http://example.com"
	cfg.Mode = ModeLive

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"RETEST_PCT", "ORDER_PERCENT", "TAKE_PROFIT_PCT", "7m", "BYBIT_WS_PUBLIC", "live mode requires"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestTakeProfitZeroDisables(t *testing.T) {
	cfg := Default()
	cfg.resolveHosts()
	cfg.TakeProfitPct = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero take-profit should be accepted: %v", err)
	}
}

func TestMinBufferCapacityCoversDailyRSI(t *testing.T) {
	for _, tc := range []struct {
		tf   string
		want int
	}{
		{"1m", 16 * 1440},
		{"5m", 16 * 288},
		{"15m", 16 * 96},
		{"1h", 16 * 24},
	} {
		got, err := MinBufferCapacity(tc.tf)
		if err != nil || got != tc.want {
			t.Errorf("MinBufferCapacity(%s) = %d, %v; want %d", tc.tf, got, err, tc.want)
		}
	}
	for _, tf := range []string{"4h", "1d", "1w"} {
		if _, err := MinBufferCapacity(tf); err == nil {
			t.Errorf("%s cannot be resampled to hourly bars and must be rejected", tf)
		}
	}
}

func TestValidateRejectsBufferThatNeverWarmsUp(t *testing.T) {
	cfg := Default()
	cfg.resolveHosts()
	cfg.BufferCapacity = 1000
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "BUFFER_CAPACITY must be at least 4608") {
		t.Fatalf("5m bars with capacity 1000 cannot define daily RSI, got %v", err)
	}

	cfg = Default()
	cfg.resolveHosts()
	cfg.Timeframe = "4h"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "does not divide one hour") {
		t.Fatalf("4h timeframe should be rejected, got %v", err)
	}
}
