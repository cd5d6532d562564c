package status

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"breakout-retest/config"
	"breakout-retest/internal/constants"
	"breakout-retest/logging"
	"breakout-retest/models"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})          {}
func (nopLogger) Info(string, ...interface{})           {}
func (nopLogger) Warning(string, ...interface{})        {}
func (nopLogger) Error(string, ...interface{})          {}
func (nopLogger) Critical(string, ...interface{})       {}
func (nopLogger) Fatal(string, ...interface{})          {}
func (nopLogger) Sync() error                           { return nil }
func (nopLogger) ChangeLogLevel(level logging.LogLevel) {}

func TestStatusReportsSnapshot(t *testing.T) {
	cfg := config.Default()
	state := &models.State{}
	state.BarSeq.Add(3)
	state.LastBar = models.Candle{OpenTime: 1700000000000, Close: 101}
	state.LastSignal = models.SignalSnapshot{Time: time.Unix(1700000000, 0).UTC(), Direction: constants.Long, ClosePrice: 101}
	state.Trailing = []models.TrailingSnapshot{{Side: constants.Long, Active: true, Entry: 100.9, Extreme: 101}}
	state.Risk = models.RiskSnapshot{StartBalance: 1000, Balance: 990}

	srv := httptest.NewServer(Handler(cfg, state))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	var got statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.BarSeq != 3 || got.Symbol != "BTCUSDT" || got.LastBar == nil || got.LastBar.Close != 101 {
		t.Fatalf("unexpected status %+v", got)
	}
	if got.Signal == nil || got.Signal.Direction != constants.Long || got.Indicators != nil {
		t.Fatalf("signal should be reported and empty indicators omitted: %+v", got)
	}
	if len(got.Trailing) != 1 || !got.Trailing[0].Active || got.Risk.Balance != 990 {
		t.Fatalf("unexpected trailing/risk %+v %+v", got.Trailing, got.Risk)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(Handler(config.Default(), &models.State{}))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "breakout_balance") {
		t.Fatalf("metrics output missing breakout_balance")
	}
}

func TestStartServerDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.StatusAddr = "off"
	if srv := StartServer(cfg, &models.State{}, nopLogger{}); srv != nil {
		t.Fatal("expected nil server when disabled")
	}
}
