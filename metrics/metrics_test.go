package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesInstruments(t *testing.T) {
	IncBar()
	IncSignal("LONG")
	IncOrder("LONG", "placed")
	IncExit("LONG", "TP")
	IncFeedReconnect()
	SetBalance(1000)
	SetCooldown(10)
	SetDrawdownStopped(true)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := string(body)
	for _, want := range []string{
		"breakout_bars_total",
		`breakout_signals_total{side="LONG"}`,
		`breakout_orders_total{result="placed",side="LONG"}`,
		`breakout_exits_total{reason="TP",side="LONG"}`,
		"breakout_feed_reconnects_total",
		"breakout_balance 1000",
		"breakout_cooldown_bars 10",
		"breakout_drawdown_stopped 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
