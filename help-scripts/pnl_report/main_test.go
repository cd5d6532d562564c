package main

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"breakout-retest/models"
)

func TestReportTotalsAndCSV(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	items := []models.ClosedPnL{
		{Side: "Buy", Qty: decimal.RequireFromString("0.5"), Entry: 100, Exit: 104, PnL: 2, UpdatedAt: at},
		{Side: "Sell", Qty: decimal.RequireFromString("0.5"), Entry: 100, Exit: 101.5, PnL: -0.75, UpdatedAt: at.Add(time.Hour)},
	}
	var out bytes.Buffer
	var csv strings.Builder
	got := report(&out, &csv, items, time.UTC)

	if got.count != 2 || math.Abs(got.total-1.25) > 1e-9 || got.wins != 2 || got.losses != -0.75 {
		t.Fatalf("unexpected totals %+v", got)
	}
	lines := strings.Split(strings.TrimSpace(csv.String()), "\n")
	if len(lines) != 3 || lines[1] != "2024-05-01 12:30,Buy,0.5000,100.00,104.00,2.0000" {
		t.Fatalf("unexpected csv %q", csv.String())
	}
	if !strings.Contains(out.String(), "Total PnL: 1.2500 over 2 closes") {
		t.Fatalf("summary line missing:\n%s", out.String())
	}
}
