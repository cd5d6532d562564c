package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"breakout-retest/models"
)

type statusResponse struct {
	Time       time.Time                 `json:"time"`
	Symbol     string                    `json:"symbol"`
	Timeframe  string                    `json:"timeframe"`
	Mode       string                    `json:"mode"`
	BarSeq     uint64                    `json:"barSeq"`
	LastBar    *models.Candle            `json:"lastBar"`
	Indicators *models.IndicatorSnapshot `json:"indicators"`
	Signal     *models.SignalSnapshot    `json:"signal"`
	Breakout   models.BreakoutSnapshot   `json:"breakout"`
	Trailing   []models.TrailingSnapshot `json:"trailing"`
	Risk       models.RiskSnapshot       `json:"risk"`
}

func render(w io.Writer, p statusResponse) {
	fmt.Fprintf(w, "Time: %s\n", formatTime(p.Time))
	fmt.Fprintf(w, "Symbol: %s %s mode=%s bars=%d\n", p.Symbol, p.Timeframe, p.Mode, p.BarSeq)
	if p.LastBar != nil {
		fmt.Fprintf(w, "Last bar: %s close=%.2f\n", formatTime(p.LastBar.Time()), p.LastBar.Close)
	}

	if p.Indicators == nil {
		fmt.Fprintln(w, "Indicators: warming up")
	} else {
		fmt.Fprintf(w, "Indicators: close=%.2f EMA1h=%.2f EMA60=%.2f EMA163=%.2f RSI1d=%.2f ATR1h=%.4f updated=%s\n",
			p.Indicators.Close, p.Indicators.EMA1h, p.Indicators.EMA60, p.Indicators.EMA163,
			p.Indicators.RSIDaily, p.Indicators.ATR1h, formatTime(p.Indicators.Time))
	}

	switch {
	case p.Breakout.OpenTime == nil:
		fmt.Fprintln(w, "Breakout: none")
	default:
		fmt.Fprintf(w, "Breakout: since %s retested=%t bars=%d\n", formatTime(*p.Breakout.OpenTime), p.Breakout.Retested, p.Breakout.BarsSince)
	}

	if p.Signal == nil {
		fmt.Fprintln(w, "Signal: none")
	} else {
		fmt.Fprintf(w, "Signal: %s close=%.2f time=%s\n", p.Signal.Direction, p.Signal.ClosePrice, formatTime(p.Signal.Time))
	}

	for _, ts := range p.Trailing {
		if ts.Active {
			fmt.Fprintf(w, "Trailing %s: entry=%.2f extreme=%.2f\n", ts.Side, ts.Entry, ts.Extreme)
		} else {
			fmt.Fprintf(w, "Trailing %s: inactive\n", ts.Side)
		}
	}

	fmt.Fprintf(w, "Risk: balance=%.2f start=%.2f stopped=%t losses=%d cooldown=%d\n",
		p.Risk.Balance, p.Risk.StartBalance, p.Risk.Stopped, p.Risk.ConsecutiveLosses, p.Risk.CooldownBars)
}

func main() {
	defaultAddr := os.Getenv("STATUS_ADDR")
	if defaultAddr == "" {
		defaultAddr = "127.0.0.1:6061"
	}

	addr := flag.String("addr", defaultAddr, "status server address or URL")
	jsonOut := flag.Bool("json", false, "print raw JSON")
	timeout := flag.Duration("timeout", 5*time.Second, "HTTP timeout")
	flag.Parse()

	url := strings.TrimSpace(*addr)
	if url == "" {
		fmt.Fprintln(os.Stderr, "status address is empty")
		os.Exit(1)
	}
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	url = strings.TrimRight(url, "/") + "/status"

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read response: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "status request error: %s\n%s\n", resp.Status, string(body))
		os.Exit(1)
	}
	if *jsonOut {
		fmt.Println(string(body))
		return
	}

	var payload statusResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse JSON: %v\n", err)
		os.Exit(1)
	}
	render(os.Stdout, payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.UTC().Format(time.RFC3339)
}
