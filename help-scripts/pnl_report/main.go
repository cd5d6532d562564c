package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"breakout-retest/api"
	"breakout-retest/config"
	"breakout-retest/models"
)

type totals struct {
	total, wins, losses float64
	count               int
}

// report writes a fixed-width table to w and the CSV rows to csv when it is non-nil.
func report(w io.Writer, csv *strings.Builder, items []models.ClosedPnL, loc *time.Location) totals {
	var t totals
	fmt.Fprintf(w, "%-16s %-5s %-10s %-10s %-10s %-10s\n", "Time", "Side", "Qty", "Entry", "Exit", "PnL")
	if csv != nil {
		csv.WriteString("time,side,qty,entry,exit,pnl\n")
	}
	for _, it := range items {
		ts := it.UpdatedAt.In(loc).Format("2006-01-02 15:04")
		qty, _ := it.Qty.Float64()
		t.total += it.PnL
		t.count++
		if it.PnL >= 0 {
			t.wins += it.PnL
		} else {
			t.losses += it.PnL
		}
		fmt.Fprintf(w, "%-16s %-5s %-10.4f %-10.2f %-10.2f %-10.4f\n", ts, it.Side, qty, it.Entry, it.Exit, it.PnL)
		if csv != nil {
			fmt.Fprintf(csv, "%s,%s,%.4f,%.2f,%.2f,%.4f\n", ts, it.Side, qty, it.Entry, it.Exit, it.PnL)
		}
	}
	fmt.Fprintf(w, "\nTotal PnL: %.4f over %d closes (wins %.4f, losses %.4f)\n", t.total, t.count, t.wins, t.losses)
	return t
}

func main() {
	hours := flag.Int("hours", 24, "lookback window in hours")
	symbolFlag := flag.String("symbol", "", "instrument symbol (defaults to config Symbol)")
	today := flag.Bool("today", false, "limit to current calendar day (local time); overrides -hours")
	outCSV := flag.String("out", "report.csv", "path to write CSV report (empty to disable)")
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *symbolFlag != "" {
		cfg.Symbol = *symbolFlag
	}
	client := api.NewRESTClient(cfg, nil)
	defer client.Close()

	end := time.Now()
	start := end.Add(-time.Duration(*hours) * time.Hour)
	label := fmt.Sprintf("last %dh", *hours)
	if *today {
		start = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
		label = "today"
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	items, err := client.FetchClosedPnL(ctx, cfg.Symbol, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error fetching closed PnL: %v\n", err)
		os.Exit(1)
	}
	if len(items) == 0 {
		fmt.Println("No closed positions in the selected window.")
		return
	}

	fmt.Printf("Closed PnL %s for %s\n", label, cfg.Symbol)
	var csv *strings.Builder
	if *outCSV != "" {
		csv = &strings.Builder{}
	}
	report(os.Stdout, csv, items, time.Local)

	if csv != nil {
		if err := os.WriteFile(*outCSV, []byte(csv.String()), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write CSV: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("CSV saved to %s\n", *outCSV)
	}
}
