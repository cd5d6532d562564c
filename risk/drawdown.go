// Package risk holds the balance drawdown kill-switch.
package risk

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"breakout-retest/logging"
	"breakout-retest/metrics"
)

// DrawdownGuard blocks new entries while balance sits below start*(1-limit). The trip is
// mirrored to a plain-text marker file so it is visible outside the process and survives
// restarts.
type DrawdownGuard struct {
	limitPct   float64
	markerPath string
	logger     logging.LoggerInterface

	startBalance float64
	latched      bool
	stopped      bool
	lastBalance  float64
}

// NewDrawdownGuard creates a guard. An empty markerPath disables the marker file.
func NewDrawdownGuard(limitPct float64, markerPath string, logger logging.LoggerInterface) *DrawdownGuard {
	return &DrawdownGuard{limitPct: limitPct, markerPath: markerPath, logger: logger}
}

// Restore loads a marker left by a previous run, restoring the stopped flag and the
// start balance it was measured against. It reports whether a marker was found.
func (g *DrawdownGuard) Restore() (bool, error) {
	if g.markerPath == "" {
		return false, nil
	}
	f, err := os.Open(g.markerPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open drawdown marker: %w", err)
	}
	defer f.Close()

	values := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if ok {
			values[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("read drawdown marker: %w", err)
	}

	g.stopped = true
	if start, err := strconv.ParseFloat(values["start_balance"], 64); err == nil && start > 0 {
		g.startBalance = start
		g.latched = true
	} else if bal, err := strconv.ParseFloat(values["balance"], 64); err == nil && bal > 0 {
		// the trip balance was just under the floor, so the start was at least bal/(1-limit)
		g.startBalance = g.impliedStart(bal)
		g.latched = true
	}
	metrics.SetDrawdownStopped(true)
	g.logger.Critical("Drawdown marker %s found (written %s, balance %s); new entries stay blocked until balance recovers to %.4f",
		g.markerPath, values["timestamp"], values["balance"], g.startBalance)
	return true, nil
}

// Update feeds the latest balance and returns whether new entries are blocked.
func (g *DrawdownGuard) Update(balance float64, now time.Time) bool {
	g.lastBalance = balance
	metrics.SetBalance(balance)
	if !g.latched {
		g.startBalance = balance
		if g.stopped {
			// restored from a marker with no usable balances; treat this balance as the floor
			g.startBalance = g.impliedStart(balance)
		}
		g.latched = true
		g.logger.Info("Drawdown guard start balance latched at %.4f (limit %.2f%%)", g.startBalance, g.limitPct*100)
	}

	floor := g.startBalance * (1 - g.limitPct)
	switch {
	case !g.stopped && balance < floor:
		g.stopped = true
		metrics.SetDrawdownStopped(true)
		g.logger.Critical("Drawdown limit hit: balance %.4f < %.4f (start %.4f, limit %.2f%%); new entries stopped",
			balance, floor, g.startBalance, g.limitPct*100)
		if err := g.writeMarker(balance, now); err != nil {
			g.logger.Error("Failed to write drawdown marker: %v", err)
		}
	case g.stopped && balance >= g.startBalance:
		g.stopped = false
		metrics.SetDrawdownStopped(false)
		g.logger.Warning("Balance %.4f recovered to start %.4f; entries resumed", balance, g.startBalance)
		if err := g.removeMarker(); err != nil {
			g.logger.Error("Failed to remove drawdown marker: %v", err)
		}
	}
	return g.stopped
}

func (g *DrawdownGuard) impliedStart(floor float64) float64 {
	if g.limitPct <= 0 || g.limitPct >= 1 {
		return floor
	}
	return floor / (1 - g.limitPct)
}

func (g *DrawdownGuard) writeMarker(balance float64, now time.Time) error {
	if g.markerPath == "" {
		return nil
	}
	body := fmt.Sprintf("timestamp=%s\nbalance=%.8f\nlimit=%.6f\nstart_balance=%.8f\n",
		now.UTC().Format(time.RFC3339), balance, g.limitPct, g.startBalance)
	return os.WriteFile(g.markerPath, []byte(body), 0o644)
}

func (g *DrawdownGuard) removeMarker() error {
	if g.markerPath == "" {
		return nil
	}
	if err := os.Remove(g.markerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (g *DrawdownGuard) Stopped() bool         { return g.stopped }
func (g *DrawdownGuard) StartBalance() float64 { return g.startBalance }
func (g *DrawdownGuard) LastBalance() float64  { return g.lastBalance }
