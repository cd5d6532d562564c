package status

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"breakout-retest/config"
	"breakout-retest/logging"
	"breakout-retest/metrics"
	"breakout-retest/models"
)

type statusResponse struct {
	Time       time.Time                 `json:"time"`
	Symbol     string                    `json:"symbol"`
	Timeframe  string                    `json:"timeframe"`
	Mode       string                    `json:"mode"`
	BarSeq     uint64                    `json:"barSeq"`
	LastBar    *models.Candle            `json:"lastBar,omitempty"`
	Indicators *models.IndicatorSnapshot `json:"indicators,omitempty"`
	Signal     *models.SignalSnapshot    `json:"signal,omitempty"`
	Breakout   models.BreakoutSnapshot   `json:"breakout"`
	Trailing   []models.TrailingSnapshot `json:"trailing"`
	Risk       models.RiskSnapshot       `json:"risk"`
}

// Handler serves /status and /metrics.
func Handler(cfg *config.Config, state *models.State) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		state.StatusLock.RLock()
		resp := statusResponse{
			Time:      time.Now(),
			Symbol:    cfg.Symbol,
			Timeframe: cfg.Timeframe,
			Mode:      cfg.Mode,
			BarSeq:    state.BarSeq.Load(),
			Breakout:  state.Breakout,
			Trailing:  append([]models.TrailingSnapshot(nil), state.Trailing...),
			Risk:      state.Risk,
		}
		if state.LastBar.OpenTime != 0 {
			bar := state.LastBar
			resp.LastBar = &bar
		}
		if !state.LastIndicators.Time.IsZero() {
			ind := state.LastIndicators
			resp.Indicators = &ind
		}
		if !state.LastSignal.Time.IsZero() {
			sig := state.LastSignal
			resp.Signal = &sig
		}
		state.StatusLock.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			http.Error(w, "failed to encode status", http.StatusInternalServerError)
			return
		}
	})
	return mux
}

// StartServer starts a local HTTP status server for diagnostics.
func StartServer(cfg *config.Config, state *models.State, logger logging.LoggerInterface) *http.Server {
	addr := strings.TrimSpace(cfg.StatusAddr)
	if addr == "" || strings.EqualFold(addr, "off") || strings.EqualFold(addr, "disabled") {
		logger.Info("Status server disabled")
		return nil
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           Handler(cfg, state),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Status server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server error: %v", err)
		}
	}()

	return server
}
