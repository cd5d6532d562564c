package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"breakout-retest/internal/constants"
	"breakout-retest/internal/utils"
)

const (
	ModeReplay = "replay"
	ModeLive   = "live"

	SubscribeOp     = "op"
	SubscribeLegacy = "legacy"
)

const (
	mainnetREST = "https://api.bybit.com"
	mainnetWS   = "wss://stream.bybit.com/v5/public/linear"
	testnetREST = "https://api-testnet.bybit.com"
	testnetWS   = "wss://stream-testnet.bybit.com/v5/public/linear"
)

// Config holds application configuration
type Config struct {
	APIKey      string `yaml:"api_key"`
	APISecret   string `yaml:"api_secret"`
	Testnet     bool   `yaml:"testnet"`
	RESTHost    string `yaml:"rest_host"`
	WSPublicURL string `yaml:"ws_public_url"`
	RecvWindow  string `yaml:"recv_window"`
	AccountType string `yaml:"account_type"`

	Symbol    string `yaml:"symbol"`
	QuoteCoin string `yaml:"quote_coin"`
	Timeframe string `yaml:"timeframe"`
	Mode      string `yaml:"mode"`

	// Feed
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingPeriod     time.Duration `yaml:"ping_period"`
	PongWait       time.Duration `yaml:"pong_wait"`
	SubscribeStyle string        `yaml:"subscribe_style"`

	// Breakout / retest
	MaxBarsWait int     `yaml:"max_bars_wait"`
	RetestPct   float64 `yaml:"retest_pct"`
	MinATR      float64 `yaml:"min_atr"` // 0 disables the volatility gate

	// Sizing and exits
	OrderPercent  float64 `yaml:"order_percent"`
	TrailPct      float64 `yaml:"trail_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct"` // 0 disables take-profit
	MaxOrderCost  float64 `yaml:"max_order_cost"`  // 0 means no ceiling

	// Risk
	DrawdownLimitPct     float64 `yaml:"drawdown_limit_pct"`
	DrawdownMarkerPath   string  `yaml:"drawdown_marker"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	CooldownBars         int     `yaml:"cooldown_bars"`

	// History
	BufferCapacity int `yaml:"buffer_capacity"`
	WarmupBars     int `yaml:"warmup_bars"`
	ReplayBars     int `yaml:"replay_bars"`

	// Paper broker (replay)
	PaperBalance float64 `yaml:"paper_balance"`
	PaperFeeRate float64 `yaml:"paper_fee_rate"`

	RESTRateLimit float64 `yaml:"rest_rate_limit"` // requests per second
	StatusAddr    string  `yaml:"status_addr"`

	LogFile       string `yaml:"log_file"`
	LogMaxSize    int    `yaml:"log_max_size"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAge     int    `yaml:"log_max_age"`
	LogCompress   bool   `yaml:"log_compress"`
	LogLevel      string `yaml:"log_level"`
}

// Default returns the built-in configuration before any file or env overrides.
func Default() *Config {
	return &Config{
		RecvWindow:           "5000",
		AccountType:          "UNIFIED",
		Symbol:               "BTCUSDT",
		QuoteCoin:            "USDT",
		Timeframe:            "5m",
		Mode:                 ModeReplay,
		ReconnectDelay:       5 * time.Second,
		PingPeriod:           20 * time.Second,
		PongWait:             60 * time.Second,
		SubscribeStyle:       SubscribeOp,
		MaxBarsWait:          12,
		RetestPct:            0.003,
		OrderPercent:         0.4,
		TrailPct:             0.01,
		TakeProfitPct:        0.02,
		DrawdownLimitPct:     0.05,
		DrawdownMarkerPath:   "drawdown.lock",
		MaxConsecutiveLosses: 3,
		CooldownBars:         10,
		BufferCapacity:       5000,
		WarmupBars:           5000,
		ReplayBars:           5000,
		PaperBalance:         10000,
		PaperFeeRate:         0.00055,
		RESTRateLimit:        10,
		StatusAddr:           "127.0.0.1:6061",
		LogFile:              "logs/breakout.log",
		LogMaxSize:           10, // MB
		LogMaxBackups:        5,
		LogMaxAge:            30, // days
		LogCompress:          true,
		LogLevel:             "INFO",
	}
}

// LoadConfig layers defaults, an optional .env file, an optional YAML file named by
// CONFIG_FILE (or path, when non-empty) and finally environment variables.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.resolveHosts()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.APIKey = getEnv("BYBIT_API_KEY", c.APIKey)
	c.APISecret = getEnv("BYBIT_API_SECRET", c.APISecret)
	c.Testnet = getEnvAsBool("BYBIT_TESTNET", c.Testnet)
	c.RESTHost = getEnv("BYBIT_REST_HOST", c.RESTHost)
	c.WSPublicURL = getEnv("BYBIT_WS_PUBLIC", c.WSPublicURL)
	c.AccountType = getEnv("BYBIT_ACCOUNT_TYPE", c.AccountType)

	c.Symbol = strings.ToUpper(getEnv("SYMBOL", c.Symbol))
	c.QuoteCoin = getEnv("QUOTE_COIN", c.QuoteCoin)
	c.Timeframe = getEnv("TIMEFRAME", c.Timeframe)
	c.Mode = strings.ToLower(getEnv("MODE", c.Mode))

	c.ReconnectDelay = getEnvAsDuration("RECONNECT_DELAY", c.ReconnectDelay)
	c.SubscribeStyle = getEnv("SUBSCRIBE_STYLE", c.SubscribeStyle)

	c.MaxBarsWait = getEnvAsInt("MAX_BARS_WAIT", c.MaxBarsWait)
	c.RetestPct = getEnvAsFloat("RETEST_PCT", c.RetestPct)
	c.MinATR = getEnvAsFloat("MIN_ATR", c.MinATR)

	c.OrderPercent = getEnvAsFloat("ORDER_PERCENT", c.OrderPercent)
	c.TrailPct = getEnvAsFloat("TRAIL_PCT", c.TrailPct)
	c.TakeProfitPct = getEnvAsFloat("TAKE_PROFIT_PCT", c.TakeProfitPct)
	c.MaxOrderCost = getEnvAsFloat("MAX_ORDER_COST", c.MaxOrderCost)

	c.DrawdownLimitPct = getEnvAsFloat("DRAWDOWN_LIMIT_PCT", c.DrawdownLimitPct)
	c.DrawdownMarkerPath = getEnv("DRAWDOWN_MARKER", c.DrawdownMarkerPath)
	c.MaxConsecutiveLosses = getEnvAsInt("MAX_CONSECUTIVE_LOSSES", c.MaxConsecutiveLosses)
	c.CooldownBars = getEnvAsInt("COOLDOWN_BARS", c.CooldownBars)

	c.BufferCapacity = getEnvAsInt("BUFFER_CAPACITY", c.BufferCapacity)
	c.WarmupBars = getEnvAsInt("WARMUP_BARS", c.WarmupBars)
	c.ReplayBars = getEnvAsInt("REPLAY_BARS", c.ReplayBars)
	c.PaperBalance = getEnvAsFloat("PAPER_BALANCE", c.PaperBalance)
	c.PaperFeeRate = getEnvAsFloat("PAPER_FEE_RATE", c.PaperFeeRate)

	c.RESTRateLimit = getEnvAsFloat("REST_RATE_LIMIT", c.RESTRateLimit)
	c.StatusAddr = getEnv("STATUS_ADDR", c.StatusAddr)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func (c *Config) resolveHosts() {
	if c.RESTHost == "" {
		c.RESTHost = mainnetREST
		if c.Testnet {
			c.RESTHost = testnetREST
		}
	}
	if c.WSPublicURL == "" {
		c.WSPublicURL = mainnetWS
		if c.Testnet {
			c.WSPublicURL = testnetWS
		}
	}
}

// Validate reports every configuration problem at once; callers treat a non-nil result as fatal.
func (c *Config) Validate() error {
	var errs []error
	pct := func(name string, v float64) {
		if !(v > 0 && v <= 1) {
			errs = append(errs, fmt.Errorf("%s must be in (0,1], got %v", name, v))
		}
	}
	pct("RETEST_PCT", c.RetestPct)
	pct("ORDER_PERCENT", c.OrderPercent)
	pct("TRAIL_PCT", c.TrailPct)
	pct("DRAWDOWN_LIMIT_PCT", c.DrawdownLimitPct)
	if c.TakeProfitPct != 0 {
		pct("TAKE_PROFIT_PCT", c.TakeProfitPct)
	}

	if c.Mode != ModeReplay && c.Mode != ModeLive {
		errs = append(errs, fmt.Errorf("MODE must be %q or %q, got %q", ModeReplay, ModeLive, c.Mode))
	}
	if c.Symbol == "" {
		errs = append(errs, errors.New("SYMBOL is required"))
	}
	if need, err := MinBufferCapacity(c.Timeframe); err != nil {
		errs = append(errs, err)
	} else if c.BufferCapacity < need {
		errs = append(errs, fmt.Errorf("BUFFER_CAPACITY must be at least %d for %s bars, got %d", need, c.Timeframe, c.BufferCapacity))
	}
	if err := checkURL(c.WSPublicURL, "ws", "wss"); err != nil {
		errs = append(errs, fmt.Errorf("BYBIT_WS_PUBLIC: %w", err))
	}
	if err := checkURL(c.RESTHost, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("BYBIT_REST_HOST: %w", err))
	}
	if c.SubscribeStyle != SubscribeOp && c.SubscribeStyle != SubscribeLegacy {
		errs = append(errs, fmt.Errorf("SUBSCRIBE_STYLE must be %q or %q", SubscribeOp, SubscribeLegacy))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("RECONNECT_DELAY must be positive"))
	}
	if c.MaxBarsWait < 1 {
		errs = append(errs, errors.New("MAX_BARS_WAIT must be at least 1"))
	}
	if c.MinATR < 0 || c.MaxOrderCost < 0 {
		errs = append(errs, errors.New("MIN_ATR and MAX_ORDER_COST must not be negative"))
	}
	if c.MaxConsecutiveLosses < 1 || c.CooldownBars < 0 {
		errs = append(errs, errors.New("MAX_CONSECUTIVE_LOSSES must be >= 1 and COOLDOWN_BARS >= 0"))
	}
	if c.Mode == ModeLive && (c.APIKey == "" || c.APISecret == "") {
		errs = append(errs, errors.New("live mode requires BYBIT_API_KEY and BYBIT_API_SECRET"))
	}
	return errors.Join(errs...)
}

// MinBufferCapacity returns the fewest base bars that define every indicator for
// timeframe. Hourly and daily series are resampled from the buffer, so the binding
// lookback is usually daily RSI: RSIDailyWindow+1 full UTC days, which any window of
// RSIDailyWindow+2 days contains wherever it starts.
func MinBufferCapacity(timeframe string) (int, error) {
	interval, err := utils.IntervalDuration(timeframe)
	if err != nil {
		return 0, err
	}
	if time.Hour%interval != 0 {
		return 0, fmt.Errorf("timeframe %s does not divide one hour; hourly and daily series cannot be resampled from it", timeframe)
	}
	perHour := int(time.Hour / interval)
	need := constants.EMASlowWindow + 1
	need = max(need, (constants.EMAHourWindow+1)*perHour)
	need = max(need, (constants.RSIDailyWindow+2)*24*perHour)
	return need, nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme %q not one of %v", u.Scheme, schemes)
}

// getEnvAsBool gets an environment variable as a boolean value
func getEnvAsBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvAsInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvAsDuration accepts Go durations ("5s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
