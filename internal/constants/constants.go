package constants

// Position sides
const (
	Long  = "LONG"
	Short = "SHORT"
)

// Order types
const (
	Market = "Market"
	Limit  = "Limit"
)

// Order sides
const (
	Buy  = "Buy"
	Sell = "Sell"
)

// Time in force
const (
	PostOnly = "PostOnly"
	IOC      = "IOC"
)

// Category is the Bybit v5 product category for USDT perpetuals.
const Category = "linear"

// Indicator windows
const (
	EMAHourWindow  = 60
	EMAFastWindow  = 60
	EMASlowWindow  = 163
	RSIDailyWindow = 14
	ATRWindow      = 14
)

// Strategy thresholds
const (
	RSILongMax       = 45.0
	RSIShortMin      = 55.0
	LongBounceBand   = 1.007
	ShortBounceBand  = 0.993
	BreakEvenTrigger = 0.005
)

// Timeframes maps human timeframes to Bybit kline interval codes.
var Timeframes = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"2h":  "120",
	"4h":  "240",
	"6h":  "360",
	"12h": "720",
	"1d":  "D",
	"1w":  "W",
	"1M":  "M",
}
