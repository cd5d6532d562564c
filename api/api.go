package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"breakout-retest/config"
	"breakout-retest/internal/constants"
	"breakout-retest/internal/utils"
	"breakout-retest/logging"
	"breakout-retest/models"
)

// maxKlinePage is the largest page /v5/market/kline serves.
const maxKlinePage = 1000

// Error is a non-zero retCode returned by the exchange.
type Error struct {
	Path string
	Code int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: retCode %d: %s", e.Path, e.Code, e.Msg)
}

// RESTClient provides methods to interact with Bybit REST API
type RESTClient struct {
	Config *config.Config
	Logger logging.LoggerInterface

	HTTP    *http.Client
	limiter *rate.Limiter
	now     func() time.Time

	closeOnce sync.Once
}

// NewRESTClient creates a new REST API client
func NewRESTClient(cfg *config.Config, logger logging.LoggerInterface) *RESTClient {
	rps := cfg.RESTRateLimit
	if rps <= 0 {
		rps = 10
	}
	return &RESTClient{
		Config:  cfg,
		Logger:  logger,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 5),
		now:     time.Now,
	}
}

// SignREST signs a REST request
func (c *RESTClient) SignREST(secret, timestamp, apiKey, recvWindow, payload string) string {
	base := timestamp + apiKey + recvWindow + payload
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// do sends one request and decodes result into out. Private requests carry the X-BAPI
// signature headers; public ones are sent bare.
func (c *RESTClient) do(ctx context.Context, method, path string, query url.Values, body interface{}, private bool, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var (
		payload string
		reader  io.Reader
		target  = c.Config.RESTHost + path
	)
	if len(query) > 0 {
		payload = query.Encode()
		target += "?" + payload
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		payload = string(raw)
		reader = bytes.NewReader(raw)
	}

	if c.Logger != nil {
		c.Logger.Debug("Sending %s request to exchange: %s %s", method, path, payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if private {
		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", c.Config.APIKey)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", c.Config.RecvWindow)
		req.Header.Set("X-BAPI-SIGN-TYPE", "2")
		req.Header.Set("X-BAPI-SIGN", c.SignREST(c.Config.APISecret, ts, c.Config.APIKey, c.Config.RecvWindow, payload))
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Error("Failed to send %s request to exchange: %v", method, err)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if c.Logger != nil {
		c.Logger.Debug("Received response from exchange for %s: Status %d, Body: %s", path, resp.StatusCode, string(raw))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http status %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if env.RetCode != 0 {
		return &Error{Path: path, Code: env.RetCode, Msg: env.RetMsg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", path, err)
	}
	return nil
}

// FetchInstrument fetches instrument information
func (c *RESTClient) FetchInstrument(ctx context.Context, symbol string) (models.InstrumentInfo, error) {
	q := url.Values{}
	q.Set("category", constants.Category)
	q.Set("symbol", symbol)

	var r struct {
		List []struct {
			LotSizeFilter struct {
				MinNotionalValue string `json:"minNotionalValue"`
				MinOrderQty      string `json:"minOrderQty"`
				QtyStep          string `json:"qtyStep"`
			} `json:"lotSizeFilter"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
		} `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v5/market/instruments-info", q, nil, false, &r); err != nil {
		return models.InstrumentInfo{}, err
	}
	if len(r.List) == 0 {
		return models.InstrumentInfo{}, &Error{Path: "/v5/market/instruments-info", Code: -1, Msg: "market not found: " + symbol}
	}

	it := r.List[0]
	info := models.InstrumentInfo{
		MinNotional: parseDecimal(it.LotSizeFilter.MinNotionalValue),
		MinQty:      parseDecimal(it.LotSizeFilter.MinOrderQty),
		QtyStep:     parseDecimal(it.LotSizeFilter.QtyStep),
		TickSize:    parseDecimal(it.PriceFilter.TickSize),
	}
	if !info.QtyStep.IsPositive() || !info.TickSize.IsPositive() {
		return models.InstrumentInfo{}, fmt.Errorf("instrument %s has no qty step or tick size", symbol)
	}
	return info, nil
}

// FetchBalance returns the account equity for coin, falling back to the available balance.
func (c *RESTClient) FetchBalance(ctx context.Context, coin string) (float64, error) {
	q := url.Values{}
	q.Set("accountType", c.Config.AccountType)
	q.Set("coin", coin)

	var r struct {
		List []struct {
			TotalEquity           string `json:"totalEquity"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
			Coin                  []struct {
				Coin   string `json:"coin"`
				Equity string `json:"equity"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v5/account/wallet-balance", q, nil, true, &r); err != nil {
		return 0, err
	}
	if len(r.List) == 0 {
		return 0, &Error{Path: "/v5/account/wallet-balance", Code: -1, Msg: "empty wallet list"}
	}
	acct := r.List[0]
	for _, cb := range acct.Coin {
		if strings.EqualFold(cb.Coin, coin) && cb.Equity != "" {
			return strconv.ParseFloat(cb.Equity, 64)
		}
	}
	if acct.TotalEquity != "" {
		return strconv.ParseFloat(acct.TotalEquity, 64)
	}
	return strconv.ParseFloat(acct.TotalAvailableBalance, 64)
}

// FetchPositions fetches the current position list
func (c *RESTClient) FetchPositions(ctx context.Context, symbol string) ([]models.Position, error) {
	q := url.Values{}
	q.Set("category", constants.Category)
	q.Set("symbol", symbol)

	var r struct {
		List []struct {
			Side     string `json:"side"`
			Size     string `json:"size"`
			AvgPrice string `json:"avgPrice"`
		} `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v5/position/list", q, nil, true, &r); err != nil {
		return nil, err
	}
	out := make([]models.Position, 0, len(r.List))
	for _, p := range r.List {
		avg, _ := strconv.ParseFloat(p.AvgPrice, 64)
		out = append(out, models.Position{Side: p.Side, Size: parseDecimal(p.Size), AvgPrice: avg})
	}
	return out, nil
}

// FetchClosedPnL returns closed-position records for symbol between start and end,
// following nextPageCursor until the exchange has no more pages.
func (c *RESTClient) FetchClosedPnL(ctx context.Context, symbol string, start, end time.Time) ([]models.ClosedPnL, error) {
	var out []models.ClosedPnL
	cursor := ""
	for {
		q := url.Values{}
		q.Set("category", constants.Category)
		if symbol != "" {
			q.Set("symbol", symbol)
		}
		q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
		q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
		q.Set("limit", "200")
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var r struct {
			List []struct {
				Symbol        string `json:"symbol"`
				Side          string `json:"side"`
				ClosedPnl     string `json:"closedPnl"`
				AvgEntryPrice string `json:"avgEntryPrice"`
				AvgExitPrice  string `json:"avgExitPrice"`
				Qty           string `json:"qty"`
				UpdatedTime   string `json:"updatedTime"`
			} `json:"list"`
			NextPageCursor string `json:"nextPageCursor"`
		}
		if err := c.do(ctx, http.MethodGet, "/v5/position/closed-pnl", q, nil, true, &r); err != nil {
			return nil, err
		}
		for _, it := range r.List {
			ms, _ := strconv.ParseInt(it.UpdatedTime, 10, 64)
			if ms > 0 && ms < 1e12 {
				ms *= 1000
			}
			entry, _ := strconv.ParseFloat(it.AvgEntryPrice, 64)
			exit, _ := strconv.ParseFloat(it.AvgExitPrice, 64)
			pnl, _ := strconv.ParseFloat(it.ClosedPnl, 64)
			out = append(out, models.ClosedPnL{
				Symbol:    it.Symbol,
				Side:      it.Side,
				Qty:       parseDecimal(it.Qty),
				Entry:     entry,
				Exit:      exit,
				PnL:       pnl,
				UpdatedAt: time.UnixMilli(ms).UTC(),
			})
		}
		if r.NextPageCursor == "" || len(r.List) == 0 {
			break
		}
		cursor = r.NextPageCursor
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// CreateLimitOrder places a limit order; PostOnly maps to timeInForce PostOnly.
func (c *RESTClient) CreateLimitOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	body := c.orderBody(req, constants.Limit)
	body["price"] = req.Price.String()
	if req.PostOnly {
		body["timeInForce"] = constants.PostOnly
	} else {
		body["timeInForce"] = "GTC"
	}
	return c.createOrder(ctx, body)
}

// CreateMarketOrder places an IOC market order.
func (c *RESTClient) CreateMarketOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	body := c.orderBody(req, constants.Market)
	body["timeInForce"] = constants.IOC
	return c.createOrder(ctx, body)
}

func (c *RESTClient) orderBody(req models.OrderRequest, orderType string) map[string]interface{} {
	return map[string]interface{}{
		"category":    constants.Category,
		"symbol":      req.Symbol,
		"side":        req.Side,
		"orderType":   orderType,
		"qty":         req.Qty.String(),
		"reduceOnly":  req.ReduceOnly,
		"positionIdx": 0,
		"orderLinkId": uuid.NewString(),
	}
}

func (c *RESTClient) createOrder(ctx context.Context, body map[string]interface{}) (string, error) {
	var r struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v5/order/create", nil, body, true, &r); err != nil {
		return "", err
	}
	if c.Logger != nil {
		c.Logger.Info("Order accepted: %s %s %s qty=%s id=%s", body["orderType"], body["side"], body["symbol"], body["qty"], r.OrderID)
	}
	return r.OrderID, nil
}

// FetchOHLCV returns up to limit confirmed candles, oldest first. Bybit pages newest-first
// with at most 1000 rows, so pages are walked backwards with the end parameter. The
// still-open candle is dropped.
func (c *RESTClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	code, err := utils.IntervalCode(timeframe)
	if err != nil {
		return nil, err
	}
	step, err := utils.IntervalDuration(timeframe)
	if err != nil {
		return nil, err
	}
	now := c.now().UnixMilli()

	byStart := make(map[int64]models.Candle, limit)
	end := int64(0)
	for len(byStart) < limit {
		page := limit - len(byStart) + 1
		if page > maxKlinePage {
			page = maxKlinePage
		}
		q := url.Values{}
		q.Set("category", constants.Category)
		q.Set("symbol", symbol)
		q.Set("interval", code)
		q.Set("limit", strconv.Itoa(page))
		if end > 0 {
			q.Set("end", strconv.FormatInt(end, 10))
		}

		var r struct {
			List [][]string `json:"list"`
		}
		if err := c.do(ctx, http.MethodGet, "/v5/market/kline", q, nil, false, &r); err != nil {
			return nil, err
		}
		if len(r.List) == 0 {
			break
		}
		oldest := int64(-1)
		for _, row := range r.List {
			k, err := parseKlineRow(row)
			if err != nil {
				return nil, fmt.Errorf("kline row: %w", err)
			}
			if oldest < 0 || k.OpenTime < oldest {
				oldest = k.OpenTime
			}
			if k.OpenTime+step.Milliseconds() > now {
				continue
			}
			byStart[k.OpenTime] = k
		}
		if len(r.List) < page || (end > 0 && oldest >= end) {
			break
		}
		end = oldest - 1
	}

	out := make([]models.Candle, 0, len(byStart))
	for _, k := range byStart {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// parseKlineRow reads [start, open, high, low, close, volume, turnover].
func parseKlineRow(row []string) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("expected 6+ fields, got %d", len(row))
	}
	var vals [6]float64
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(row[i], 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	return models.Candle{
		OpenTime: int64(vals[0]),
		Open:     vals[1],
		High:     vals[2],
		Low:      vals[3],
		Close:    vals[4],
		Volume:   vals[5],
	}, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Close releases idle connections. It is safe to call more than once.
func (c *RESTClient) Close() error {
	c.closeOnce.Do(func() {
		c.HTTP.CloseIdleConnections()
	})
	return nil
}

// IsRejection reports whether err is an exchange-side rejection rather than a transport failure.
func IsRejection(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr)
}
