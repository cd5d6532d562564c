package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"breakout-retest/config"
	"breakout-retest/models"
)

func newTestClient(t *testing.T, h http.Handler) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.RESTHost = srv.URL
	cfg.APIKey = "key"
	cfg.APISecret = "secret"
	cfg.RESTRateLimit = 1000
	client := NewRESTClient(cfg, nil)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSignREST(t *testing.T) {
	client := NewRESTClient(config.Default(), nil)
	got := client.SignREST("secret", "1690000000000", "key", "5000", "param=1")

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("1690000000000" + "key" + "5000" + "param=1"))
	if want := hex.EncodeToString(mac.Sum(nil)); got != want {
		t.Fatalf("SignREST mismatch: got %s want %s", got, want)
	}
}

func TestFetchInstrument(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/instruments-info" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-BAPI-SIGN") != "" {
			t.Errorf("public endpoint should not be signed")
		}
		_, _ = w.Write([]byte(`{
			"retCode":0,
			"retMsg":"OK",
			"result":{"list":[{"lotSizeFilter":{"minNotionalValue":"5","minOrderQty":"0.001","qtyStep":"0.001"},"priceFilter":{"tickSize":"0.10"}}]}
		}`))
	}))

	info, err := client.FetchInstrument(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("FetchInstrument error: %v", err)
	}
	if !info.MinNotional.Equal(decimal.NewFromInt(5)) || !info.QtyStep.Equal(decimal.RequireFromString("0.001")) ||
		!info.TickSize.Equal(decimal.RequireFromString("0.1")) || !info.MinQty.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("unexpected instrument info: %+v", info)
	}
}

func TestFetchInstrumentNotFoundIsRejection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[]}}`))
	}))
	_, err := client.FetchInstrument(context.Background(), "NOPEUSDT")
	if !IsRejection(err) {
		t.Fatalf("expected exchange rejection, got %v", err)
	}
}

func TestFetchBalanceSigned(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/account/wallet-balance" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		ts := r.Header.Get("X-BAPI-TIMESTAMP")
		mac := hmac.New(sha256.New, []byte("secret"))
		mac.Write([]byte(ts + "key" + "5000" + r.URL.RawQuery))
		if r.Header.Get("X-BAPI-SIGN") != hex.EncodeToString(mac.Sum(nil)) {
			t.Errorf("bad signature")
		}
		if r.URL.Query().Get("coin") != "USDT" {
			t.Errorf("coin = %s", r.URL.Query().Get("coin"))
		}
		_, _ = w.Write([]byte(`{
			"retCode":0,
			"retMsg":"OK",
			"result":{"list":[{"totalEquity":"130","totalAvailableBalance":"123.45","coin":[{"coin":"USDT","equity":"125.5"}]}]}
		}`))
	}))

	bal, err := client.FetchBalance(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("FetchBalance error: %v", err)
	}
	if bal != 125.5 {
		t.Fatalf("balance mismatch: %f", bal)
	}
}

func TestFetchPositions(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/position/list" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[{"side":"Buy","size":"0.012","avgPrice":"100.5"},{"side":"","size":"0","avgPrice":"0"}]}}`))
	}))

	positions, err := client.FetchPositions(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("FetchPositions error: %v", err)
	}
	if len(positions) != 2 || positions[0].Side != "Buy" || !positions[0].Size.Equal(decimal.RequireFromString("0.012")) || positions[0].AvgPrice != 100.5 {
		t.Fatalf("unexpected positions %+v", positions)
	}
}

func TestCreateOrdersPayload(t *testing.T) {
	var bodies []map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/order/create" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		bodies = append(bodies, body)
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"orderId":"abc","orderLinkId":"x"}}`))
	}))

	ctx := context.Background()
	id, err := client.CreateLimitOrder(ctx, models.OrderRequest{
		Symbol: "BTCUSDT", Side: "Buy", Qty: decimal.RequireFromString("1.23"), Price: decimal.RequireFromString("100.2"), PostOnly: true,
	})
	if err != nil || id != "abc" {
		t.Fatalf("CreateLimitOrder = %q, %v", id, err)
	}
	if _, err := client.CreateMarketOrder(ctx, models.OrderRequest{
		Symbol: "BTCUSDT", Side: "Sell", Qty: decimal.RequireFromString("1.23"), ReduceOnly: true,
	}); err != nil {
		t.Fatalf("CreateMarketOrder: %v", err)
	}

	limit, market := bodies[0], bodies[1]
	if limit["orderType"] != "Limit" || limit["timeInForce"] != "PostOnly" || limit["price"] != "100.2" || limit["qty"] != "1.23" || limit["reduceOnly"] != false {
		t.Fatalf("unexpected limit body %v", limit)
	}
	if market["orderType"] != "Market" || market["reduceOnly"] != true || market["side"] != "Sell" {
		t.Fatalf("unexpected market body %v", market)
	}
	if _, ok := market["price"]; ok {
		t.Fatalf("market order must not carry a price")
	}
	if limit["orderLinkId"] == "" || limit["orderLinkId"] == market["orderLinkId"] {
		t.Fatalf("expected unique orderLinkId values")
	}
}

func TestOrderRejectionReturnsError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":140024,"retMsg":"post only will take liquidity","result":{}}`))
	}))
	_, err := client.CreateLimitOrder(context.Background(), models.OrderRequest{Symbol: "BTCUSDT", Side: "Buy", Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100), PostOnly: true})
	var apiErr *Error
	if !IsRejection(err) || !errors.As(err, &apiErr) || apiErr.Code != 140024 {
		t.Fatalf("expected retCode error, got %v", err)
	}
}

func TestFetchOHLCVPagesAndDropsOpenCandle(t *testing.T) {
	const step = int64(5 * time.Minute / time.Millisecond)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	total := 25 // rows 0..24; row 24 is still open at "now"
	pages := 0

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/kline" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		pages++
		q := r.URL.Query()
		if q.Get("interval") != "5" || q.Get("category") != "linear" {
			t.Errorf("unexpected query %v", q)
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		end := int64(1 << 62)
		if e := q.Get("end"); e != "" {
			end, _ = strconv.ParseInt(e, 10, 64)
		}
		var rows [][]string
		for i := total - 1; i >= 0 && len(rows) < limit; i-- {
			start := base + int64(i)*step
			if start > end {
				continue
			}
			p := strconv.Itoa(100 + i)
			rows = append(rows, []string{strconv.FormatInt(start, 10), p, p, p, p, "1", "100"})
		}
		res, _ := json.Marshal(map[string]interface{}{"retCode": 0, "retMsg": "OK", "result": map[string]interface{}{"list": rows}})
		_, _ = w.Write(res)
	}))
	client.now = func() time.Time { return time.UnixMilli(base + 24*step + step/2) }

	out, err := client.FetchOHLCV(context.Background(), "BTCUSDT", "5m", 2500)
	if err != nil {
		t.Fatalf("FetchOHLCV: %v", err)
	}
	if len(out) != 24 {
		t.Fatalf("expected 24 closed candles, got %d", len(out))
	}
	for i, k := range out {
		if k.OpenTime != base+int64(i)*step || k.Close != float64(100+i) {
			t.Fatalf("candle %d out of order: %+v", i, k)
		}
	}

	pages = 0
	out, err = client.FetchOHLCV(context.Background(), "BTCUSDT", "5m", 10)
	if err != nil || len(out) != 10 {
		t.Fatalf("limited fetch = %d candles, %v", len(out), err)
	}
	if out[9].OpenTime != base+23*step {
		t.Fatalf("newest candle should be the last closed one, got %d", out[9].OpenTime)
	}
	if pages != 1 {
		t.Fatalf("expected one page, got %d", pages)
	}
}

func TestFetchClosedPnLFollowsCursor(t *testing.T) {
	var cursors []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/position/closed-pnl" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-BAPI-SIGN") == "" {
			t.Errorf("closed-pnl must be signed")
		}
		q := r.URL.Query()
		cursors = append(cursors, q.Get("cursor"))
		if q.Get("startTime") == "" || q.Get("endTime") == "" {
			t.Errorf("missing window in %v", q)
		}
		if q.Get("cursor") == "" {
			_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[{"symbol":"BTCUSDT","side":"Sell","closedPnl":"-2","avgEntryPrice":"12","avgExitPrice":"14","qty":"1","updatedTime":"1700000060000"}],"nextPageCursor":"c1"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[{"symbol":"BTCUSDT","side":"Buy","closedPnl":"1.5","avgEntryPrice":"10","avgExitPrice":"11.5","qty":"1","updatedTime":"1700000000"}],"nextPageCursor":""}}`))
	}))

	end := time.Now()
	items, err := client.FetchClosedPnL(context.Background(), "BTCUSDT", end.Add(-time.Hour), end)
	if err != nil {
		t.Fatalf("FetchClosedPnL: %v", err)
	}
	if len(cursors) != 2 || cursors[1] != "c1" {
		t.Fatalf("expected two pages, cursors %v", cursors)
	}
	if len(items) != 2 || items[0].Side != "Buy" || items[0].PnL != 1.5 || items[1].PnL != -2 {
		t.Fatalf("items should be sorted by time with seconds normalized: %+v", items)
	}
	if !items[0].UpdatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("seconds timestamp not converted: %v", items[0].UpdatedAt)
	}
}
