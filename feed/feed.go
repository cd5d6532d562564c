// Package feed streams confirmed klines for one symbol from the Bybit public websocket.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"breakout-retest/internal/utils"
	"breakout-retest/logging"
	"breakout-retest/metrics"
	"breakout-retest/models"
)

// State of the feed connection lifecycle.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Streaming
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Subscribed:
		return "SUBSCRIBED"
	case Streaming:
		return "STREAMING"
	case Reconnecting:
		return "RECONNECTING"
	default:
		return "DISCONNECTED"
	}
}

// Subscribe message styles.
const (
	StyleOp     = "op"
	StyleLegacy = "legacy"
)

// Options configures the feed.
type Options struct {
	URL            string
	Symbol         string
	Timeframe      string
	SubscribeStyle string
	ReconnectDelay time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	Dialer         *websocket.Dialer
}

// Handler receives confirmed candles, one at a time, on the feed goroutine.
type Handler func(ctx context.Context, c models.Candle)

// Client is a reconnecting kline subscriber. Run drives it; Stop ends it.
type Client struct {
	opts    Options
	topic   string
	handler Handler
	logger  logging.LoggerInterface

	state atomic.Int32

	mu       sync.Mutex
	closeCur func()

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New validates opts and builds a client for topic kline.<code>.<SYMBOL>.
func New(opts Options, handler Handler, logger logging.LoggerInterface) (*Client, error) {
	code, err := utils.IntervalCode(opts.Timeframe)
	if err != nil {
		return nil, err
	}
	if opts.URL == "" || opts.Symbol == "" {
		return nil, errors.New("feed: url and symbol are required")
	}
	if handler == nil {
		return nil, errors.New("feed: handler is required")
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait / 3
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts:    opts,
		topic:   Topic(code, opts.Symbol),
		handler: handler,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// Topic formats the kline topic for an interval code and symbol.
func Topic(intervalCode, symbol string) string {
	return fmt.Sprintf("kline.%s.%s", intervalCode, symbol)
}

func (c *Client) Topic() string { return c.topic }
func (c *Client) State() State  { return State(c.state.Load()) }

func (c *Client) setState(s State) {
	if prev := State(c.state.Swap(int32(s))); prev != s {
		c.logger.Debug("Feed %s: %s -> %s", c.topic, prev, s)
	}
}

// Run connects, subscribes and forwards confirmed candles until ctx is done or Stop is
// called. Connection, read and decode failures are retried after ReconnectDelay without limit.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer c.setState(Disconnected)

	for attempt := 1; ; attempt++ {
		if c.stopping(ctx) {
			return nil
		}
		err := c.session(ctx)
		if c.stopping(ctx) {
			return nil
		}
		c.setState(Reconnecting)
		metrics.IncFeedReconnect()
		c.logger.Warning("Market feed %s dropped (%v); reconnect #%d in %s", c.topic, err, attempt, c.opts.ReconnectDelay)

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Stop ends Run and closes the active connection. Safe to call repeatedly and before Run.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		closeCur := c.closeCur
		c.closeCur = nil
		c.mu.Unlock()
		if closeCur != nil {
			closeCur()
		}
		c.logger.Info("Market feed %s stopped", c.topic)
	})
}

func (c *Client) stopping(ctx context.Context) bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return ctx.Err() != nil
	}
}

// attach records conn as the live connection unless Stop already ran.
func (c *Client) attach(conn *websocket.Conn) (func(), bool) {
	closeOnce := sync.OnceFunc(func() {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.stopCh:
		return closeOnce, false
	default:
	}
	c.closeCur = closeOnce
	return closeOnce, true
}

func (c *Client) detach() {
	c.mu.Lock()
	c.closeCur = nil
	c.mu.Unlock()
}

func (c *Client) subscribeMessage() interface{} {
	if c.opts.SubscribeStyle == StyleLegacy {
		return map[string]interface{}{"topic": c.topic, "event": "sub"}
	}
	return map[string]interface{}{"op": "subscribe", "args": []string{c.topic}}
}

func (c *Client) session(ctx context.Context) error {
	c.setState(Connecting)
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	closeConn, ok := c.attach(conn)
	defer closeConn()
	if !ok {
		return nil
	}
	defer c.detach()

	pongWait := c.opts.PongWait
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sub := c.subscribeMessage()
	c.logger.Debug("Sending subscription request: %v", sub)
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.setState(Subscribed)
	c.logger.Info("Subscribed to %s at %s", c.topic, c.opts.URL)

	done := make(chan struct{})
	defer close(done)
	go c.keepalive(ctx, conn, closeConn, done)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if c.stopping(ctx) {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("closed by server: %w", err)
			}
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		candles, err := c.decode(msg)
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		for _, k := range candles {
			c.setState(Streaming)
			c.handler(ctx, k)
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

// keepalive sends application pings and closes conn when ctx ends so a blocked read returns.
func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn, closeConn func(), done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			closeConn()
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"ping"}`)); err != nil {
				c.logger.Debug("Feed ping failed: %v", err)
				return
			}
		}
	}
}

type frame struct {
	Topic   string          `json:"topic"`
	Op      string          `json:"op"`
	Event   string          `json:"event"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Data    json.RawMessage `json:"data"`
}

// decode returns the confirmed candles carried by msg. Control frames and other topics
// yield nothing; a frame that is not JSON is an error.
func (c *Client) decode(msg []byte) ([]models.Candle, error) {
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return nil, err
	}
	if f.Topic == "" || len(f.Data) == 0 {
		if f.Success != nil && !*f.Success {
			c.logger.Warning("Feed request rejected: op=%s event=%s msg=%s", f.Op, f.Event, f.RetMsg)
		} else {
			c.logger.Debug("Feed control frame: %s", string(msg))
		}
		return nil, nil
	}
	if f.Topic != c.topic {
		return nil, nil
	}

	records, err := splitRecords(f.Data)
	if err != nil {
		return nil, err
	}
	out := make([]models.Candle, 0, len(records))
	for _, raw := range records {
		k, confirmed, err := normalizeKline(raw)
		if err != nil {
			c.logger.Warning("Dropping malformed kline on %s: %v", c.topic, err)
			continue
		}
		if !confirmed {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}
