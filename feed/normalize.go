package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"breakout-retest/models"
)

// secondsCutoff separates second timestamps from millisecond ones (1e12 ms is 2001-09-09).
const secondsCutoff = 1e12

// splitRecords accepts a single kline object, an array of them, or the legacy
// {"kline": ...} wrapper around either.
func splitRecords(data json.RawMessage) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var wrapper struct {
		Kline json.RawMessage `json:"kline"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	if len(wrapper.Kline) > 0 {
		return splitRecords(wrapper.Kline)
	}
	return []json.RawMessage{data}, nil
}

// normalizeKline converts one exchange kline record into a Candle and reports whether it is
// confirmed. Field aliases: start|start_at|ts, open|o, high|h, low|l, close|c, volume|v,
// confirm|is_confirmed. Prices may be JSON numbers or strings; volume defaults to 0.
func normalizeKline(raw json.RawMessage) (models.Candle, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.Candle{}, false, err
	}
	pick := func(keys ...string) (json.RawMessage, string, bool) {
		for _, k := range keys {
			if v, ok := fields[k]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				return v, k, true
			}
		}
		return nil, keys[0], false
	}
	num := func(keys ...string) (float64, error) {
		v, name, ok := pick(keys...)
		if !ok {
			return 0, fmt.Errorf("missing %s", name)
		}
		f, err := parseNumber(v)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", name, err)
		}
		return f, nil
	}

	var (
		c   models.Candle
		err error
	)
	start, err := num("start", "start_at", "ts")
	if err != nil {
		return c, false, err
	}
	if start < secondsCutoff {
		start *= 1000
	}
	c.OpenTime = int64(start)
	if c.Open, err = num("open", "o"); err != nil {
		return c, false, err
	}
	if c.High, err = num("high", "h"); err != nil {
		return c, false, err
	}
	if c.Low, err = num("low", "l"); err != nil {
		return c, false, err
	}
	if c.Close, err = num("close", "c"); err != nil {
		return c, false, err
	}
	if _, _, ok := pick("volume", "v"); ok {
		if c.Volume, err = num("volume", "v"); err != nil {
			return c, false, err
		}
	}
	if c.High < c.Low || c.Open <= 0 || c.Close <= 0 {
		return c, false, fmt.Errorf("inconsistent prices o=%v h=%v l=%v c=%v", c.Open, c.High, c.Low, c.Close)
	}

	confirmed := false
	if v, _, ok := pick("confirm", "is_confirmed"); ok {
		if confirmed, err = parseBool(v); err != nil {
			return c, false, fmt.Errorf("confirm flag: %w", err)
		}
	}
	return c, confirmed, nil
}

func parseNumber(v json.RawMessage) (float64, error) {
	s := strings.TrimSpace(string(v))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, err
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not finite")
	}
	return f, nil
}

func parseBool(v json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return false, err
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}
