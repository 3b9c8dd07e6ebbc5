package models

import "time"

// Candle represents an OHLCV bar. Sequences handed to indicators and models
// are ascending by Timestamp; gaps are tolerated.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol,omitempty"`
	Interval  string    `json:"interval,omitempty"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// HeikenAshiCandle is a raw bar plus its smoothed Heiken-Ashi values.
type HeikenAshiCandle struct {
	Candle
	HAOpen  float64 `json:"ha_open"`
	HAHigh  float64 `json:"ha_high"`
	HALow   float64 `json:"ha_low"`
	HAClose float64 `json:"ha_close"`
}

func (c HeikenAshiCandle) Bullish() bool { return c.HAClose > c.HAOpen }

func (c HeikenAshiCandle) Bearish() bool { return c.HAClose < c.HAOpen }

// Regime classifies the recent trend structure of a candle series.
type Regime string

const (
	RegimeTrendUp   Regime = "TREND_UP"
	RegimeTrendDown Regime = "TREND_DOWN"
	RegimeRange     Regime = "RANGE"
	RegimeChop      Regime = "CHOP"
)

// TrendDirection is the short-horizon Heiken-Ashi trend label.
type TrendDirection string

const (
	TrendUp      TrendDirection = "up"
	TrendDown    TrendDirection = "down"
	TrendNeutral TrendDirection = "neutral"
)

// HATrend summarises the last few Heiken-Ashi candles.
type HATrend struct {
	Direction TrendDirection `json:"direction"`
	Strength  float64        `json:"strength"`
}

// MACDResult holds the latest MACD line, signal and histogram values.
type MACDResult struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}
