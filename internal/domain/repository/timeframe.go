package repository

import (
	"regexp"
	"strings"
	"time"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m:
		return true
	default:
		return false
	}
}

// Duration is the length of one candle.
func (tf Timeframe) Duration() time.Duration {
	if tf == TF5m {
		return 5 * time.Minute
	}
	return time.Minute
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

var marketSuffix = regexp.MustCompile(`_(\d+[MH]|DAILY)$`)

// NormalizeAssetName strips the market timeframe suffix so that BTC_15M,
// BTC_1H and BTC_DAILY all read candles for BTC.
func NormalizeAssetName(name string) string {
	return marketSuffix.ReplaceAllString(strings.ToUpper(strings.TrimSpace(name)), "")
}
