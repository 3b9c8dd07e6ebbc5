package indicators

import (
	"math"

	"PolyEdge/internal/domain/models"
)

const DefaultHALookback = 3

// HeikenAshi transforms raw candles into Heiken-Ashi candles.
func HeikenAshi(candles []models.Candle) []models.HeikenAshiCandle {
	if len(candles) == 0 {
		return nil
	}
	out := make([]models.HeikenAshiCandle, len(candles))
	for i, c := range candles {
		ha := models.HeikenAshiCandle{Candle: c}
		ha.HAClose = (c.Open + c.High + c.Low + c.Close) / 4
		if i == 0 {
			ha.HAOpen = (c.Open + c.Close) / 2
		} else {
			ha.HAOpen = (out[i-1].HAOpen + out[i-1].HAClose) / 2
		}
		ha.HAHigh = math.Max(c.High, math.Max(ha.HAOpen, ha.HAClose))
		ha.HALow = math.Min(c.Low, math.Min(ha.HAOpen, ha.HAClose))
		out[i] = ha
	}
	return out
}

// HATrendOf counts bullish and bearish candles among the last lookback
// Heiken-Ashi candles. Ties are neutral with zero strength.
func HATrendOf(ha []models.HeikenAshiCandle, lookback int) models.HATrend {
	neutral := models.HATrend{Direction: models.TrendNeutral}
	if lookback <= 0 || len(ha) < lookback {
		return neutral
	}
	var bull, bear int
	for _, c := range ha[len(ha)-lookback:] {
		switch {
		case c.Bullish():
			bull++
		case c.Bearish():
			bear++
		}
	}
	switch {
	case bull > bear:
		return models.HATrend{Direction: models.TrendUp, Strength: float64(bull) / float64(lookback)}
	case bear > bull:
		return models.HATrend{Direction: models.TrendDown, Strength: float64(bear) / float64(lookback)}
	default:
		return neutral
	}
}
