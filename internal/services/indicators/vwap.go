package indicators

import "PolyEdge/internal/domain/models"

// VWAP returns the volume-weighted average of the typical price (H+L+C)/3,
// rounded to 2 decimals. With zero total volume it falls back to the plain
// mean of typical prices. Only empty input fails.
func VWAP(candles []models.Candle) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}

	var tpv, vol, tpSum float64
	for _, c := range candles {
		tp := (c.High + c.Low + c.Close) / 3
		v := c.Volume
		if !finite(v) || v < 0 {
			v = 0
		}
		tpv += tp * v
		vol += v
		tpSum += tp
	}

	if vol == 0 {
		return roundTo(tpSum/float64(len(candles)), 2), true
	}
	return roundTo(tpv/vol, 2), true
}
