package indicators

import "PolyEdge/internal/domain/models"

const DefaultRSIPeriod = 14

// RSI computes the Relative Strength Index with Wilder's smoothing. Averages
// are seeded from the first period deltas and smoothed over the rest.
// Requires period+1 candles. The result is rounded to 2 decimals.
func RSI(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	p := float64(period)
	avgGain /= p
	avgLoss /= p

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	rsi := 100 - 100/(1+rs)
	if !finite(rsi) {
		return 0, false
	}
	return roundTo(rsi, 2), true
}
