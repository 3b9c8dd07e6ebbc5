package indicators

import (
	"math"

	"PolyEdge/internal/domain/models"
)

const DefaultATRPeriod = 14

// ATR returns the simple average of the last period true ranges.
func ATR(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]
		tr := math.Max(cur.High-cur.Low,
			math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		sum += tr
	}
	return sum / float64(period), true
}
