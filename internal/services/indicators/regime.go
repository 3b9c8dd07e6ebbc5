package indicators

import (
	"math"

	"PolyEdge/internal/domain/models"
)

const regimeWindow = 20

// DetectRegime classifies the last 20 candles as trending, ranging or choppy.
//
// A trend needs |SMA10-SMA20| above 0.5% of the average price and a
// directional-movement ratio above 0.3, with the last close on the SMA10
// side of the move. A range needs a 20-bar price range under 3% and a
// directional ratio under 0.2. Everything else is chop.
func DetectRegime(candles []models.Candle) models.Regime {
	if len(candles) < regimeWindow {
		return models.RegimeChop
	}
	cl := closes(candles)
	sma10, ok10 := SMA(cl, 10)
	sma20, ok20 := SMA(cl, regimeWindow)
	if !ok10 || !ok20 {
		return models.RegimeChop
	}

	recent := candles[len(candles)-regimeWindow:]
	window := cl[len(cl)-regimeWindow:]

	hi, lo, sum := math.Inf(-1), math.Inf(1), 0.0
	for _, v := range window {
		hi = math.Max(hi, v)
		lo = math.Min(lo, v)
		sum += v
	}
	avgPrice := sum / regimeWindow
	if avgPrice <= 0 || !finite(avgPrice) {
		return models.RegimeChop
	}
	rangePct := (hi - lo) / avgPrice * 100

	var plusDM, minusDM float64
	for i := 1; i < len(recent); i++ {
		highDiff := recent[i].High - recent[i-1].High
		lowDiff := recent[i-1].Low - recent[i].Low
		if highDiff > lowDiff && highDiff > 0 {
			plusDM += highDiff
		}
		if lowDiff > highDiff && lowDiff > 0 {
			minusDM += lowDiff
		}
	}
	dmRatio := 0.0
	if plusDM+minusDM > 0 {
		dmRatio = math.Abs(plusDM-minusDM) / (plusDM + minusDM)
	}

	trendStrength := math.Abs(sma10-sma20) / avgPrice * 100
	price := cl[len(cl)-1]

	if trendStrength > 0.5 && dmRatio > 0.3 {
		if sma10 > sma20 && price > sma10 {
			return models.RegimeTrendUp
		}
		if sma10 < sma20 && price < sma10 {
			return models.RegimeTrendDown
		}
	}
	if rangePct < 3 && dmRatio < 0.2 {
		return models.RegimeRange
	}
	return models.RegimeChop
}
