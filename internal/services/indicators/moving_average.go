package indicators

import "PolyEdge/internal/domain/models"

const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// SMA returns the mean of the last period values.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// EMA returns the exponential moving average series of values. The first
// element is the SMA of the first period values, so the series has
// len(values)-period+1 elements. Returns nil if there are fewer than period
// values.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	mult := 2 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)

	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	prev := sum / float64(period)
	out = append(out, prev)

	for _, v := range values[period:] {
		prev = (v-prev)*mult + prev
		out = append(out, prev)
	}
	return out
}

// MACD computes the latest MACD line, signal line and histogram. Each line
// value subtracts the fast and slow EMA of the same candle, starting at the
// candle where the slow series starts. Requires slow+signal candles. Line and
// signal are rounded to 5 decimals and the histogram is their rounded
// difference, also at 5 decimals.
func MACD(candles []models.Candle, fast, slow, signal int) (models.MACDResult, bool) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(candles) < slow+signal {
		return models.MACDResult{}, false
	}
	cl := closes(candles)
	fastEMA := EMA(cl, fast)
	slowEMA := EMA(cl, slow)
	if fastEMA == nil || slowEMA == nil {
		return models.MACDResult{}, false
	}

	// slowEMA[j] belongs to close index j+slow-1, fastEMA[k] to k+fast-1.
	start := slow - 1
	line := make([]float64, 0, len(cl)-start)
	for i := start; i < len(cl); i++ {
		line = append(line, fastEMA[i-(fast-1)]-slowEMA[i-start])
	}
	if len(line) < signal {
		return models.MACDResult{}, false
	}

	sig := EMA(line, signal)
	if len(sig) == 0 {
		return models.MACDResult{}, false
	}

	l := roundTo(line[len(line)-1], 5)
	s := roundTo(sig[len(sig)-1], 5)
	if !finite(l) || !finite(s) {
		return models.MACDResult{}, false
	}
	return models.MACDResult{Line: l, Signal: s, Histogram: roundTo(l-s, 5)}, true
}
