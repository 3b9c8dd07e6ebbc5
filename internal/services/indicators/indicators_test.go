package indicators

import (
	"math"
	"testing"
	"time"

	"PolyEdge/internal/domain/models"
)

func series(closes ...float64) []models.Candle {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		out[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      open,
			High:      math.Max(open, c) + 0.5,
			Low:       math.Min(open, c) - 0.5,
			Close:     c,
			Volume:    10,
		}
	}
	return out
}

func ramp(n int, start, step float64) []models.Candle {
	cl := make([]float64, n)
	for i := range cl {
		cl[i] = start + float64(i)*step
	}
	return series(cl...)
}

func TestRSIInsufficient(t *testing.T) {
	if _, ok := RSI(ramp(14, 100, 1), 14); ok {
		t.Fatalf("expected insufficient data for 14 candles")
	}
	if _, ok := RSI(ramp(15, 100, 1), 14); !ok {
		t.Fatalf("expected RSI for period+1 candles")
	}
}

func TestRSIAllGains(t *testing.T) {
	got, ok := RSI(ramp(40, 100, 1), 14)
	if !ok || got != 100 {
		t.Fatalf("expected 100, got %v ok=%v", got, ok)
	}
}

func TestRSIBounds(t *testing.T) {
	cl := make([]float64, 60)
	for i := range cl {
		cl[i] = 100 + 5*math.Sin(float64(i)/3) - float64(i)*0.1
	}
	got, ok := RSI(series(cl...), 14)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got < 0 || got > 100 {
		t.Fatalf("rsi out of range: %v", got)
	}
	if got != math.Round(got*100)/100 {
		t.Fatalf("rsi not rounded to 2 decimals: %v", got)
	}
}

func TestRSIAllLosses(t *testing.T) {
	got, ok := RSI(ramp(30, 200, -1), 14)
	if !ok || got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestEMA(t *testing.T) {
	got := EMA([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("unexpected length %d", len(got))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("ema[%d]=%v want %v", i, got[i], want[i])
		}
	}
	if EMA([]float64{1, 2}, 3) != nil {
		t.Fatalf("expected nil for short input")
	}
}

func TestSMA(t *testing.T) {
	got, ok := SMA([]float64{1, 2, 3, 4, 5}, 2)
	if !ok || got != 4.5 {
		t.Fatalf("unexpected sma %v", got)
	}
	if _, ok := SMA([]float64{1}, 2); ok {
		t.Fatalf("expected insufficient")
	}
}

func TestMACDInsufficient(t *testing.T) {
	if _, ok := MACD(ramp(34, 100, 1), 12, 26, 9); ok {
		t.Fatalf("expected insufficient data below slow+signal")
	}
	if _, ok := MACD(ramp(35, 100, 1), 12, 26, 9); !ok {
		t.Fatalf("expected MACD at slow+signal candles")
	}
}

func TestMACDHistogramIsLineMinusSignal(t *testing.T) {
	cl := make([]float64, 80)
	for i := range cl {
		cl[i] = 50 + 3*math.Cos(float64(i)/5) + float64(i)*0.05
	}
	m, ok := MACD(series(cl...), 12, 26, 9)
	if !ok {
		t.Fatalf("expected ok")
	}
	if math.Abs(m.Histogram-(m.Line-m.Signal)) > 1e-9 {
		t.Fatalf("histogram %v != line-signal %v", m.Histogram, m.Line-m.Signal)
	}
	for name, v := range map[string]float64{"line": m.Line, "signal": m.Signal, "histogram": m.Histogram} {
		if v != math.Round(v*1e5)/1e5 {
			t.Fatalf("%s not rounded to 5 decimals: %v", name, v)
		}
	}
}

func TestMACDPinnedValues(t *testing.T) {
	cl := make([]float64, 60)
	for i := range cl {
		cl[i] = 100 + float64(i)*0.5 + float64(i%5)*0.8 - float64(i%3)*1.1
	}
	m, ok := MACD(series(cl...), 12, 26, 9)
	if !ok {
		t.Fatalf("expected ok")
	}
	// Offsetting the fast EMA by slow-fast candles instead of aligning on
	// the same candle gives line 1.67242, signal 1.97177.
	want := models.MACDResult{Line: 3.57878, Signal: 3.51686, Histogram: 0.06192}
	if math.Abs(m.Line-want.Line) > 2e-5 || math.Abs(m.Signal-want.Signal) > 2e-5 ||
		math.Abs(m.Histogram-want.Histogram) > 2e-5 {
		t.Fatalf("expected %+v, got %+v", want, m)
	}
}

func TestMACDUptrendPositive(t *testing.T) {
	m, ok := MACD(ramp(60, 100, 1), 12, 26, 9)
	if !ok {
		t.Fatalf("expected ok")
	}
	// fast EMA lags less than slow EMA on a linear ramp: line = (26-12)/2 * step
	if math.Abs(m.Line-7) > 1e-4 {
		t.Fatalf("expected line 7, got %v", m.Line)
	}
}

func TestVWAP(t *testing.T) {
	c := []models.Candle{
		{High: 10, Low: 10, Close: 10, Volume: 1},
		{High: 20, Low: 20, Close: 20, Volume: 3},
	}
	got, ok := VWAP(c)
	if !ok || got != 17.5 {
		t.Fatalf("expected 17.5, got %v", got)
	}
}

func TestVWAPIgnoresNegativeVolume(t *testing.T) {
	c := []models.Candle{
		{High: 10, Low: 10, Close: 10, Volume: 2},
		{High: 50, Low: 50, Close: 50, Volume: -5},
		{High: 90, Low: 90, Close: 90, Volume: math.NaN()},
		{High: 20, Low: 20, Close: 20, Volume: 2},
	}
	got, ok := VWAP(c)
	if !ok || got != 15 {
		t.Fatalf("expected 15 from the positive-volume candles only, got %v", got)
	}
}

func TestVWAPZeroVolume(t *testing.T) {
	c := []models.Candle{
		{High: 11, Low: 9, Close: 10},
		{High: 22, Low: 18, Close: 20},
		{High: 33, Low: 27, Close: 30},
	}
	got, ok := VWAP(c)
	if !ok || got != 20 {
		t.Fatalf("expected unweighted mean 20, got %v", got)
	}
	if _, ok := VWAP(nil); ok {
		t.Fatalf("expected failure on empty input")
	}
}

func TestATR(t *testing.T) {
	got, ok := ATR(ramp(30, 100, 1), 14)
	if !ok {
		t.Fatalf("expected ok")
	}
	// each bar: high = close+0.5, low = prev close-0.5 -> range 2
	if math.Abs(got-2) > 1e-9 {
		t.Fatalf("expected 2, got %v", got)
	}
	if _, ok := ATR(ramp(14, 100, 1), 14); ok {
		t.Fatalf("expected insufficient")
	}
}

func TestHeikenAshi(t *testing.T) {
	c := []models.Candle{
		{Open: 10, High: 12, Low: 9, Close: 11},
		{Open: 11, High: 14, Low: 10, Close: 13},
	}
	ha := HeikenAshi(c)
	if len(ha) != 2 {
		t.Fatalf("unexpected length %d", len(ha))
	}
	if ha[0].HAOpen != 10.5 || ha[0].HAClose != 10.5 {
		t.Fatalf("unexpected first candle %+v", ha[0])
	}
	if ha[1].HAOpen != 10.5 || ha[1].HAClose != 12 {
		t.Fatalf("unexpected second candle %+v", ha[1])
	}
	if ha[1].HAHigh != 14 || ha[1].HALow != 10 {
		t.Fatalf("unexpected high/low %+v", ha[1])
	}
	if HeikenAshi(nil) != nil {
		t.Fatalf("expected empty output")
	}
}

func TestHATrendOf(t *testing.T) {
	bull := models.HeikenAshiCandle{HAOpen: 1, HAClose: 2}
	bear := models.HeikenAshiCandle{HAOpen: 2, HAClose: 1}
	doji := models.HeikenAshiCandle{HAOpen: 1, HAClose: 1}

	tests := []struct {
		name string
		in   []models.HeikenAshiCandle
		dir  models.TrendDirection
		str  float64
	}{
		{"short", []models.HeikenAshiCandle{bull, bull}, models.TrendNeutral, 0},
		{"all bull", []models.HeikenAshiCandle{bear, bull, bull, bull}, models.TrendUp, 1},
		{"two bear", []models.HeikenAshiCandle{bear, bull, bear}, models.TrendDown, 2.0 / 3},
		{"tie", []models.HeikenAshiCandle{bull, bear, doji}, models.TrendNeutral, 0},
	}
	for _, tt := range tests {
		got := HATrendOf(tt.in, 3)
		if got.Direction != tt.dir || math.Abs(got.Strength-tt.str) > 1e-12 {
			t.Errorf("%s: got %+v", tt.name, got)
		}
	}
}

func TestDetectRegime(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100
	}
	flatCandles := series(flat...)

	tests := []struct {
		name string
		in   []models.Candle
		want models.Regime
	}{
		{"too short", ramp(19, 100, 1), models.RegimeChop},
		{"uptrend", ramp(40, 100, 1), models.RegimeTrendUp},
		{"downtrend", ramp(40, 200, -1), models.RegimeTrendDown},
		{"flat", flatCandles, models.RegimeRange},
	}
	for _, tt := range tests {
		if got := DetectRegime(tt.in); got != tt.want {
			t.Errorf("%s: got %s want %s", tt.name, got, tt.want)
		}
	}
}
