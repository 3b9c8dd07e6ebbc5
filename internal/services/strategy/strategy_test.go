package strategy

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"PolyEdge/internal/domain/models"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func ramp(n int, start, step float64) []models.Candle {
	out := make([]models.Candle, n)
	prev := start
	for i := range out {
		c := start + float64(i)*step
		out[i] = models.Candle{
			Timestamp: fixedNow.Add(time.Duration(i-n) * time.Minute),
			Open:      prev,
			High:      math.Max(prev, c) + 0.5,
			Low:       math.Min(prev, c) - 0.5,
			Close:     c,
			Volume:    10,
		}
		prev = c
	}
	return out
}

func zigzag(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100.0
		if i%2 == 1 {
			c = 101
		}
		out[i] = models.Candle{Open: 100.5, High: 101.5, Low: 99.5, Close: c, Volume: 1}
	}
	return out
}

func checkEdgeInvariant(t *testing.T, r models.EvaluationResult, q models.MarketQuote) {
	t.Helper()
	if r.Direction == models.DirectionNone {
		return
	}
	price, _ := q.Price(r.Direction)
	if math.Abs(r.Edge-(r.Confidence-price)) > 1e-3 {
		t.Fatalf("edge %v != confidence %v - price %v", r.Edge, r.Confidence, price)
	}
}

func newTA(t *testing.T, opts ...Option) *TAModel {
	t.Helper()
	m, err := NewTAModel(append([]Option{WithClock(clock)}, opts...)...)
	if err != nil {
		t.Fatalf("new ta model: %v", err)
	}
	return m
}

func TestBaseRequiresName(t *testing.T) {
	if _, err := newBase("", 0.05, nil); err != ErrModelName {
		t.Fatalf("expected ErrModelName, got %v", err)
	}
}

func TestBaseResult(t *testing.T) {
	b, _ := newBase("m", 0.05, clock)
	r := b.Result(models.DirectionUp, 0.61234, 0.11234, true, "")
	if r.Confidence != 0.612 || r.Edge != 0.112 {
		t.Fatalf("expected 3-decimal rounding, got %+v", r)
	}
	if r.Reason != "No reason provided" || !r.Timestamp.Equal(fixedNow) || r.Model != "m" {
		t.Fatalf("unexpected result %+v", r)
	}

	nt := b.NoTrade("nope")
	if nt.Direction != models.DirectionNone || nt.Confidence != 0 || nt.Edge != 0 || nt.ShouldTrade {
		t.Fatalf("unexpected no-trade %+v", nt)
	}
}

func TestBaseEdgeAndThreshold(t *testing.T) {
	b, _ := newBase("m", 0.05, clock)
	q := models.MarketQuote{Up: 0.4, Down: 0.6}
	if e := b.CalculateEdge(models.DirectionUp, 0.5, q); math.Abs(e-0.1) > 1e-12 {
		t.Fatalf("unexpected up edge %v", e)
	}
	if e := b.CalculateEdge(models.DirectionDown, 0.5, q); math.Abs(e+0.1) > 1e-12 {
		t.Fatalf("unexpected down edge %v", e)
	}
	if b.ShouldMakeTrade(0.05) {
		t.Fatalf("edge equal to threshold must not trade")
	}
	if !b.ShouldMakeTrade(0.0501) {
		t.Fatalf("edge above threshold must trade")
	}
}

func TestBaseValidation(t *testing.T) {
	b, _ := newBase("m", 0.05, clock)
	if b.ValidateCandles(nil, 1) {
		t.Fatalf("nil candles must be invalid")
	}
	if b.ValidateCandles([]models.Candle{{Close: math.NaN()}}, 1) {
		t.Fatalf("NaN close must be invalid")
	}
	if !b.ValidateCandles([]models.Candle{{Close: 1}}, 1) {
		t.Fatalf("expected valid")
	}
	for _, q := range []models.MarketQuote{{Up: -0.1, Down: 0.5}, {Up: 0.5, Down: 1.1}, {Up: math.NaN(), Down: 0.5}} {
		if b.ValidateQuote(q) {
			t.Fatalf("quote %+v must be invalid", q)
		}
	}
}

func TestTAConfigValidate(t *testing.T) {
	cfg := DefaultTAConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if math.Abs(cfg.Weights.Sum()-1) > 1e-12 {
		t.Fatalf("default weights sum to %v", cfg.Weights.Sum())
	}
	cfg.Weights.RSI = 0.5
	if _, err := NewTAModel(WithTAConfig(cfg)); err == nil {
		t.Fatalf("expected weight sum error")
	}
}

func TestTAInsufficientCandles(t *testing.T) {
	m := newTA(t)
	r := m.Evaluate(ramp(10, 100, 1), models.MarketQuote{Up: 0.5, Down: 0.5}, nil)
	if r.Direction != models.DirectionNone || r.ShouldTrade {
		t.Fatalf("expected no trade, got %+v", r)
	}
	if r.Reason != "Insufficient candles: need 30, got 10" {
		t.Fatalf("unexpected reason %q", r.Reason)
	}
}

func TestTAInvalidQuote(t *testing.T) {
	m := newTA(t)
	r := m.Evaluate(ramp(40, 100, 1), models.MarketQuote{Up: 1.2, Down: 0.5}, nil)
	if r.Reason != "Invalid market prices" || r.ShouldTrade {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestTAUptrendRecommendsUp(t *testing.T) {
	m := newTA(t)
	q := models.MarketQuote{Up: 0.5, Down: 0.5}
	rem := 30
	r := m.Evaluate(ramp(40, 100, 1), q, &rem)
	if r.Direction != models.DirectionUp {
		t.Fatalf("expected Up, got %+v", r)
	}
	if r.Edge <= 0 || !r.ShouldTrade {
		t.Fatalf("expected positive tradable edge, got %+v", r)
	}
	if r.Confidence < 0.5 || r.Confidence > 0.9 {
		t.Fatalf("confidence out of range: %v", r.Confidence)
	}
	if !strings.HasPrefix(r.Reason, "Direction: Up | Model Prob: ") || !strings.Contains(r.Reason, "Regime: TREND_UP") {
		t.Fatalf("unexpected reason %q", r.Reason)
	}
	checkEdgeInvariant(t, r, q)
}

func TestTADowntrendRecommendsDown(t *testing.T) {
	m := newTA(t)
	q := models.MarketQuote{Up: 0.5, Down: 0.5}
	r := m.Evaluate(ramp(40, 200, -1), q, nil)
	if r.Direction != models.DirectionDown || !r.ShouldTrade {
		t.Fatalf("expected tradable Down, got %+v", r)
	}
	checkEdgeInvariant(t, r, q)
}

func TestTAEdgeBelowThreshold(t *testing.T) {
	m := newTA(t)
	q := models.MarketQuote{Up: 0.6, Down: 0.4}
	r := m.Evaluate(ramp(40, 100, 1), q, nil)
	if r.Direction != models.DirectionUp || r.ShouldTrade {
		t.Fatalf("expected Up without trade, got %+v", r)
	}
	if !strings.Contains(r.Reason, "below threshold 5.0%") {
		t.Fatalf("missing threshold reason: %q", r.Reason)
	}
	checkEdgeInvariant(t, r, q)
}

func TestTAWeakConfluence(t *testing.T) {
	cfg := DefaultTAConfig()
	cfg.Weights = Weights{RSI: 1}
	m := newTA(t, WithTAConfig(cfg))
	r := m.Evaluate(zigzag(40), models.MarketQuote{Up: 0.5, Down: 0.5}, nil)
	if r.Direction != models.DirectionNone || r.ShouldTrade {
		t.Fatalf("expected no direction, got %+v", r)
	}
	if !strings.HasPrefix(r.Reason, "No clear signal: ") || !strings.Contains(r.Reason, "Confluence too weak") {
		t.Fatalf("unexpected reason %q", r.Reason)
	}
}

func TestTASignals(t *testing.T) {
	m := newTA(t)
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		snap TASnapshot
		want TASignals
	}{
		{"oversold", TASnapshot{RSI: f(20)}, TASignals{RSI: 1.0 / 3}},
		{"overbought", TASnapshot{RSI: f(80)}, TASignals{RSI: -1.0 / 3}},
		{"neutral rsi", TASnapshot{RSI: f(60)}, TASignals{RSI: 0.03}},
		{"macd zero line", TASnapshot{MACD: &models.MACDResult{Line: 0, Signal: -0.2, Histogram: 0.2}}, TASignals{MACD: 0.4}},
		{"macd capped", TASnapshot{MACD: &models.MACDResult{Line: -1, Signal: 1, Histogram: -2}}, TASignals{MACD: -0.8}},
		{"vwap clamp", TASnapshot{VWAP: f(100), Price: 120}, TASignals{VWAP: 1}},
		{"vwap small", TASnapshot{VWAP: f(100), Price: 101}, TASignals{VWAP: 0.1}},
		{"ha down", TASnapshot{HATrend: models.HATrend{Direction: models.TrendDown, Strength: 2.0 / 3}}, TASignals{HeikenAshi: -2.0 / 3}},
		{"trend down", TASnapshot{Regime: models.RegimeTrendDown}, TASignals{Regime: -0.7}},
		{"range", TASnapshot{Regime: models.RegimeRange}, TASignals{}},
	}
	near := func(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
	for _, tt := range tests {
		got := m.Signals(tt.snap)
		if !near(got.RSI, tt.want.RSI) || !near(got.MACD, tt.want.MACD) || !near(got.VWAP, tt.want.VWAP) ||
			!near(got.HeikenAshi, tt.want.HeikenAshi) || !near(got.Regime, tt.want.Regime) {
			t.Errorf("%s: got %+v want %+v", tt.name, got, tt.want)
		}
	}
}

func TestTAChopHalvesConfidence(t *testing.T) {
	m := newTA(t)
	dir, prob, reasons := m.probability(TASignals{HeikenAshi: 1}, TASnapshot{Regime: models.RegimeChop})
	if dir != models.DirectionUp {
		t.Fatalf("expected Up, got %q", dir)
	}
	// composite 0.25 -> raw 0.6 -> halved excess 0.55
	if math.Abs(prob-0.55) > 1e-9 {
		t.Fatalf("expected 0.55, got %v", prob)
	}
	if reasons[len(reasons)-1] != "Reduced confidence due to choppy regime" {
		t.Fatalf("missing chop reason: %v", reasons)
	}
}

func TestTAProbabilityCapped(t *testing.T) {
	m := newTA(t)
	_, prob, _ := m.probability(TASignals{RSI: 1, MACD: 1, VWAP: 1, HeikenAshi: 1, Regime: 1}, TASnapshot{Regime: models.RegimeTrendUp})
	if math.Abs(prob-0.9) > 1e-9 {
		t.Fatalf("expected cap at 0.9, got %v", prob)
	}
}

func TestBaselineModel(t *testing.T) {
	m, err := NewBaselineModel(WithClock(clock))
	if err != nil {
		t.Fatalf("new baseline: %v", err)
	}
	tests := []struct {
		q    models.MarketQuote
		dir  models.Direction
		conf float64
	}{
		{models.MarketQuote{Up: 0.55, Down: 0.45}, models.DirectionUp, 0.55},
		{models.MarketQuote{Up: 0.3, Down: 0.7}, models.DirectionDown, 0.7},
		{models.MarketQuote{Up: 0.5, Down: 0.5}, models.DirectionUp, 0.5},
	}
	for _, tt := range tests {
		r := m.Evaluate(nil, tt.q, nil)
		if r.Direction != tt.dir || r.Confidence != tt.conf || r.Edge != 0 || r.ShouldTrade {
			t.Errorf("quote %+v: unexpected %+v", tt.q, r)
		}
	}
	if r := m.Evaluate(nil, models.MarketQuote{Up: 2}, nil); r.Reason != "Invalid market prices" {
		t.Fatalf("unexpected %+v", r)
	}
	r := m.Evaluate(nil, models.MarketQuote{Up: 0.62, Down: 0.38}, nil)
	if r.Reason != "Baseline: agrees with market at 62.0% (edge = 0)" {
		t.Fatalf("unexpected reason %q", r.Reason)
	}
}

func TestRandomModelNeverTrades(t *testing.T) {
	m, err := NewRandomModel(rand.New(rand.NewSource(42)), WithClock(clock))
	if err != nil {
		t.Fatalf("new random: %v", err)
	}
	q := models.MarketQuote{Up: 0.1, Down: 0.1}
	for i := 0; i < 200; i++ {
		r := m.Evaluate(nil, q, nil)
		if r.ShouldTrade {
			t.Fatalf("random model must never trade: %+v", r)
		}
		if r.Confidence < 0.5 || r.Confidence > 0.9 {
			t.Fatalf("confidence out of range: %v", r.Confidence)
		}
		checkEdgeInvariant(t, r, q)
	}
}

func TestRandomModelSeeded(t *testing.T) {
	a, _ := NewRandomModel(rand.New(rand.NewSource(7)), WithClock(clock))
	b, _ := NewRandomModel(rand.New(rand.NewSource(7)), WithClock(clock))
	q := models.MarketQuote{Up: 0.5, Down: 0.5}
	for i := 0; i < 10; i++ {
		ra, rb := a.Evaluate(nil, q, nil), b.Evaluate(nil, q, nil)
		if ra != rb {
			t.Fatalf("same seed diverged: %+v vs %+v", ra, rb)
		}
	}
}
