package strategy

import (
	"fmt"
	"math"
	"strings"

	"PolyEdge/internal/domain/models"
	"PolyEdge/internal/domain/service"
	"PolyEdge/internal/services/indicators"
)

const TAModelName = "TA-Model"

// TAModel scores a market from the confluence of RSI, MACD, VWAP,
// Heiken-Ashi trend and regime signals. Its probability is capped to
// [0.5, 0.9] and halved toward 0.5 in choppy regimes.
type TAModel struct {
	Base
	cfg TAConfig
}

var _ service.Model = (*TAModel)(nil)

func NewTAModel(opts ...Option) (*TAModel, error) {
	o := buildOptions(opts)
	cfg := o.ta
	cfg.EdgeThreshold = o.edgeThreshold(cfg.EdgeThreshold)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ta model config: %w", err)
	}
	base, err := newBase(TAModelName, cfg.EdgeThreshold, o.clock)
	if err != nil {
		return nil, err
	}
	return &TAModel{Base: base, cfg: cfg}, nil
}

func (m *TAModel) Config() TAConfig { return m.cfg }

// TASnapshot holds the indicator values the model scored.
type TASnapshot struct {
	RSI     *float64           `json:"rsi"`
	MACD    *models.MACDResult `json:"macd"`
	VWAP    *float64           `json:"vwap"`
	HATrend models.HATrend     `json:"ha_trend"`
	Regime  models.Regime      `json:"regime"`
	Price   float64            `json:"price"`
}

// TASignals are the per-indicator scores in [-1, 1].
type TASignals struct {
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	VWAP       float64 `json:"vwap"`
	HeikenAshi float64 `json:"heiken_ashi"`
	Regime     float64 `json:"regime"`
}

func (m *TAModel) Evaluate(candles []models.Candle, quote models.MarketQuote, _ *int) models.EvaluationResult {
	if !m.ValidateCandles(candles, m.cfg.MinCandles) {
		return m.NoTrade(fmt.Sprintf("Insufficient candles: need %d, got %d", m.cfg.MinCandles, len(candles)))
	}
	if !m.ValidateQuote(quote) {
		return m.NoTrade("Invalid market prices")
	}

	snap, err := m.Snapshot(candles)
	if err != nil {
		return m.NoTrade(fmt.Sprintf("Failed to calculate indicators: %s", err.Error()))
	}

	sig := m.Signals(snap)
	dir, prob, reasons := m.probability(sig, snap)
	if dir == models.DirectionNone {
		return m.NoTrade("No clear signal: " + strings.Join(reasons, ", "))
	}

	edge := m.CalculateEdge(dir, prob, quote)
	price, _ := quote.Price(dir)
	shouldTrade := m.ShouldMakeTrade(edge)

	parts := []string{
		fmt.Sprintf("Direction: %s", dir),
		fmt.Sprintf("Model Prob: %.1f%%", pct(prob)),
		fmt.Sprintf("Market Price: %.1f%%", pct(price)),
		fmt.Sprintf("Edge: %.1f%%", pct(edge)),
	}
	parts = append(parts, reasons...)
	if !shouldTrade {
		parts = append(parts, fmt.Sprintf("Edge %.1f%% below threshold %.1f%%", pct(edge), pct(m.EdgeThreshold())))
	}

	return m.Result(dir, prob, edge, shouldTrade, strings.Join(parts, " | "))
}

// Snapshot computes the indicators the model scores. Indicators without
// enough history are left nil.
func (m *TAModel) Snapshot(candles []models.Candle) (TASnapshot, error) {
	if len(candles) == 0 {
		return TASnapshot{}, fmt.Errorf("no candles")
	}
	price := candles[len(candles)-1].Close
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return TASnapshot{}, fmt.Errorf("non-finite close price %v", price)
	}

	snap := TASnapshot{Price: price}
	if v, ok := indicators.RSI(candles, m.cfg.RSIPeriod); ok {
		snap.RSI = &v
	}
	if v, ok := indicators.MACD(candles, indicators.DefaultMACDFast, indicators.DefaultMACDSlow, indicators.DefaultMACDSignal); ok {
		snap.MACD = &v
	}
	if v, ok := indicators.VWAP(candles); ok {
		snap.VWAP = &v
	}
	snap.HATrend = indicators.HATrendOf(indicators.HeikenAshi(candles), indicators.DefaultHALookback)
	snap.Regime = indicators.DetectRegime(candles)
	return snap, nil
}

// Signals maps indicator values to scores in [-1, 1]; positive is bullish.
func (m *TAModel) Signals(s TASnapshot) TASignals {
	var sig TASignals

	if s.RSI != nil {
		rsi := *s.RSI
		switch {
		case rsi <= m.cfg.RSIOversold:
			sig.RSI = (m.cfg.RSIOversold - rsi) / m.cfg.RSIOversold
		case rsi >= m.cfg.RSIOverbought:
			sig.RSI = -(rsi - m.cfg.RSIOverbought) / (100 - m.cfg.RSIOverbought)
		default:
			// mild bias, at most +-0.15 inside the neutral band
			sig.RSI = (rsi - 50) / 100 * 0.3
		}
	}

	if s.MACD != nil {
		denom := math.Abs(s.MACD.Line)
		if s.MACD.Line == 0 {
			denom = 1
		}
		scaled := s.MACD.Histogram / denom * 0.5
		if s.MACD.Histogram > 0 {
			sig.MACD = math.Min(0.5, scaled)
		} else {
			sig.MACD = math.Max(-0.5, scaled)
		}
		switch {
		case s.MACD.Line > s.MACD.Signal:
			sig.MACD += 0.3
		case s.MACD.Line < s.MACD.Signal:
			sig.MACD -= 0.3
		}
		sig.MACD = indicators.Clamp(sig.MACD, -1, 1)
	}

	if s.VWAP != nil && *s.VWAP != 0 && s.Price != 0 {
		sig.VWAP = indicators.Clamp((s.Price-*s.VWAP) / *s.VWAP * 10, -1, 1)
	}

	switch s.HATrend.Direction {
	case models.TrendUp:
		sig.HeikenAshi = s.HATrend.Strength
	case models.TrendDown:
		sig.HeikenAshi = -s.HATrend.Strength
	}

	switch s.Regime {
	case models.RegimeTrendUp:
		sig.Regime = 0.7
	case models.RegimeTrendDown:
		sig.Regime = -0.7
	}
	return sig
}

// Composite is the weighted sum of the signals.
func (m *TAModel) Composite(sig TASignals) float64 {
	w := m.cfg.Weights
	return sig.RSI*w.RSI + sig.MACD*w.MACD + sig.VWAP*w.VWAP + sig.HeikenAshi*w.HeikenAshi + sig.Regime*w.Regime
}

func (m *TAModel) probability(sig TASignals, s TASnapshot) (models.Direction, float64, []string) {
	named := []struct {
		name  string
		value float64
	}{
		{"rsi", sig.RSI},
		{"macd", sig.MACD},
		{"vwap", sig.VWAP},
		{"heikenAshi", sig.HeikenAshi},
		{"regime", sig.Regime},
	}

	var reasons []string
	for _, n := range named {
		if math.Abs(n.value) >= 0.3 {
			side := "bearish"
			if n.value > 0 {
				side = "bullish"
			}
			reasons = append(reasons, fmt.Sprintf("%s: %s (%.0f%%)", n.name, side, pct(n.value)))
		}
	}
	if s.RSI != nil {
		reasons = append(reasons, fmt.Sprintf("RSI: %.1f", *s.RSI))
	}
	if s.MACD != nil {
		reasons = append(reasons, fmt.Sprintf("MACD hist: %.5f", s.MACD.Histogram))
	}
	reasons = append(reasons, fmt.Sprintf("Regime: %s", s.Regime))

	composite := m.Composite(sig)
	if math.Abs(composite) < m.cfg.MinConfluence {
		reasons = append(reasons, fmt.Sprintf("Confluence too weak: %.1f%%", pct(composite)))
		return models.DirectionNone, 0.5, reasons
	}

	dir := models.DirectionDown
	if composite > 0 {
		dir = models.DirectionUp
	}

	prob := 0.5 + math.Abs(composite)*0.4
	if s.Regime == models.RegimeChop {
		prob = 0.5 + (prob-0.5)*0.5
		reasons = append(reasons, "Reduced confidence due to choppy regime")
	}
	return dir, indicators.Clamp(prob, 0.5, 0.9), reasons
}
