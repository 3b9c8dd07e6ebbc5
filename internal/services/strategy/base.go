// Package strategy contains the trading models evaluated against binary
// Up/Down markets. Each model embeds Base for the shared edge and result
// helpers.
package strategy

import (
	"errors"
	"math"
	"time"

	"PolyEdge/internal/domain/models"
)

const (
	DefaultEdgeThreshold = 0.05
	defaultReason        = "No reason provided"
)

var ErrModelName = errors.New("model requires a name")

// Base holds the behaviour shared by every model.
type Base struct {
	name          string
	edgeThreshold float64
	now           func() time.Time
}

func newBase(name string, edgeThreshold float64, now func() time.Time) (Base, error) {
	if name == "" {
		return Base{}, ErrModelName
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return Base{name: name, edgeThreshold: edgeThreshold, now: now}, nil
}

func (b Base) Name() string { return b.name }

func (b Base) EdgeThreshold() float64 { return b.edgeThreshold }

// CalculateEdge is the model probability minus the market's price for dir.
// dir must be Up or Down.
func (b Base) CalculateEdge(dir models.Direction, prob float64, quote models.MarketQuote) float64 {
	price, ok := quote.Price(dir)
	if !ok {
		return 0
	}
	return prob - price
}

// ShouldMakeTrade reports whether edge strictly exceeds the threshold.
func (b Base) ShouldMakeTrade(edge float64) bool {
	return edge > b.edgeThreshold
}

// Result builds an EvaluationResult, rounding confidence and edge to 3
// decimals.
func (b Base) Result(dir models.Direction, confidence, edge float64, shouldTrade bool, reason string) models.EvaluationResult {
	if reason == "" {
		reason = defaultReason
	}
	return models.EvaluationResult{
		Model:       b.name,
		Direction:   dir,
		Confidence:  round3(confidence),
		Edge:        round3(edge),
		ShouldTrade: shouldTrade,
		Reason:      reason,
		Timestamp:   b.now(),
	}
}

// NoTrade is a result with no direction and zero confidence and edge.
func (b Base) NoTrade(reason string) models.EvaluationResult {
	return b.Result(models.DirectionNone, 0, 0, false, reason)
}

// ValidateCandles checks there are at least min candles and that the first
// one carries a usable close.
func (b Base) ValidateCandles(candles []models.Candle, min int) bool {
	if len(candles) < min || len(candles) == 0 {
		return false
	}
	c := candles[0].Close
	return !math.IsNaN(c) && !math.IsInf(c, 0)
}

// ValidateQuote checks both sides of the quote are within [0, 1].
func (b Base) ValidateQuote(q models.MarketQuote) bool {
	return q.Valid()
}

func round3(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1000) / 1000
}

func pct(v float64) float64 { return v * 100 }
