package service

import "PolyEdge/internal/domain/models"

// Model scores a market from its candle history and current quote.
// Implementations must be total: malformed input yields a no-trade result,
// never a panic or error.
type Model interface {
	Name() string
	Evaluate(candles []models.Candle, quote models.MarketQuote, remainingMinutes *int) models.EvaluationResult
}
