package strategy

import (
	"fmt"

	"PolyEdge/internal/domain/models"
	"PolyEdge/internal/domain/service"
)

const BaselineModelName = "Baseline-Model"

// BaselineModel agrees with the market: it picks the favoured side at the
// market's own price, so its edge is always zero and it never trades.
type BaselineModel struct {
	Base
}

var _ service.Model = (*BaselineModel)(nil)

func NewBaselineModel(opts ...Option) (*BaselineModel, error) {
	o := buildOptions(opts)
	base, err := newBase(BaselineModelName, o.edgeThreshold(DefaultEdgeThreshold), o.clock)
	if err != nil {
		return nil, err
	}
	return &BaselineModel{Base: base}, nil
}

func (m *BaselineModel) Evaluate(_ []models.Candle, quote models.MarketQuote, _ *int) models.EvaluationResult {
	if !m.ValidateQuote(quote) {
		return m.NoTrade("Invalid market prices")
	}

	dir := models.DirectionDown
	if quote.Up >= quote.Down {
		dir = models.DirectionUp
	}
	price, _ := quote.Price(dir)
	edge := m.CalculateEdge(dir, price, quote)

	return m.Result(dir, price, edge, m.ShouldMakeTrade(edge),
		fmt.Sprintf("Baseline: agrees with market at %.1f%% (edge = 0)", pct(price)))
}
