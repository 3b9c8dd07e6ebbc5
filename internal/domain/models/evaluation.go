package models

import "time"

// EvaluationResult is one model's verdict on a market at a point in time.
// When Direction is set, Edge equals Confidence minus the quote for that
// side (both rounded to 3 decimals).
type EvaluationResult struct {
	Model       string    `json:"model"`
	Direction   Direction `json:"direction"`
	Confidence  float64   `json:"confidence"`
	Edge        float64   `json:"edge"`
	ShouldTrade bool      `json:"should_trade"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// Evaluation is a full pass of every registered model over the same inputs.
type Evaluation struct {
	Results          []EvaluationResult `json:"results"`
	Quote            MarketQuote        `json:"market_prices"`
	RemainingMinutes *int               `json:"remaining_minutes"`
	CandleCount      int                `json:"candle_count"`
	Duration         time.Duration      `json:"-"`
	DurationMs       int64              `json:"evaluation_time_ms"`
	Timestamp        time.Time          `json:"timestamp"`
}

// ModelSummary is the display form of one EvaluationResult.
type ModelSummary struct {
	Model       string    `json:"model"`
	Direction   Direction `json:"direction"`
	Confidence  string    `json:"confidence"`
	Edge        string    `json:"edge"`
	ShouldTrade bool      `json:"should_trade"`
}

// RecommendationSummary is the display form of the recommended result.
type RecommendationSummary struct {
	Model     string    `json:"model"`
	Direction Direction `json:"direction"`
	Edge      string    `json:"edge"`
	Reason    string    `json:"reason"`
}

// QuoteSummary is a quote with both sides formatted as percentages.
type QuoteSummary struct {
	Up   string `json:"up"`
	Down string `json:"down"`
}

// EvaluationSummary is a human-readable view of an Evaluation.
type EvaluationSummary struct {
	Evaluated        bool                   `json:"evaluated"`
	Message          string                 `json:"message,omitempty"`
	Timestamp        *time.Time             `json:"timestamp,omitempty"`
	MarketPrices     *QuoteSummary          `json:"market_prices,omitempty"`
	RemainingMinutes *int                   `json:"remaining_minutes,omitempty"`
	CandleCount      int                    `json:"candle_count,omitempty"`
	Models           []ModelSummary         `json:"models,omitempty"`
	Recommendation   *RecommendationSummary `json:"recommendation"`
}

// ModelComparison scores one model's last prediction against the realized
// outcome.
type ModelComparison struct {
	Model             string    `json:"model"`
	Predicted         Direction `json:"predicted"`
	Actual            Direction `json:"actual"`
	Correct           bool      `json:"correct"`
	ShouldTrade       bool      `json:"should_trade"`
	Edge              float64   `json:"edge"`
	TradedCorrectly   bool      `json:"traded_correctly"`
	TradedIncorrectly bool      `json:"traded_incorrectly"`
	CorrectlyAvoided  bool      `json:"correctly_avoided"`
}
