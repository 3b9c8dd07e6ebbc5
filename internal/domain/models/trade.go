package models

import "time"

// TradeOutcome is the settled result of a paper trade.
type TradeOutcome string

const (
	OutcomeWin  TradeOutcome = "win"
	OutcomeLoss TradeOutcome = "loss"
)

// TradeRecord is a persisted paper trade. Outcome, PnL, ExitPrice and
// ResolvedAt stay nil until the trade is settled.
type TradeRecord struct {
	ID              int64         `json:"id"`
	MarketID        string        `json:"market_id"`
	ModelName       string        `json:"model_name"`
	Direction       Direction     `json:"direction"`
	EntryPrice      float64       `json:"entry_price"`
	Shares          float64       `json:"shares"`
	Stake           float64       `json:"stake"`
	ModelConfidence float64       `json:"model_confidence"`
	ModelEdge       float64       `json:"model_edge"`
	IndicatorsJSON  *string       `json:"indicators_json,omitempty"`
	Outcome         *TradeOutcome `json:"outcome,omitempty"`
	PnL             *float64      `json:"pnl,omitempty"`
	ExitPrice       *float64      `json:"exit_price,omitempty"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Settled reports whether the trade already carries an outcome.
func (t *TradeRecord) Settled() bool { return t.Outcome != nil }

// Settlement is the result of settling one trade against a market outcome.
type Settlement struct {
	TradeID    int64        `json:"trade_id"`
	Outcome    TradeOutcome `json:"outcome"`
	PnL        float64      `json:"pnl"`
	ExitPrice  float64      `json:"exit_price"`
	ResolvedAt time.Time    `json:"resolved_at"`
}

// TradeEvent is published whenever a trade is recorded or settled.
type TradeEvent struct {
	Type      string       `json:"type"`
	Trade     *TradeRecord `json:"trade"`
	Timestamp time.Time    `json:"timestamp"`
}

const (
	TradeEventRecorded = "trade.recorded"
	TradeEventSettled  = "trade.settled"
)
