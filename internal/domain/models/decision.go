package models

// DecisionIndicators carries the evidence behind a decision. Reason is set
// only for no-decisions.
type DecisionIndicators struct {
	Reason  string             `json:"reason,omitempty"`
	Summary *EvaluationSummary `json:"summary,omitempty"`
	Results []EvaluationResult `json:"results,omitempty"`
}

// Decision is the final trade/no-trade output for a market. ShouldTrade
// implies Stake > 0 and 0 < EntryPrice < 1.
type Decision struct {
	ShouldTrade bool               `json:"should_trade"`
	Direction   Direction          `json:"direction"`
	Stake       float64            `json:"stake"`
	EntryPrice  *float64           `json:"entry_price"`
	ModelName   string             `json:"model_name,omitempty"`
	Confidence  float64            `json:"confidence"`
	Edge        float64            `json:"edge"`
	Indicators  DecisionIndicators `json:"indicators"`
}

// NoDecision builds a non-trading decision with the given reason.
func NoDecision(reason string, ind DecisionIndicators) Decision {
	ind.Reason = reason
	return Decision{Indicators: ind}
}
