package usecase

import (
	"context"
	"math"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	applogger "PolyEdge/pkg/logger"
	"PolyEdge/pkg/metrics"
)

const (
	ReasonMissingCandles   = "Missing candles"
	ReasonInvalidQuote     = "Invalid market prices"
	ReasonNoRecommendation = "No model recommended a trade"
)

// Decider turns candles and a quote into a sized trade decision.
type Decider interface {
	Decide(ctx context.Context, candles []models.Candle, quote models.MarketQuote, remainingMinutes *int) models.Decision
}

// EngineConfig bounds stake sizing.
type EngineConfig struct {
	MinEdge  float64
	MaxStake float64
	Bankroll float64
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{MinEdge: 0.05, MaxStake: 100, Bankroll: 1000}
}

// DecisionEngine validates inputs, runs the evaluator and sizes the stake
// of the winning recommendation. Every failure is a no-decision value.
type DecisionEngine struct {
	cfg       EngineConfig
	evaluator *StrategyEvaluator
	metrics   domrepo.Metrics
	logger    *applogger.Logger
}

var _ Decider = (*DecisionEngine)(nil)

func NewDecisionEngine(cfg EngineConfig, evaluator *StrategyEvaluator, m domrepo.Metrics, l *applogger.Logger) *DecisionEngine {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &DecisionEngine{cfg: cfg, evaluator: evaluator, metrics: m, logger: l}
}

func (d *DecisionEngine) Config() EngineConfig { return d.cfg }

func (d *DecisionEngine) Evaluator() *StrategyEvaluator { return d.evaluator }

func (d *DecisionEngine) Decide(ctx context.Context, candles []models.Candle, quote models.MarketQuote, remainingMinutes *int) models.Decision {
	start := time.Now()
	defer func() { d.metrics.RecordLatency("decide", time.Since(start).Seconds()) }()

	if len(candles) == 0 {
		d.metrics.RecordDecision(false, "missing_candles")
		return models.NoDecision(ReasonMissingCandles, models.DecisionIndicators{})
	}
	if !quote.Valid() {
		d.metrics.RecordDecision(false, "invalid_quote")
		return models.NoDecision(ReasonInvalidQuote, models.DecisionIndicators{})
	}

	eval := d.evaluator.Evaluate(ctx, candles, quote, remainingMinutes)
	summary := Summarize(eval)
	ind := models.DecisionIndicators{Summary: &summary, Results: eval.Results}

	rec := Recommend(eval)
	if rec == nil {
		d.metrics.RecordDecision(false, "no_recommendation")
		return models.NoDecision(ReasonNoRecommendation, ind)
	}

	entry, _ := quote.Price(rec.Direction)
	stake, ok := d.CalculateStake(rec.Edge, entry)
	if ok {
		d.metrics.RecordDecision(true, "")
	} else {
		d.metrics.RecordDecision(false, "stake_rejected")
	}

	dec := models.Decision{
		ShouldTrade: ok,
		Direction:   rec.Direction,
		Stake:       stake,
		ModelName:   rec.Model,
		Confidence:  rec.Confidence,
		Edge:        rec.Edge,
		Indicators:  ind,
	}
	if finiteFloat(entry) {
		dec.EntryPrice = &entry
	}

	d.logger.Debug("decision",
		applogger.String("model", rec.Model),
		applogger.String("direction", string(rec.Direction)),
		applogger.Float64("edge", rec.Edge),
		applogger.Float64("stake", stake),
		applogger.Bool("should_trade", ok),
	)
	return dec
}

// CalculateStake sizes a bet as bankroll*edge/odds with odds = 1/entry-1,
// capped at MaxStake. It rejects edges below MinEdge and entry prices
// outside (0, 1).
func (d *DecisionEngine) CalculateStake(edge, entryPrice float64) (float64, bool) {
	if !finiteFloat(edge) || edge < d.cfg.MinEdge {
		return 0, false
	}
	if !finiteFloat(entryPrice) || entryPrice <= 0 || entryPrice >= 1 {
		return 0, false
	}
	odds := 1/entryPrice - 1
	if !finiteFloat(odds) || odds <= 0 {
		return 0, false
	}
	stake := d.cfg.Bankroll * edge / odds
	if !finiteFloat(stake) || stake <= 0 {
		return 0, false
	}
	return math.Min(stake, d.cfg.MaxStake), true
}

func finiteFloat(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
