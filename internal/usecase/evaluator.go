package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	domsvc "PolyEdge/internal/domain/service"
	applogger "PolyEdge/pkg/logger"
	"PolyEdge/pkg/metrics"
)

// StrategyEvaluator runs an ordered set of models over the same inputs and
// picks the best trading recommendation. A failing model never aborts the
// pass; it is replaced by a zero-confidence no-trade result.
//
// The last evaluation is cached for the summary endpoints. Evaluate returns
// the evaluation directly, so callers that need consistency should thread
// that value rather than read the cache.
type StrategyEvaluator struct {
	mu      sync.RWMutex
	models  []domsvc.Model
	last    *models.Evaluation
	metrics domrepo.Metrics
	logger  *applogger.Logger
	now     func() time.Time
}

type EvaluatorOption func(*StrategyEvaluator)

func WithEvaluatorMetrics(m domrepo.Metrics) EvaluatorOption {
	return func(e *StrategyEvaluator) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithEvaluatorLogger(l *applogger.Logger) EvaluatorOption {
	return func(e *StrategyEvaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithEvaluatorClock(now func() time.Time) EvaluatorOption {
	return func(e *StrategyEvaluator) {
		if now != nil {
			e.now = now
		}
	}
}

func NewStrategyEvaluator(ms []domsvc.Model, opts ...EvaluatorOption) *StrategyEvaluator {
	e := &StrategyEvaluator{
		metrics: metrics.Nop{},
		logger:  applogger.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, m := range ms {
		if m != nil {
			e.models = append(e.models, m)
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddModel appends a model. Nil models and duplicate names are rejected.
func (e *StrategyEvaluator) AddModel(m domsvc.Model) error {
	if m == nil {
		return fmt.Errorf("model is nil")
	}
	if m.Name() == "" {
		return fmt.Errorf("model requires a name")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.models {
		if existing.Name() == m.Name() {
			return fmt.Errorf("model %q already registered", m.Name())
		}
	}
	e.models = append(e.models, m)
	return nil
}

// RemoveModel removes the named model and reports whether it was present.
func (e *StrategyEvaluator) RemoveModel(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, m := range e.models {
		if m.Name() == name {
			e.models = append(e.models[:i:i], e.models[i+1:]...)
			return true
		}
	}
	return false
}

func (e *StrategyEvaluator) Model(name string) (domsvc.Model, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, m := range e.models {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

// ModelNames lists registered models in registration order.
func (e *StrategyEvaluator) ModelNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.models))
	for i, m := range e.models {
		out[i] = m.Name()
	}
	return out
}

// Evaluate runs every model concurrently. Results keep registration order.
func (e *StrategyEvaluator) Evaluate(ctx context.Context, candles []models.Candle, quote models.MarketQuote, remainingMinutes *int) *models.Evaluation {
	start := time.Now()

	e.mu.RLock()
	ms := make([]domsvc.Model, len(e.models))
	copy(ms, e.models)
	e.mu.RUnlock()

	results := make([]models.EvaluationResult, len(ms))
	var wg sync.WaitGroup
	for i, m := range ms {
		if err := ctx.Err(); err != nil {
			results[i] = e.errorResult(m.Name(), err.Error())
			continue
		}
		wg.Add(1)
		go func(i int, m domsvc.Model) {
			defer wg.Done()
			results[i] = e.runModel(m, candles, quote, remainingMinutes)
		}(i, m)
	}
	wg.Wait()

	elapsed := time.Since(start)
	eval := &models.Evaluation{
		Results:          results,
		Quote:            quote,
		RemainingMinutes: remainingMinutes,
		CandleCount:      len(candles),
		Duration:         elapsed,
		DurationMs:       elapsed.Milliseconds(),
		Timestamp:        e.now(),
	}

	e.mu.Lock()
	e.last = eval
	e.mu.Unlock()

	e.metrics.RecordLatency("evaluate", elapsed.Seconds())
	e.logger.Debug("strategy evaluation complete",
		applogger.Int("models", len(results)),
		applogger.Int("candles", len(candles)),
		applogger.Duration("elapsed_ms", elapsed),
	)
	return eval
}

func (e *StrategyEvaluator) runModel(m domsvc.Model, candles []models.Candle, quote models.MarketQuote, remaining *int) (res models.EvaluationResult) {
	start := time.Now()
	name := m.Name()
	defer func() {
		if r := recover(); r != nil {
			e.metrics.RecordError("model_panic")
			e.logger.Error("model evaluation failed",
				applogger.String("model", name),
				applogger.Any("panic", r),
			)
			res = e.errorResult(name, fmt.Sprint(r))
		}
		e.metrics.RecordEvaluation(name, res.ShouldTrade, time.Since(start).Seconds())
	}()
	res = m.Evaluate(candles, quote, remaining)
	if res.Model == "" {
		res.Model = name
	}
	return res
}

func (e *StrategyEvaluator) errorResult(model, msg string) models.EvaluationResult {
	return models.EvaluationResult{
		Model:     model,
		Direction: models.DirectionNone,
		Reason:    "Error: " + msg,
		Timestamp: e.now(),
	}
}

// Last returns the most recent evaluation or nil.
func (e *StrategyEvaluator) Last() *models.Evaluation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Results returns the results of the most recent evaluation.
func (e *StrategyEvaluator) Results() []models.EvaluationResult {
	if last := e.Last(); last != nil {
		return last.Results
	}
	return nil
}

// Recommendation is Recommend applied to the most recent evaluation.
func (e *StrategyEvaluator) Recommendation() *models.EvaluationResult {
	return Recommend(e.Last())
}

// Summary is Summarize applied to the most recent evaluation.
func (e *StrategyEvaluator) Summary() models.EvaluationSummary {
	return Summarize(e.Last())
}

// CompareModels is CompareModels applied to the most recent evaluation.
func (e *StrategyEvaluator) CompareModels(actual models.Direction) []models.ModelComparison {
	return CompareModels(e.Last(), actual)
}

// Recommend returns the tradable result with the largest edge. Equal edges
// go to the earliest registered model. Nil means no model wants to trade.
func Recommend(eval *models.Evaluation) *models.EvaluationResult {
	if eval == nil {
		return nil
	}
	var best *models.EvaluationResult
	for i := range eval.Results {
		r := &eval.Results[i]
		if !r.ShouldTrade {
			continue
		}
		if best == nil || r.Edge > best.Edge {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// Summarize renders an evaluation for display.
func Summarize(eval *models.Evaluation) models.EvaluationSummary {
	if eval == nil {
		return models.EvaluationSummary{Evaluated: false, Message: "No evaluation performed yet"}
	}
	ts := eval.Timestamp
	sum := models.EvaluationSummary{
		Evaluated: true,
		Timestamp: &ts,
		MarketPrices: &models.QuoteSummary{
			Up:   percent(eval.Quote.Up),
			Down: percent(eval.Quote.Down),
		},
		RemainingMinutes: eval.RemainingMinutes,
		CandleCount:      eval.CandleCount,
		Models:           make([]models.ModelSummary, 0, len(eval.Results)),
	}
	for _, r := range eval.Results {
		sum.Models = append(sum.Models, models.ModelSummary{
			Model:       r.Model,
			Direction:   r.Direction,
			Confidence:  percent(r.Confidence),
			Edge:        percent(r.Edge),
			ShouldTrade: r.ShouldTrade,
		})
	}
	if rec := Recommend(eval); rec != nil {
		sum.Recommendation = &models.RecommendationSummary{
			Model:     rec.Model,
			Direction: rec.Direction,
			Edge:      percent(rec.Edge),
			Reason:    rec.Reason,
		}
	}
	return sum
}

// CompareModels scores each result of eval against the realized outcome.
func CompareModels(eval *models.Evaluation, actual models.Direction) []models.ModelComparison {
	if eval == nil || !actual.Valid() {
		return nil
	}
	out := make([]models.ModelComparison, 0, len(eval.Results))
	for _, r := range eval.Results {
		correct := r.Direction == actual
		out = append(out, models.ModelComparison{
			Model:             r.Model,
			Predicted:         r.Direction,
			Actual:            actual,
			Correct:           correct,
			ShouldTrade:       r.ShouldTrade,
			Edge:              r.Edge,
			TradedCorrectly:   r.ShouldTrade && correct,
			TradedIncorrectly: r.ShouldTrade && !correct,
			CorrectlyAvoided:  !r.ShouldTrade && !correct,
		})
	}
	return out
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
