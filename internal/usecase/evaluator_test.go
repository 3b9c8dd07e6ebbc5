package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"PolyEdge/internal/domain/models"
	domsvc "PolyEdge/internal/domain/service"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEvaluator(ms ...domsvc.Model) *StrategyEvaluator {
	return NewStrategyEvaluator(ms, WithEvaluatorClock(func() time.Time { return fixedNow }))
}

func TestEvaluateKeepsRegistrationOrder(t *testing.T) {
	e := newTestEvaluator(passing("a"), trading("b", models.DirectionUp, 0.7, 0.2), passing("c"))
	eval := e.Evaluate(context.Background(), testCandles(5), models.MarketQuote{Up: 0.5, Down: 0.5}, ptr(10))

	if len(eval.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(eval.Results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if eval.Results[i].Model != want {
			t.Errorf("result %d: want %s, got %s", i, want, eval.Results[i].Model)
		}
	}
	if eval.CandleCount != 5 || eval.RemainingMinutes == nil || *eval.RemainingMinutes != 10 {
		t.Errorf("unexpected evaluation metadata: %+v", eval)
	}
	if e.Last() != eval {
		t.Errorf("Last should return the cached evaluation")
	}
}

func TestEvaluateRecoversPanickingModel(t *testing.T) {
	e := newTestEvaluator(&stubModel{name: "bad", panics: true}, trading("good", models.DirectionDown, 0.6, 0.1))
	eval := e.Evaluate(context.Background(), testCandles(3), models.MarketQuote{Up: 0.5, Down: 0.5}, nil)

	bad := eval.Results[0]
	if bad.Model != "bad" || bad.ShouldTrade || bad.Confidence != 0 || bad.Direction != models.DirectionNone {
		t.Fatalf("unexpected error result: %+v", bad)
	}
	if !strings.HasPrefix(bad.Reason, "Error: ") || !strings.Contains(bad.Reason, "boom") {
		t.Errorf("reason should carry the failure, got %q", bad.Reason)
	}
	if !eval.Results[1].ShouldTrade {
		t.Errorf("healthy model result lost")
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEvaluator(trading("a", models.DirectionUp, 0.7, 0.2))
	eval := e.Evaluate(ctx, testCandles(3), models.MarketQuote{Up: 0.5, Down: 0.5}, nil)
	if eval.Results[0].ShouldTrade || !strings.HasPrefix(eval.Results[0].Reason, "Error: ") {
		t.Fatalf("cancelled evaluation should yield error results, got %+v", eval.Results[0])
	}
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name    string
		results []models.EvaluationResult
		want    string
	}{
		{"none trading", []models.EvaluationResult{{Model: "a"}, {Model: "b"}}, ""},
		{"largest edge", []models.EvaluationResult{
			{Model: "a", ShouldTrade: true, Edge: 0.1},
			{Model: "b", ShouldTrade: true, Edge: 0.3},
			{Model: "c", ShouldTrade: false, Edge: 0.9},
		}, "b"},
		{"tie goes to first", []models.EvaluationResult{
			{Model: "a", ShouldTrade: true, Edge: 0.2},
			{Model: "b", ShouldTrade: true, Edge: 0.2},
		}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Recommend(&models.Evaluation{Results: tt.results})
			if tt.want == "" {
				if rec != nil {
					t.Fatalf("expected no recommendation, got %+v", rec)
				}
				return
			}
			if rec == nil || rec.Model != tt.want {
				t.Fatalf("want %s, got %+v", tt.want, rec)
			}
		})
	}
	if Recommend(nil) != nil {
		t.Errorf("nil evaluation should have no recommendation")
	}
}

func TestSummarize(t *testing.T) {
	empty := Summarize(nil)
	if empty.Evaluated || empty.Message != "No evaluation performed yet" {
		t.Fatalf("unexpected empty summary: %+v", empty)
	}

	e := newTestEvaluator(trading("ta", models.DirectionUp, 0.622, 0.122), passing("base"))
	e.Evaluate(context.Background(), testCandles(2), models.MarketQuote{Up: 0.5, Down: 0.45}, nil)
	s := e.Summary()

	if !s.Evaluated || s.MarketPrices == nil {
		t.Fatalf("expected evaluated summary: %+v", s)
	}
	if s.MarketPrices.Up != "50.0%" || s.MarketPrices.Down != "45.0%" {
		t.Errorf("unexpected prices: %+v", s.MarketPrices)
	}
	if len(s.Models) != 2 || s.Models[0].Confidence != "62.2%" || s.Models[0].Edge != "12.2%" {
		t.Errorf("unexpected model summaries: %+v", s.Models)
	}
	if s.Recommendation == nil || s.Recommendation.Model != "ta" || s.Recommendation.Edge != "12.2%" {
		t.Errorf("unexpected recommendation: %+v", s.Recommendation)
	}
}

func TestCompareModels(t *testing.T) {
	eval := &models.Evaluation{Results: []models.EvaluationResult{
		{Model: "right", Direction: models.DirectionUp, ShouldTrade: true},
		{Model: "wrong", Direction: models.DirectionDown, ShouldTrade: true},
		{Model: "avoided", Direction: models.DirectionDown},
		{Model: "missed", Direction: models.DirectionUp},
	}}
	got := CompareModels(eval, models.DirectionUp)
	if len(got) != 4 {
		t.Fatalf("expected 4 comparisons, got %d", len(got))
	}
	if !got[0].Correct || !got[0].TradedCorrectly {
		t.Errorf("right: %+v", got[0])
	}
	if got[1].Correct || !got[1].TradedIncorrectly {
		t.Errorf("wrong: %+v", got[1])
	}
	if !got[2].CorrectlyAvoided {
		t.Errorf("avoided: %+v", got[2])
	}
	if got[3].CorrectlyAvoided || got[3].TradedCorrectly || !got[3].Correct {
		t.Errorf("missed: %+v", got[3])
	}
	if CompareModels(eval, models.DirectionNone) != nil {
		t.Errorf("invalid outcome should compare nothing")
	}
}

func TestModelRegistry(t *testing.T) {
	e := newTestEvaluator(passing("a"))
	if err := e.AddModel(passing("a")); err == nil {
		t.Fatalf("duplicate name should be rejected")
	}
	if err := e.AddModel(nil); err == nil {
		t.Fatalf("nil model should be rejected")
	}
	if err := e.AddModel(passing("b")); err != nil {
		t.Fatalf("AddModel: %v", err)
	}
	if names := e.ModelNames(); len(names) != 2 || names[1] != "b" {
		t.Fatalf("unexpected names %v", names)
	}
	if !e.RemoveModel("a") || e.RemoveModel("a") {
		t.Fatalf("RemoveModel should succeed exactly once")
	}
	if _, ok := e.Model("b"); !ok {
		t.Fatalf("model b missing")
	}
}
