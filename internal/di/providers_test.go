package di

import (
	"testing"

	"PolyEdge/internal/domain/models"
	"PolyEdge/internal/services/strategy"
	"PolyEdge/pkg/config"
)

func names(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	ms, err := ProvideModels(cfg)
	if err != nil {
		t.Fatalf("provide models: %v", err)
	}
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name()
	}
	return out
}

func TestProvideModelsOrder(t *testing.T) {
	tests := []struct {
		name     string
		baseline bool
		random   bool
		want     []string
	}{
		{"ta only", false, false, []string{strategy.TAModelName}},
		{"with baseline", true, false, []string{strategy.TAModelName, strategy.BaselineModelName}},
		{"with random", false, true, []string{strategy.TAModelName, strategy.RandomModelName}},
		{"all", true, true, []string{strategy.TAModelName, strategy.BaselineModelName, strategy.RandomModelName}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Default()
			if err != nil {
				t.Fatalf("default config: %v", err)
			}
			cfg.Strategy.IncludeBaseline = tt.baseline
			cfg.Strategy.IncludeRandom = tt.random

			got := names(t, cfg)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestProvideModelsDefaults(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	got := names(t, cfg)
	if len(got) != 2 || got[0] != strategy.TAModelName || got[1] != strategy.BaselineModelName {
		t.Fatalf("default registry should be TA then baseline, got %v", got)
	}
}

func TestProvideModelsSeededRandomRepeats(t *testing.T) {
	draw := func() []models.EvaluationResult {
		cfg, err := config.Default()
		if err != nil {
			t.Fatalf("default config: %v", err)
		}
		cfg.Strategy.IncludeBaseline = false
		cfg.Strategy.IncludeRandom = true
		cfg.Strategy.RandomSeed = 42
		ms, err := ProvideModels(cfg)
		if err != nil {
			t.Fatalf("provide models: %v", err)
		}
		r := ms[len(ms)-1]
		q := models.MarketQuote{Up: 0.5, Down: 0.5}
		out := make([]models.EvaluationResult, 5)
		for i := range out {
			out[i] = r.Evaluate(nil, q, nil)
		}
		return out
	}

	a, b := draw(), draw()
	for i := range a {
		if a[i].Direction != b[i].Direction || a[i].Confidence != b[i].Confidence || a[i].Edge != b[i].Edge {
			t.Fatalf("draw %d differs under the same seed: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestProvideModelsRejectsBadWeights(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Strategy.Weights.RSI += 0.5
	if _, err := ProvideModels(cfg); err == nil {
		t.Fatalf("weights not summing to 1 should fail")
	}
}
