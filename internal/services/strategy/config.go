package strategy

import (
	"fmt"
	"math"
	"time"
)

// Weights are the composite weights of the TA model signals. They must sum
// to 1.
type Weights struct {
	RSI        float64 `yaml:"rsi" json:"rsi"`
	MACD       float64 `yaml:"macd" json:"macd"`
	VWAP       float64 `yaml:"vwap" json:"vwap"`
	HeikenAshi float64 `yaml:"heiken_ashi" json:"heiken_ashi"`
	Regime     float64 `yaml:"regime" json:"regime"`
}

func DefaultWeights() Weights {
	return Weights{RSI: 0.20, MACD: 0.25, VWAP: 0.15, HeikenAshi: 0.25, Regime: 0.15}
}

func (w Weights) Sum() float64 {
	return w.RSI + w.MACD + w.VWAP + w.HeikenAshi + w.Regime
}

// TAConfig configures the technical-analysis model.
type TAConfig struct {
	EdgeThreshold float64
	RSIPeriod     int
	RSIOverbought float64
	RSIOversold   float64
	MinCandles    int
	MinConfluence float64
	Weights       Weights
}

func DefaultTAConfig() TAConfig {
	return TAConfig{
		EdgeThreshold: DefaultEdgeThreshold,
		RSIPeriod:     14,
		RSIOverbought: 70,
		RSIOversold:   30,
		MinCandles:    30,
		MinConfluence: 0.15,
		Weights:       DefaultWeights(),
	}
}

func (c TAConfig) Validate() error {
	if c.RSIPeriod <= 0 {
		return fmt.Errorf("rsi period must be positive, got %d", c.RSIPeriod)
	}
	if c.RSIOversold <= 0 || c.RSIOverbought >= 100 || c.RSIOversold >= c.RSIOverbought {
		return fmt.Errorf("rsi bounds must satisfy 0 < oversold < overbought < 100, got %v/%v", c.RSIOversold, c.RSIOverbought)
	}
	if c.MinCandles <= 0 {
		return fmt.Errorf("min candles must be positive, got %d", c.MinCandles)
	}
	if math.Abs(c.Weights.Sum()-1) > 1e-9 {
		return fmt.Errorf("signal weights must sum to 1, got %v", c.Weights.Sum())
	}
	return nil
}

type options struct {
	ta    TAConfig
	edge  float64
	clock func() time.Time
}

// Option configures a model constructor.
type Option func(*options)

// WithTAConfig replaces the TA model configuration.
func WithTAConfig(cfg TAConfig) Option {
	return func(o *options) { o.ta = cfg }
}

// WithEdgeThreshold sets the edge a result must exceed to trade. For the TA
// model it overrides the threshold in its config.
func WithEdgeThreshold(v float64) Option {
	return func(o *options) { o.edge = v }
}

// WithClock sets the clock used to timestamp results.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func buildOptions(opts []Option) options {
	o := options{ta: DefaultTAConfig(), edge: math.NaN()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) edgeThreshold(fallback float64) float64 {
	if math.IsNaN(o.edge) {
		return fallback
	}
	return o.edge
}
