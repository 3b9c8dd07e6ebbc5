package usecase

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	applogger "PolyEdge/pkg/logger"
	"PolyEdge/pkg/metrics"
	"PolyEdge/pkg/util"
)

// MarketSpec maps a tracked market series onto the asset candles used to
// evaluate it.
type MarketSpec struct {
	Name           string
	Asset          string
	CandleInterval domrepo.Timeframe
}

type PaperTraderConfig struct {
	PollInterval time.Duration
	CandleLimit  int
	LockTTL      time.Duration
	Markets      []MarketSpec
}

func DefaultPaperTraderConfig() PaperTraderConfig {
	return PaperTraderConfig{
		PollInterval: 60 * time.Second,
		CandleLimit:  200,
		LockTTL:      30 * time.Second,
	}
}

// PollStats summarises one poll pass.
type PollStats struct {
	Markets   int
	Decisions int
	Trades    int
	Skipped   int
	Settled   int
}

// PaperTrader periodically evaluates every active market, records at most
// one paper trade per market and settles trades on resolved markets.
type PaperTrader struct {
	cfg      PaperTraderConfig
	specs    map[string]MarketSpec
	markets  domrepo.MarketStore
	candles  domrepo.CandleStore
	decider  Decider
	recorder *TradeRecorder
	resolver *MarketResolver

	sink    domrepo.EvaluationSink
	pub     domrepo.EventPublisher
	lock    domrepo.MarketLock
	metrics domrepo.Metrics
	logger  *applogger.Logger
	now     func() time.Time

	polling atomic.Bool
}

type PaperTraderOption func(*PaperTrader)

// WithEvaluationSink archives every evaluation pass.
func WithEvaluationSink(s domrepo.EvaluationSink) PaperTraderOption {
	return func(p *PaperTrader) { p.sink = s }
}

// WithDecisionPublisher broadcasts every evaluated decision.
func WithDecisionPublisher(pub domrepo.EventPublisher) PaperTraderOption {
	return func(p *PaperTrader) { p.pub = pub }
}

// WithMarketLock guards trade recording across processes.
func WithMarketLock(l domrepo.MarketLock) PaperTraderOption {
	return func(p *PaperTrader) { p.lock = l }
}

func WithPaperTraderMetrics(m domrepo.Metrics) PaperTraderOption {
	return func(p *PaperTrader) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithPaperTraderLogger(l *applogger.Logger) PaperTraderOption {
	return func(p *PaperTrader) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithPaperTraderClock(now func() time.Time) PaperTraderOption {
	return func(p *PaperTrader) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPaperTrader(
	cfg PaperTraderConfig,
	markets domrepo.MarketStore,
	candles domrepo.CandleStore,
	decider Decider,
	recorder *TradeRecorder,
	resolver *MarketResolver,
	opts ...PaperTraderOption,
) *PaperTrader {
	def := DefaultPaperTraderConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = def.CandleLimit
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	p := &PaperTrader{
		cfg:      cfg,
		specs:    make(map[string]MarketSpec, len(cfg.Markets)),
		markets:  markets,
		candles:  candles,
		decider:  decider,
		recorder: recorder,
		resolver: resolver,
		metrics:  metrics.Nop{},
		logger:   applogger.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, s := range cfg.Markets {
		if s.Asset == "" {
			s.Asset = domrepo.NormalizeAssetName(s.Name)
		}
		p.specs[s.Name] = s
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls immediately and then every PollInterval until ctx is done.
func (p *PaperTrader) Run(ctx context.Context) error {
	p.logger.Info("paper trader started",
		applogger.Duration("poll_interval_ms", p.cfg.PollInterval),
		applogger.Int("markets", len(p.specs)),
	)
	p.Poll(ctx)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("paper trader stopped")
			return nil
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one pass over all active markets. Overlapping calls return
// immediately with empty stats.
func (p *PaperTrader) Poll(ctx context.Context) PollStats {
	var stats PollStats
	if !p.polling.CompareAndSwap(false, true) {
		p.logger.Debug("poll already in progress")
		return stats
	}
	defer p.polling.Store(false)

	start := time.Now()
	defer func() { p.metrics.RecordLatency("paper_poll", time.Since(start).Seconds()) }()

	active, err := p.markets.Active(ctx)
	if err != nil {
		p.metrics.RecordError("poll_markets")
		p.logger.Error("paper trader poll failed", applogger.Error(err))
		return stats
	}
	stats.Markets = len(active)

	for _, m := range active {
		if ctx.Err() != nil {
			break
		}
		traded, evaluated, err := p.processMarket(ctx, m)
		if err != nil {
			p.metrics.RecordError("poll_market")
			p.logger.Error("market processing failed",
				applogger.String("market_id", m.ID),
				applogger.Error(err),
			)
		}
		if evaluated {
			stats.Decisions++
		}
		if traded {
			stats.Trades++
		} else {
			stats.Skipped++
		}
	}

	settled, err := p.resolver.SettleResolved(ctx)
	if err != nil {
		p.logger.Error("settling resolved trades failed", applogger.Error(err))
	}
	stats.Settled = settled

	p.logger.Debug("paper trader poll complete",
		applogger.Int("markets", stats.Markets),
		applogger.Int("trades", stats.Trades),
		applogger.Int("settled", stats.Settled),
	)
	return stats
}

func (p *PaperTrader) processMarket(ctx context.Context, m *models.Market) (traded, evaluated bool, err error) {
	spec, ok := p.specs[m.AssetName]
	if !ok {
		p.logger.Debug("missing candle interval for market",
			applogger.String("market_id", m.ID),
			applogger.String("asset_name", m.AssetName),
		)
		return false, false, nil
	}

	candles, err := p.candles.GetLatestNCandles(ctx, spec.Asset, p.cfg.CandleLimit, spec.CandleInterval)
	if err != nil {
		return false, false, fmt.Errorf("load candles %s/%s: %w", spec.Asset, spec.CandleInterval, err)
	}
	if len(candles) == 0 {
		p.logger.Debug("missing candles for market",
			applogger.String("market_id", m.ID),
			applogger.String("asset", spec.Asset),
			applogger.String("interval", string(spec.CandleInterval)),
		)
		return false, false, nil
	}

	snap, err := p.markets.LatestSnapshot(ctx, m.ID)
	if err != nil {
		return false, false, fmt.Errorf("latest snapshot: %w", err)
	}
	quote, ok := MarketQuoteFor(m, snap)
	if !ok {
		p.logger.Debug("missing market prices for market", applogger.String("market_id", m.ID))
		return false, false, nil
	}
	remaining := RemainingMinutes(m, snap, p.now())

	dec := p.decider.Decide(ctx, candles, quote, remaining)
	p.archive(ctx, m.ID, quote, dec)
	p.logger.Debug("decision evaluated",
		applogger.String("market_id", m.ID),
		applogger.String("asset_name", m.AssetName),
		applogger.Bool("should_trade", dec.ShouldTrade),
		applogger.String("reason", dec.Indicators.Reason),
	)
	if !dec.ShouldTrade {
		return false, true, nil
	}

	if p.lock != nil {
		got, err := p.lock.Acquire(ctx, m.ID, p.cfg.LockTTL)
		if err != nil {
			return false, true, fmt.Errorf("acquire market lock: %w", err)
		}
		if !got {
			p.logger.Info("skipping trade, market locked", applogger.String("market_id", m.ID))
			return false, true, nil
		}
		defer func() {
			if err := p.lock.Release(context.WithoutCancel(ctx), m.ID); err != nil {
				p.logger.Warn("release market lock", applogger.String("market_id", m.ID), applogger.Error(err))
			}
		}()
	}

	exists, err := p.recorder.HasTradeForMarket(ctx, m.ID)
	if err != nil {
		return false, true, fmt.Errorf("check existing trade: %w", err)
	}
	if exists {
		p.logger.Info("skipping trade, already traded market", applogger.String("market_id", m.ID))
		return false, true, nil
	}

	if _, err := p.recorder.RecordTrade(ctx, m.ID, &dec); err != nil {
		return false, true, err
	}
	return true, true, nil
}

func (p *PaperTrader) archive(ctx context.Context, marketID string, quote models.MarketQuote, dec models.Decision) {
	if p.sink != nil && len(dec.Indicators.Results) > 0 {
		if err := p.sink.StoreResults(ctx, marketID, quote, dec.Indicators.Results); err != nil {
			p.metrics.RecordError("evaluation_sink")
			p.logger.Warn("archive evaluation failed", applogger.String("market_id", marketID), applogger.Error(err))
		}
	}
	if p.pub != nil {
		if err := p.pub.PublishDecision(ctx, marketID, dec); err != nil {
			p.metrics.RecordError("decision_publish")
			p.logger.Warn("publish decision failed", applogger.String("market_id", marketID), applogger.Error(err))
		}
	}
}

// MarketQuoteFor reads the quote from the latest snapshot, falling back to
// the market's initial prices per side and deriving a missing side as the
// complement of the other.
func MarketQuoteFor(m *models.Market, snap *models.MarketSnapshot) (models.MarketQuote, bool) {
	var up, down *float64
	if snap != nil {
		up, down = finitePtr(snap.Up), finitePtr(snap.Down)
	}
	if up == nil && m != nil {
		up = finitePtr(m.InitialUp)
	}
	if down == nil && m != nil {
		down = finitePtr(m.InitialDown)
	}
	return models.DeriveQuote(up, down)
}

// RemainingMinutes prefers the snapshot countdown and falls back to the
// market end time. Both round up and never go below zero.
func RemainingMinutes(m *models.Market, snap *models.MarketSnapshot, now time.Time) *int {
	if snap != nil && snap.TimeRemainingSeconds != nil {
		v := util.CeilMinutes(time.Duration(*snap.TimeRemainingSeconds) * time.Second)
		return &v
	}
	if m == nil || m.EndTime == nil {
		return nil
	}
	v := util.CeilMinutes(m.EndTime.Sub(now))
	return &v
}

func finitePtr(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}
