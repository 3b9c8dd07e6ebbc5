package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
)

type paperFixture struct {
	trades  *memTradeStore
	markets *memMarketStore
	decider *fixedDecider
	pub     *recordingPublisher
	trader  *PaperTrader
}

func newPaperFixture(opts ...PaperTraderOption) *paperFixture {
	trades := newMemTradeStore()
	end := fixedNow.Add(90 * time.Second)
	markets := &memMarketStore{
		trades: trades,
		markets: []*models.Market{
			{ID: "m1", AssetName: "BTC_15M", EndTime: &end},
			{ID: "m2", AssetName: "DOGE_15M", InitialUp: ptr(0.5)},
			{ID: "m3", AssetName: "ETH_1H"},
		},
		snapshots: map[string]*models.MarketSnapshot{
			"m1": {MarketID: "m1", Up: ptr(0.45)},
		},
	}
	candles := &memCandleStore{bySymbol: map[string][]models.Candle{
		"BTC": testCandles(250),
		"ETH": testCandles(50),
	}}
	decider := &fixedDecider{decision: *upDecision(10, 0.45)}
	pub := &recordingPublisher{}

	cfg := DefaultPaperTraderConfig()
	cfg.Markets = []MarketSpec{
		{Name: "BTC_15M", CandleInterval: domrepo.TF1m},
		{Name: "ETH_1H", CandleInterval: domrepo.TF5m},
	}
	rec := NewTradeRecorder(trades, nil, nil, nil)
	resolver := NewMarketResolver(markets, NewResultChecker(trades, nil, nil, nil), nil)
	opts = append([]PaperTraderOption{
		WithDecisionPublisher(pub),
		WithPaperTraderClock(func() time.Time { return fixedNow }),
	}, opts...)
	trader := NewPaperTrader(cfg, markets, candles, decider, rec, resolver, opts...)
	return &paperFixture{trades: trades, markets: markets, decider: decider, pub: pub, trader: trader}
}

func TestPaperTraderPoll(t *testing.T) {
	f := newPaperFixture()
	ctx := context.Background()

	stats := f.trader.Poll(ctx)
	if stats.Markets != 3 || stats.Trades != 1 || stats.Decisions != 1 {
		t.Fatalf("unexpected first poll stats: %+v", stats)
	}
	if f.decider.calls != 1 {
		t.Fatalf("only m1 has candles, prices and a market mapping; decider called %d times", f.decider.calls)
	}
	if len(f.pub.decisions) != 1 || f.pub.decisions[0] != "m1" {
		t.Fatalf("expected m1 decision to be published, got %v", f.pub.decisions)
	}

	stats = f.trader.Poll(ctx)
	if stats.Trades != 0 {
		t.Fatalf("a market is traded at most once, got %+v", stats)
	}
	pending, _ := f.trades.Pending(ctx)
	if len(pending) != 1 || pending[0].MarketID != "m1" {
		t.Fatalf("unexpected pending trades %+v", pending)
	}

	if err := f.markets.Resolve(ctx, "m1", models.DirectionUp); err != nil {
		t.Fatal(err)
	}
	stats = f.trader.Poll(ctx)
	if stats.Settled != 1 || stats.Markets != 2 {
		t.Fatalf("expected settlement on resolved market, got %+v", stats)
	}
	tr, _ := f.trades.Get(ctx, pending[0].ID)
	if tr.Outcome == nil || *tr.Outcome != models.OutcomeWin {
		t.Fatalf("trade not settled as win: %+v", tr)
	}
}

func TestPaperTraderRespectsMarketLock(t *testing.T) {
	lock := &stubLock{held: map[string]bool{"m1": true}}
	f := newPaperFixture(WithMarketLock(lock))
	stats := f.trader.Poll(context.Background())
	if stats.Trades != 0 {
		t.Fatalf("locked market must not trade: %+v", stats)
	}

	lock.held = nil
	stats = f.trader.Poll(context.Background())
	if stats.Trades != 1 || lock.released != 1 {
		t.Fatalf("expected one trade and one release, got %+v released=%d", stats, lock.released)
	}
}

func TestPaperTraderSkipsNonTradingDecision(t *testing.T) {
	f := newPaperFixture()
	f.decider.decision = models.NoDecision(ReasonNoRecommendation, models.DecisionIndicators{})
	stats := f.trader.Poll(context.Background())
	if stats.Trades != 0 || stats.Decisions != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestMarketQuoteFor(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name   string
		market *models.Market
		snap   *models.MarketSnapshot
		want   models.MarketQuote
		ok     bool
	}{
		{"snapshot both", &models.Market{}, &models.MarketSnapshot{Up: ptr(0.4), Down: ptr(0.58)}, models.MarketQuote{Up: 0.4, Down: 0.58}, true},
		{"snapshot up only", &models.Market{}, &models.MarketSnapshot{Up: ptr(0.25)}, models.MarketQuote{Up: 0.25, Down: 0.75}, true},
		{"fallback initial", &models.Market{InitialUp: ptr(0.5), InitialDown: ptr(0.5)}, nil, models.MarketQuote{Up: 0.5, Down: 0.5}, true},
		{"nan snapshot falls back", &models.Market{InitialDown: ptr(0.25)}, &models.MarketSnapshot{Up: &nan}, models.MarketQuote{Up: 0.75, Down: 0.25}, true},
		{"nothing", &models.Market{}, nil, models.MarketQuote{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MarketQuoteFor(tt.market, tt.snap)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("MarketQuoteFor = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRemainingMinutes(t *testing.T) {
	end := fixedNow.Add(61 * time.Second)
	past := fixedNow.Add(-time.Hour)
	tests := []struct {
		name   string
		market *models.Market
		snap   *models.MarketSnapshot
		want   *int
	}{
		{"snapshot rounds up", &models.Market{EndTime: &end}, &models.MarketSnapshot{TimeRemainingSeconds: ptr(125)}, ptr(3)},
		{"snapshot negative clamps", &models.Market{}, &models.MarketSnapshot{TimeRemainingSeconds: ptr(-30)}, ptr(0)},
		{"end time", &models.Market{EndTime: &end}, nil, ptr(2)},
		{"ended", &models.Market{EndTime: &past}, &models.MarketSnapshot{}, ptr(0)},
		{"unknown", &models.Market{}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RemainingMinutes(tt.market, tt.snap, fixedNow)
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Fatalf("RemainingMinutes = %v, want %v", got, tt.want)
			}
		})
	}
}
