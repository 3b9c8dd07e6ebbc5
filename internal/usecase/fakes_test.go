package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
)

type stubModel struct {
	name   string
	result models.EvaluationResult
	panics bool
}

func (m *stubModel) Name() string { return m.name }

func (m *stubModel) Evaluate(_ []models.Candle, _ models.MarketQuote, _ *int) models.EvaluationResult {
	if m.panics {
		panic("boom")
	}
	r := m.result
	r.Model = m.name
	return r
}

func trading(name string, dir models.Direction, conf, edge float64) *stubModel {
	return &stubModel{name: name, result: models.EvaluationResult{
		Direction: dir, Confidence: conf, Edge: edge, ShouldTrade: true, Reason: name + " says trade",
	}}
}

func passing(name string) *stubModel {
	return &stubModel{name: name, result: models.EvaluationResult{Reason: "no edge"}}
}

func testCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		p := 100 + float64(i)
		out[i] = models.Candle{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 10}
	}
	return out
}

type memTradeStore struct {
	mu     sync.Mutex
	next   int64
	trades map[int64]*models.TradeRecord
	err    error
}

func newMemTradeStore() *memTradeStore {
	return &memTradeStore{trades: map[int64]*models.TradeRecord{}}
}

func (s *memTradeStore) Init(context.Context) error { return nil }
func (s *memTradeStore) Close() error               { return nil }

func (s *memTradeStore) Insert(_ context.Context, t *models.TradeRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.next++
	cp := *t
	cp.ID = s.next
	s.trades[cp.ID] = &cp
	return cp.ID, nil
}

func (s *memTradeStore) Get(_ context.Context, id int64) (*models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return nil, domrepo.ErrTradeNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTradeStore) Settle(_ context.Context, st models.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[st.TradeID]
	if !ok {
		return domrepo.ErrTradeNotFound
	}
	if t.Outcome != nil {
		return domrepo.ErrAlreadySettled
	}
	outcome, pnl, exit, at := st.Outcome, st.PnL, st.ExitPrice, st.ResolvedAt
	t.Outcome, t.PnL, t.ExitPrice, t.ResolvedAt = &outcome, &pnl, &exit, &at
	return nil
}

func (s *memTradeStore) Pending(context.Context) ([]*models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TradeRecord
	for _, t := range s.trades {
		if t.Outcome == nil {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memTradeStore) ByModel(_ context.Context, model string, limit int) ([]*models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TradeRecord
	for _, t := range s.trades {
		if t.ModelName == model {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memTradeStore) ExistsForMarket(_ context.Context, marketID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trades {
		if t.MarketID == marketID {
			return true, nil
		}
	}
	return false, nil
}

type memMarketStore struct {
	mu        sync.Mutex
	markets   []*models.Market
	snapshots map[string]*models.MarketSnapshot
	trades    *memTradeStore
}

func (s *memMarketStore) Active(context.Context) ([]*models.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Market
	for _, m := range s.markets {
		if m.Outcome == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarketStore) Get(_ context.Context, id string) (*models.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markets {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, domrepo.ErrMarketNotFound
}

func (s *memMarketStore) LatestSnapshot(_ context.Context, id string) (*models.MarketSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots[id], nil
}

func (s *memMarketStore) Resolve(_ context.Context, id string, outcome models.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markets {
		if m.ID == id {
			o := outcome
			m.Outcome = &o
			return nil
		}
	}
	return domrepo.ErrMarketNotFound
}

func (s *memMarketStore) PendingResolved(ctx context.Context) ([]domrepo.ResolvedTrade, error) {
	pending, err := s.trades.Pending(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domrepo.ResolvedTrade
	for _, t := range pending {
		for _, m := range s.markets {
			if m.ID == t.MarketID && m.Outcome != nil {
				out = append(out, domrepo.ResolvedTrade{Trade: t, Outcome: *m.Outcome})
			}
		}
	}
	return out, nil
}

type memCandleStore struct {
	bySymbol map[string][]models.Candle
	err      error
}

func (s *memCandleStore) GetCandles(_ context.Context, symbol string, from, to time.Time, _ domrepo.Timeframe) ([]models.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Candle
	for _, c := range s.bySymbol[symbol] {
		if !c.Timestamp.Before(from) && !c.Timestamp.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memCandleStore) GetLatestNCandles(_ context.Context, symbol string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	all := s.bySymbol[symbol]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	decisions []string
	events    []models.TradeEvent
	err       error
}

func (p *recordingPublisher) PublishDecision(_ context.Context, marketID string, _ models.Decision) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decisions = append(p.decisions, marketID)
	return p.err
}

func (p *recordingPublisher) PublishTradeEvent(_ context.Context, ev models.TradeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type fixedDecider struct {
	decision models.Decision
	calls    int
}

func (d *fixedDecider) Decide(context.Context, []models.Candle, models.MarketQuote, *int) models.Decision {
	d.calls++
	return d.decision
}

type stubLock struct {
	held     map[string]bool
	released int
}

func (l *stubLock) Acquire(_ context.Context, id string, _ time.Duration) (bool, error) {
	if l.held[id] {
		return false, nil
	}
	return true, nil
}

func (l *stubLock) Release(context.Context, string) error {
	l.released++
	return nil
}

var errStore = errors.New("store down")

func ptr[T any](v T) *T { return &v }
