package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	applogger "PolyEdge/pkg/logger"
	"PolyEdge/pkg/metrics"
)

// TradeRecorder persists decisions as paper trades.
type TradeRecorder struct {
	store   domrepo.TradeStore
	pub     domrepo.EventPublisher
	metrics domrepo.Metrics
	logger  *applogger.Logger
	now     func() time.Time
}

// NewTradeRecorder wires a recorder. pub may be nil.
func NewTradeRecorder(store domrepo.TradeStore, pub domrepo.EventPublisher, m domrepo.Metrics, l *applogger.Logger) *TradeRecorder {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &TradeRecorder{
		store:   store,
		pub:     pub,
		metrics: m,
		logger:  l,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordTrade stores decision as a pending trade on marketID. Shares are
// stake/entry (0 when there is no positive entry price). The indicators are
// stored as JSON on a best-effort basis.
func (r *TradeRecorder) RecordTrade(ctx context.Context, marketID string, decision *models.Decision) (*models.TradeRecord, error) {
	if marketID == "" || decision == nil {
		return nil, fmt.Errorf("record trade requires market id and decision")
	}
	if !decision.ShouldTrade {
		return nil, fmt.Errorf("record trade: decision is not a trade")
	}
	if !decision.Direction.Valid() {
		return nil, fmt.Errorf("record trade: decision has no direction")
	}

	entry := 0.0
	if decision.EntryPrice != nil {
		entry = *decision.EntryPrice
	}
	shares := 0.0
	if entry > 0 {
		shares = decision.Stake / entry
	}

	t := &models.TradeRecord{
		MarketID:        marketID,
		ModelName:       decision.ModelName,
		Direction:       decision.Direction,
		EntryPrice:      entry,
		Shares:          shares,
		Stake:           decision.Stake,
		ModelConfidence: decision.Confidence,
		ModelEdge:       decision.Edge,
		IndicatorsJSON:  r.indicatorsJSON(decision.Indicators),
		CreatedAt:       r.now(),
	}

	id, err := r.store.Insert(ctx, t)
	if err != nil {
		r.metrics.RecordError("trade_insert")
		return nil, fmt.Errorf("insert trade: %w", err)
	}
	t.ID = id
	r.metrics.RecordTrade(t.ModelName, t.Stake)
	r.logger.Info("paper trade recorded",
		applogger.Int64("trade_id", id),
		applogger.String("market_id", marketID),
		applogger.String("model", t.ModelName),
		applogger.String("direction", string(t.Direction)),
		applogger.Float64("stake", t.Stake),
		applogger.Float64("entry_price", t.EntryPrice),
	)

	r.publish(ctx, models.TradeEventRecorded, t)
	return t, nil
}

func (r *TradeRecorder) indicatorsJSON(ind models.DecisionIndicators) *string {
	b, err := json.Marshal(ind)
	if err != nil {
		r.logger.Warn("indicators not serializable", applogger.Error(err))
		return nil
	}
	s := string(b)
	return &s
}

func (r *TradeRecorder) publish(ctx context.Context, kind string, t *models.TradeRecord) {
	if r.pub == nil {
		return
	}
	if err := r.pub.PublishTradeEvent(ctx, models.TradeEvent{Type: kind, Trade: t, Timestamp: r.now()}); err != nil {
		r.metrics.RecordError("trade_event_publish")
		r.logger.Warn("trade event publish failed", applogger.String("type", kind), applogger.Error(err))
	}
}

func (r *TradeRecorder) PendingTrades(ctx context.Context) ([]*models.TradeRecord, error) {
	return r.store.Pending(ctx)
}

// TradesByModel lists the model's trades, newest first.
func (r *TradeRecorder) TradesByModel(ctx context.Context, model string, limit int) ([]*models.TradeRecord, error) {
	return r.store.ByModel(ctx, model, limit)
}

func (r *TradeRecorder) Trade(ctx context.Context, id int64) (*models.TradeRecord, error) {
	return r.store.Get(ctx, id)
}

func (r *TradeRecorder) HasTradeForMarket(ctx context.Context, marketID string) (bool, error) {
	return r.store.ExistsForMarket(ctx, marketID)
}
