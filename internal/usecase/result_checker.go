package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	applogger "PolyEdge/pkg/logger"
	"PolyEdge/pkg/metrics"
)

// ResultChecker settles pending trades once their market outcome is known.
// Settlement happens at most once per trade.
type ResultChecker struct {
	store   domrepo.TradeStore
	pub     domrepo.EventPublisher
	metrics domrepo.Metrics
	logger  *applogger.Logger
	now     func() time.Time
}

// NewResultChecker wires a checker. pub may be nil.
func NewResultChecker(store domrepo.TradeStore, pub domrepo.EventPublisher, m domrepo.Metrics, l *applogger.Logger) *ResultChecker {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &ResultChecker{
		store:   store,
		pub:     pub,
		metrics: m,
		logger:  l,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Settle computes the settlement of t against actual. A win pays
// stake*(1/entry-1) and exits at 1; a loss loses the stake and exits at 0.
// A win with no positive entry price books zero PnL.
func Settle(t *models.TradeRecord, actual models.Direction, now time.Time) models.Settlement {
	s := models.Settlement{TradeID: t.ID, ResolvedAt: now}
	if t.Direction == actual {
		s.Outcome = models.OutcomeWin
		s.ExitPrice = 1
		if t.EntryPrice > 0 {
			s.PnL = t.Stake * (1/t.EntryPrice - 1)
		}
		return s
	}
	s.Outcome = models.OutcomeLoss
	s.ExitPrice = 0
	s.PnL = -t.Stake
	return s
}

// CheckAndUpdate settles trade against actual and writes the result back
// onto trade. A nil trade, an empty outcome or an already-settled trade is a
// no-op returning nil.
func (c *ResultChecker) CheckAndUpdate(ctx context.Context, trade *models.TradeRecord, actual models.Direction) (*models.Settlement, error) {
	if trade == nil || !actual.Valid() {
		return nil, nil
	}
	if trade.Settled() {
		c.logger.Debug("trade already settled", applogger.Int64("trade_id", trade.ID))
		return nil, nil
	}

	s := Settle(trade, actual, c.now())
	if err := c.store.Settle(ctx, s); err != nil {
		if errors.Is(err, domrepo.ErrAlreadySettled) {
			c.logger.Debug("trade settled concurrently", applogger.Int64("trade_id", trade.ID))
			return nil, nil
		}
		c.metrics.RecordError("trade_settle")
		return nil, fmt.Errorf("settle trade %d: %w", trade.ID, err)
	}

	outcome := s.Outcome
	pnl, exit, resolved := s.PnL, s.ExitPrice, s.ResolvedAt
	trade.Outcome = &outcome
	trade.PnL = &pnl
	trade.ExitPrice = &exit
	trade.ResolvedAt = &resolved

	c.metrics.RecordSettlement(trade.ModelName, string(outcome), pnl)
	c.logger.Info("paper trade settled",
		applogger.Int64("trade_id", trade.ID),
		applogger.String("market_id", trade.MarketID),
		applogger.String("outcome", string(outcome)),
		applogger.Float64("pnl", pnl),
	)

	if c.pub != nil {
		ev := models.TradeEvent{Type: models.TradeEventSettled, Trade: trade, Timestamp: resolved}
		if err := c.pub.PublishTradeEvent(ctx, ev); err != nil {
			c.metrics.RecordError("trade_event_publish")
			c.logger.Warn("settlement event publish failed", applogger.Error(err))
		}
	}
	return &s, nil
}
