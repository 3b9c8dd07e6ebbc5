package repository

import (
	"context"
	"errors"
	"time"

	"PolyEdge/internal/domain/models"
)

var (
	ErrTradeNotFound   = errors.New("trade not found")
	ErrMarketNotFound  = errors.New("market not found")
	ErrAlreadySettled  = errors.New("trade already settled")
	ErrDuplicateTrade  = errors.New("market already has a trade")
	ErrLockNotAcquired = errors.New("market lock not acquired")
)

// TradeStore persists paper trades.
type TradeStore interface {
	Init(ctx context.Context) error
	Insert(ctx context.Context, t *models.TradeRecord) (int64, error)
	Get(ctx context.Context, id int64) (*models.TradeRecord, error)
	// Settle writes the settlement only if the trade is still unsettled and
	// returns ErrAlreadySettled otherwise.
	Settle(ctx context.Context, s models.Settlement) error
	Pending(ctx context.Context) ([]*models.TradeRecord, error)
	ByModel(ctx context.Context, model string, limit int) ([]*models.TradeRecord, error)
	ExistsForMarket(ctx context.Context, marketID string) (bool, error)
	Close() error
}

// ResolvedTrade pairs a pending trade with its market's realized outcome.
type ResolvedTrade struct {
	Trade   *models.TradeRecord
	Outcome models.Direction
}

// MarketStore reads tracked markets and their quote snapshots.
type MarketStore interface {
	Active(ctx context.Context) ([]*models.Market, error)
	Get(ctx context.Context, id string) (*models.Market, error)
	LatestSnapshot(ctx context.Context, marketID string) (*models.MarketSnapshot, error)
	Resolve(ctx context.Context, marketID string, outcome models.Direction) error
	// PendingResolved lists unsettled trades whose market has resolved.
	PendingResolved(ctx context.Context) ([]ResolvedTrade, error)
}

// MarketWriter registers markets and records quote snapshots.
type MarketWriter interface {
	UpsertMarket(ctx context.Context, m *models.Market) error
	AddSnapshot(ctx context.Context, s *models.MarketSnapshot) error
}

// CandleStore provides read-only access to asset candles.
type CandleStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}

// EvaluationSink archives per-model evaluation results for offline analysis.
type EvaluationSink interface {
	StoreResults(ctx context.Context, marketID string, quote models.MarketQuote, results []models.EvaluationResult) error
}

// EventPublisher broadcasts decisions and trade lifecycle events.
type EventPublisher interface {
	PublishDecision(ctx context.Context, marketID string, d models.Decision) error
	PublishTradeEvent(ctx context.Context, ev models.TradeEvent) error
}

// MarketLock prevents two pollers from trading the same market at once.
type MarketLock interface {
	Acquire(ctx context.Context, marketID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, marketID string) error
}

type Metrics interface {
	RecordEvaluation(model string, shouldTrade bool, seconds float64)
	RecordDecision(shouldTrade bool, reason string)
	RecordTrade(model string, stake float64)
	RecordSettlement(model string, outcome string, pnl float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
