package usecase

import (
	"context"
	"errors"
	"fmt"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	applogger "PolyEdge/pkg/logger"
)

// MarketResolver records market outcomes and settles the trades they
// resolve.
type MarketResolver struct {
	markets domrepo.MarketStore
	checker *ResultChecker
	logger  *applogger.Logger
}

func NewMarketResolver(markets domrepo.MarketStore, checker *ResultChecker, l *applogger.Logger) *MarketResolver {
	if l == nil {
		l = applogger.NewNop()
	}
	return &MarketResolver{markets: markets, checker: checker, logger: l}
}

// ResolveMarket stores the outcome of marketID and settles every pending
// trade whose market has resolved. It returns the number of trades settled.
func (r *MarketResolver) ResolveMarket(ctx context.Context, marketID string, outcome models.Direction) (int, error) {
	if marketID == "" {
		return 0, fmt.Errorf("market id required")
	}
	if !outcome.Valid() {
		return 0, fmt.Errorf("invalid outcome %q", outcome)
	}
	if err := r.markets.Resolve(ctx, marketID, outcome); err != nil {
		return 0, fmt.Errorf("resolve market %s: %w", marketID, err)
	}
	r.logger.Info("market resolved",
		applogger.String("market_id", marketID),
		applogger.String("outcome", string(outcome)),
	)
	return r.SettleResolved(ctx)
}

// SettleResolved settles pending trades on markets that already carry an
// outcome. Individual failures do not stop the sweep; they are joined into
// the returned error.
func (r *MarketResolver) SettleResolved(ctx context.Context) (int, error) {
	pending, err := r.markets.PendingResolved(ctx)
	if err != nil {
		return 0, fmt.Errorf("list resolved pending trades: %w", err)
	}

	settled := 0
	var errs []error
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		s, err := r.checker.CheckAndUpdate(ctx, p.Trade, p.Outcome)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if s != nil {
			settled++
		}
	}
	if settled > 0 {
		r.logger.Info("settled resolved trades", applogger.Int("count", settled))
	}
	return settled, errors.Join(errs...)
}
