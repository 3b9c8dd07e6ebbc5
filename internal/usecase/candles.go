package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	"PolyEdge/pkg/util"
)

const maxCandleWindow = 5000

// ErrInvalidCandleQuery marks candle queries rejected before reaching the
// store.
var ErrInvalidCandleQuery = errors.New("invalid candle query")

// CandlesUseCase reads asset candles for the HTTP surface.
type CandlesUseCase struct {
	store domrepo.CandleStore
}

func NewCandlesUseCase(store domrepo.CandleStore) *CandlesUseCase {
	return &CandlesUseCase{store: store}
}

type GetCandlesParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

// GetCandles returns candles in [From, To] when a range is given, otherwise
// the latest Limit candles. Symbols may be market series names.
func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", ErrInvalidCandleQuery)
	}
	symbol := domrepo.NormalizeAssetName(p.Symbol)
	tf := domrepo.NormalizeTimeframe(string(p.Timeframe))
	if p.Limit <= 0 {
		p.Limit = 200
	}
	if p.Limit > maxCandleWindow {
		p.Limit = maxCandleWindow
	}

	var (
		candles []models.Candle
		err     error
	)
	if !p.From.IsZero() || !p.To.IsZero() {
		if p.To.IsZero() {
			p.To = time.Now().UTC()
		}
		if p.From.After(p.To) {
			return nil, fmt.Errorf("%w: from must be <= to", ErrInvalidCandleQuery)
		}
		p.From, p.To = util.AlignRange(p.From, p.To, tf.Duration())
		candles, err = uc.store.GetCandles(ctx, symbol, p.From, p.To, tf)
		if len(candles) > p.Limit {
			candles = candles[len(candles)-p.Limit:]
		}
	} else {
		candles, err = uc.store.GetLatestNCandles(ctx, symbol, p.Limit, tf)
	}
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}

	return &GetCandlesResult{
		Symbol:    symbol,
		Timeframe: string(tf),
		Count:     len(candles),
		Candles:   candles,
	}, nil
}
