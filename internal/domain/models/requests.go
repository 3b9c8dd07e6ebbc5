package models

import "time"

// Requests for the strategy HTTP endpoints. Defined in domain for reuse.

type EvaluateRequest struct {
	Candles          []Candle `json:"candles" validate:"required,min=1,max=5000,dive"`
	Up               float64  `json:"up" validate:"gte=0,lte=1"`
	Down             float64  `json:"down" validate:"gte=0,lte=1"`
	RemainingMinutes *int     `json:"remaining_minutes" validate:"omitempty,gte=0"`
}

func (r *EvaluateRequest) Quote() MarketQuote { return MarketQuote{Up: r.Up, Down: r.Down} }

type DecideRequest struct {
	EvaluateRequest
	MarketID string `json:"market_id"`
	Record   bool   `json:"record"`
}

type CompareRequest struct {
	Actual string `json:"actual" validate:"required,direction"`
}

type SettleRequest struct {
	ID      int64  `param:"id" validate:"gt=0"`
	Outcome string `json:"outcome" validate:"required,direction"`
}

type ResolveMarketRequest struct {
	MarketID string `param:"id" validate:"required"`
	Outcome  string `json:"outcome" validate:"required,direction"`
}

type TradesQuery struct {
	Model string `query:"model" json:"model" validate:"required"`
	Limit int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type TradeIDRequest struct {
	ID int64 `param:"id" validate:"gt=0"`
}

type CandlesQuery struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	N        int    `query:"n" json:"n" default:"200" validate:"gte=1,lte=5000"`
	Interval string `query:"interval" json:"interval" default:"1m" validate:"oneof=1m 5m"`
	From     string `query:"from" json:"from"`
	To       string `query:"to" json:"to"`
}

type UpsertMarketRequest struct {
	ID          string     `json:"id" validate:"required"`
	SeriesID    string     `json:"series_id"`
	Slug        string     `json:"slug"`
	AssetName   string     `json:"asset_name" validate:"required"`
	Timeframe   string     `json:"timeframe"`
	EndTime     *time.Time `json:"end_time"`
	InitialUp   *float64   `json:"initial_up" validate:"omitempty,gte=0,lte=1"`
	InitialDown *float64   `json:"initial_down" validate:"omitempty,gte=0,lte=1"`
}

func (r *UpsertMarketRequest) Market(now time.Time) *Market {
	return &Market{
		ID:          r.ID,
		SeriesID:    r.SeriesID,
		Slug:        r.Slug,
		AssetName:   r.AssetName,
		Timeframe:   r.Timeframe,
		EndTime:     r.EndTime,
		InitialUp:   r.InitialUp,
		InitialDown: r.InitialDown,
		CreatedAt:   now,
	}
}

type SnapshotRequest struct {
	MarketID             string   `param:"id" validate:"required"`
	Up                   *float64 `json:"up" validate:"omitempty,gte=0,lte=1"`
	Down                 *float64 `json:"down" validate:"omitempty,gte=0,lte=1"`
	TimeRemainingSeconds *int     `json:"time_remaining_seconds" validate:"omitempty,gte=0"`
}
