package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Direction is a side of a binary Up/Down market. The zero value means
// "no direction" and serializes as JSON null.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionUp   Direction = "Up"
	DirectionDown Direction = "Down"
)

func (d Direction) Valid() bool { return d == DirectionUp || d == DirectionDown }

func (d Direction) Opposite() Direction {
	switch d {
	case DirectionUp:
		return DirectionDown
	case DirectionDown:
		return DirectionUp
	default:
		return DirectionNone
	}
}

// ParseDirection accepts "Up"/"Down" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return DirectionUp, nil
	case "down":
		return DirectionDown, nil
	default:
		return DirectionNone, fmt.Errorf("invalid direction %q", s)
	}
}

func (d Direction) MarshalJSON() ([]byte, error) {
	if d == DirectionNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

func (d *Direction) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = DirectionNone
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = DirectionNone
		return nil
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarketQuote is the current two-sided price of a binary market, each side
// read as an implied probability. The two sides need not sum to 1.
type MarketQuote struct {
	Up   float64 `json:"up"`
	Down float64 `json:"down"`
}

// Valid reports whether both sides are finite and within [0, 1].
func (q MarketQuote) Valid() bool {
	return unitInterval(q.Up) && unitInterval(q.Down)
}

// Price returns the quote for the given side.
func (q MarketQuote) Price(d Direction) (float64, bool) {
	switch d {
	case DirectionUp:
		return q.Up, true
	case DirectionDown:
		return q.Down, true
	default:
		return 0, false
	}
}

// DeriveQuote builds a quote from optional sides, filling a missing side as
// the complement of the other. It fails when both sides are missing.
func DeriveQuote(up, down *float64) (MarketQuote, bool) {
	switch {
	case up != nil && down != nil:
		return MarketQuote{Up: *up, Down: *down}, true
	case up != nil:
		return MarketQuote{Up: *up, Down: 1 - *up}, true
	case down != nil:
		return MarketQuote{Up: 1 - *down, Down: *down}, true
	default:
		return MarketQuote{}, false
	}
}

func unitInterval(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 1
}

// Market is a tracked binary market. Outcome is nil until it resolves.
type Market struct {
	ID          string     `json:"id"`
	SeriesID    string     `json:"series_id,omitempty"`
	Slug        string     `json:"slug,omitempty"`
	AssetName   string     `json:"asset_name"`
	Timeframe   string     `json:"timeframe,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	InitialUp   *float64   `json:"initial_up,omitempty"`
	InitialDown *float64   `json:"initial_down,omitempty"`
	Outcome     *Direction `json:"outcome,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Resolved reports whether the market has a realized outcome.
func (m *Market) Resolved() bool {
	return m.Outcome != nil && m.Outcome.Valid()
}

// MarketSnapshot is one observed quote of a market.
type MarketSnapshot struct {
	MarketID             string    `json:"market_id"`
	Up                   *float64  `json:"up,omitempty"`
	Down                 *float64  `json:"down,omitempty"`
	TimeRemainingSeconds *int      `json:"time_remaining_seconds,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// MarketResolution announces the realized outcome of a market.
type MarketResolution struct {
	MarketID string    `json:"market_id"`
	Outcome  Direction `json:"outcome"`
}
