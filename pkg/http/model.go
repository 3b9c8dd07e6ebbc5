package http

import (
	"time"

	"PolyEdge/pkg/util"
)

// APIResponse is the envelope of every JSON response. Status mirrors the
// logical HTTP status; the transport status is 200 except for 429 and 5xx
// raised outside handlers.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ListDataResponse represents a list response.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

// TimeRange is an optional [From, To] filter read from query strings.
type TimeRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// ParseTimeRange reads from/to query values; unparsable values are left nil.
func ParseTimeRange(from, to string) TimeRange {
	var r TimeRange
	if t, ok := util.ParseTime(from); ok {
		r.From = &t
	}
	if t, ok := util.ParseTime(to); ok {
		r.To = &t
	}
	return r
}
