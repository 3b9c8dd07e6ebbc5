package util

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// unix values above this are read as milliseconds.
const unixMillisCutoff = 1e11

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts RFC3339 (with or without fraction), naive ISO timestamps
// in UTC, plain dates and unix seconds or milliseconds.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	if n > unixMillisCutoff {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

// CeilMinutes rounds d up to whole minutes, floored at zero.
func CeilMinutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 0 {
		return 0
	}
	return m
}

// AlignRange widens [from, to] to whole steps: from rounds down, to rounds
// up. A zero step or zero bound is left untouched.
func AlignRange(from, to time.Time, step time.Duration) (time.Time, time.Time) {
	if step <= 0 {
		return from, to
	}
	if !from.IsZero() {
		from = from.Truncate(step)
	}
	if !to.IsZero() {
		if t := to.Truncate(step); !t.Equal(to) {
			to = t.Add(step)
		}
	}
	return from, to
}
