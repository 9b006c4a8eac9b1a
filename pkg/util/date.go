package util

import (
	"strconv"
	"time"
)

// US equity sessions are quoted in exchange time regardless of where the
// process runs.
var marketTZ = mustLoadMarketTZ()

func mustLoadMarketTZ() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// MarketHour returns the exchange-local hour for a timestamp.
func MarketHour(t time.Time) int {
	return t.In(marketTZ).Hour()
}

// IsTradingDay reports whether the date falls on a weekday in exchange
// time. Holidays are not tracked; the provider returns empty data for
// those and callers already tolerate that.
func IsTradingDay(t time.Time) bool {
	wd := t.In(marketTZ).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// PreviousTradingDay walks back to the most recent weekday before t.
func PreviousTradingDay(t time.Time) time.Time {
	d := t.In(marketTZ).AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// IntervalDuration maps an intraday interval token to its duration.
func IntervalDuration(interval string) (time.Duration, bool) {
	switch interval {
	case "1m":
		return time.Minute, true
	case "5m":
		return 5 * time.Minute, true
	case "1h":
		return time.Hour, true
	default:
		return 0, false
	}
}
