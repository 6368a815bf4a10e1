package repository

import "time"

// Timeframe represents metric sampling buckets.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF1h:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Bucket truncates ts to the timeframe boundary.
func Bucket(ts time.Time, tf Timeframe) time.Time {
	switch tf {
	case TF1m:
		return ts.Truncate(time.Minute)
	case TF5m:
		return ts.Truncate(5 * time.Minute)
	case TF15m:
		return ts.Truncate(15 * time.Minute)
	case TF1h:
		return ts.Truncate(time.Hour)
	default:
		return ts.Truncate(time.Minute)
	}
}
