package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Standard timeframe strings mapped to minutes.
// 1M and 1y are 30-day and 365-day approximations.
var standardTimeframes = map[string]int64{
	"1m":  1,
	"3m":  3,
	"5m":  5,
	"15m": 15,
	"30m": 30,
	"1h":  60,
	"2h":  120,
	"4h":  240,
	"6h":  360,
	"8h":  480,
	"12h": 720,
	"1d":  1440,
	"3d":  4320,
	"1w":  10080,
	"1M":  43200,
	"1y":  525600,
}

var unitMinutes = map[string]int64{
	"m": 1,
	"h": 60,
	"d": 1440,
	"w": 10080,
	"M": 43200,
	"y": 525600,
}

// ParseTimeframeToMinutes converts a timeframe string like "1m", "4h", "1d",
// "1w", "1M" or "1y" to minutes. A bare number is treated as minutes.
func ParseTimeframeToMinutes(timeframe string) (int64, error) {
	if timeframe == "" {
		return 0, fmt.Errorf("timeframe cannot be empty")
	}

	if minutes, ok := standardTimeframes[timeframe]; ok {
		return minutes, nil
	}

	// Generic N+unit form, e.g. "45m", "2d"
	if len(timeframe) >= 2 {
		unit := timeframe[len(timeframe)-1:]
		if factor, ok := unitMinutes[unit]; ok {
			amount, err := strconv.ParseInt(strings.TrimSpace(timeframe[:len(timeframe)-1]), 10, 64)
			if err == nil && amount > 0 {
				return amount * factor, nil
			}
		}
	}

	// Bare number means minutes
	if amount, err := strconv.ParseInt(timeframe, 10, 64); err == nil && amount > 0 {
		return amount, nil
	}

	return 0, fmt.Errorf("cannot parse timeframe: %s", timeframe)
}

// ParseTimeframeToSeconds converts a timeframe string to seconds
func ParseTimeframeToSeconds(timeframe string) (int64, error) {
	minutes, err := ParseTimeframeToMinutes(timeframe)
	if err != nil {
		return 0, err
	}
	return minutes * 60, nil
}

// ParseTimeframeToMilliseconds converts a timeframe string to milliseconds
func ParseTimeframeToMilliseconds(timeframe string) (int64, error) {
	minutes, err := ParseTimeframeToMinutes(timeframe)
	if err != nil {
		return 0, err
	}
	return minutes * 60 * 1000, nil
}

// RoundTimeframeDown rounds a millisecond timestamp down to the start of its
// timeframe period
func RoundTimeframeDown(timeframe string, timestampMs int64) (int64, error) {
	tfMs, err := ParseTimeframeToMilliseconds(timeframe)
	if err != nil {
		return 0, err
	}
	return timestampMs - timestampMs%tfMs, nil
}

// RoundTimeframeUp rounds a millisecond timestamp up to the start of the next
// timeframe period. A timestamp already on a boundary still moves forward.
func RoundTimeframeUp(timeframe string, timestampMs int64) (int64, error) {
	tfMs, err := ParseTimeframeToMilliseconds(timeframe)
	if err != nil {
		return 0, err
	}
	return timestampMs - timestampMs%tfMs + tfMs, nil
}

// PrevBoundaryMs returns the start of the current period for the given
// timeframe, in milliseconds UTC. Weekly periods start on Monday 00:00 UTC,
// which the plain modulo math does not produce (the epoch fell on a Thursday).
func PrevBoundaryMs(timeframe string, at time.Time) (int64, error) {
	at = at.UTC()
	if timeframe == "1w" {
		weekday := int(at.Weekday()+6) % 7 // Monday = 0
		monday := at.AddDate(0, 0, -weekday)
		start := time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
		return start.UnixMilli(), nil
	}
	return RoundTimeframeDown(timeframe, at.UnixMilli())
}

// NextBoundaryMs returns the start of the next period for the given timeframe,
// in milliseconds UTC
func NextBoundaryMs(timeframe string, at time.Time) (int64, error) {
	at = at.UTC()
	if timeframe == "1w" {
		weekday := int(at.Weekday()+6) % 7
		nextMonday := at.AddDate(0, 0, 7-weekday)
		start := time.Date(nextMonday.Year(), nextMonday.Month(), nextMonday.Day(), 0, 0, 0, 0, time.UTC)
		return start.UnixMilli(), nil
	}
	return RoundTimeframeUp(timeframe, at.UnixMilli())
}

// FormatSize formats a byte count into a readable string
func FormatSize(sizeBytes int64) string {
	if sizeBytes <= 0 {
		return "0 B"
	}
	switch {
	case sizeBytes < 1024:
		return fmt.Sprintf("%d B", sizeBytes)
	case sizeBytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(sizeBytes)/1024)
	case sizeBytes < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(sizeBytes)/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB", float64(sizeBytes)/(1024*1024*1024))
	}
}
