package timeutil

import (
	"fmt"
	"log"
	"time"
)

// Timestamps below minValidMs or above maxValidMs are considered corrupt and
// clamped during validation. 1e12 is roughly 2001-09, 3e12 roughly 2065-01.
const (
	minValidMs = int64(1e12)
	maxValidMs = int64(3e12)

	// defaultStartMs is 2022-01-01 00:00:00 UTC, used when a start timestamp
	// fails validation
	defaultStartMs = int64(1640995200000)
)

// TimeRange is a half-open target range in milliseconds UTC. A nil EndMs means
// the range is open-ended and the effective end is "now" at evaluation time.
type TimeRange struct {
	StartMs int64
	EndMs   *int64
}

// NewTimeRange builds a validated TimeRange. Out-of-range timestamps are
// clamped (start to 2022-01-01, end to now) and swapped if start > end.
func NewTimeRange(startMs int64, endMs *int64) TimeRange {
	tr := TimeRange{StartMs: startMs, EndMs: endMs}
	tr.validate()
	return tr
}

func (tr *TimeRange) validate() {
	if tr.StartMs < minValidMs || tr.StartMs > maxValidMs {
		log.Printf("⚠️ Start time %d out of valid range, resetting to 2022-01-01", tr.StartMs)
		tr.StartMs = defaultStartMs
	}
	if tr.EndMs != nil && (*tr.EndMs < minValidMs || *tr.EndMs > maxValidMs) {
		log.Printf("⚠️ End time %d out of valid range, resetting to now", *tr.EndMs)
		now := time.Now().UnixMilli()
		tr.EndMs = &now
	}
	if tr.EndMs != nil && tr.StartMs > *tr.EndMs {
		log.Printf("⚠️ Start time %d after end time %d, swapping", tr.StartMs, *tr.EndMs)
		tr.StartMs, *tr.EndMs = *tr.EndMs, tr.StartMs
	}
}

// ParseTimeRange parses a range expression of the form
// "YYYYMMDD[_HHMMSS]-[YYYYMMDD[_HHMMSS]]", e.g. "20230101-20230630",
// "20230101-", "-20230630" or "20230101_000000-20230630_235959".
// An empty start defaults to 20240101_000000; an empty end leaves the range
// open-ended.
func ParseTimeRange(timerangeStr string) (TimeRange, error) {
	var zero TimeRange
	sep := -1
	for i, c := range timerangeStr {
		if c == '-' {
			sep = i
			break
		}
	}
	if timerangeStr == "" || sep < 0 {
		return zero, fmt.Errorf("invalid timerange format: %q, expected 'YYYYMMDD-YYYYMMDD' or 'YYYYMMDD_HHMMSS-YYYYMMDD_HHMMSS'", timerangeStr)
	}

	startStr := timerangeStr[:sep]
	endStr := timerangeStr[sep+1:]

	if startStr == "" {
		startStr = "20240101_000000"
	} else if len(startStr) == 8 {
		startStr += "_000000"
	}
	startT, err := time.ParseInLocation("20060102_150405", startStr, time.UTC)
	if err != nil {
		return zero, fmt.Errorf("invalid start time in timerange %q: %w", timerangeStr, err)
	}

	var endMs *int64
	if endStr != "" {
		if len(endStr) == 8 {
			endStr += "_235959"
		}
		endT, err := time.ParseInLocation("20060102_150405", endStr, time.UTC)
		if err != nil {
			return zero, fmt.Errorf("invalid end time in timerange %q: %w", timerangeStr, err)
		}
		ms := endT.UnixMilli()
		endMs = &ms
	}

	return NewTimeRange(startT.UnixMilli(), endMs), nil
}

// EffectiveEndMs returns the bounded end if one is set, otherwise now
func (tr TimeRange) EffectiveEndMs() int64 {
	if tr.EndMs != nil {
		return *tr.EndMs
	}
	return time.Now().UnixMilli()
}

// Contains reports whether a millisecond timestamp falls inside the range.
// An open end is treated as unbounded.
func (tr TimeRange) Contains(tsMs int64) bool {
	if tsMs < tr.StartMs {
		return false
	}
	if tr.EndMs != nil && tsMs > *tr.EndMs {
		return false
	}
	return true
}

// AlignToTimeframe snaps both ends of the range down to timeframe boundaries
func (tr TimeRange) AlignToTimeframe(timeframe string) (TimeRange, error) {
	start, err := RoundTimeframeDown(timeframe, tr.StartMs)
	if err != nil {
		return tr, err
	}
	aligned := TimeRange{StartMs: start}
	if tr.EndMs != nil {
		end, err := RoundTimeframeDown(timeframe, *tr.EndMs)
		if err != nil {
			return tr, err
		}
		aligned.EndMs = &end
	}
	return aligned, nil
}

// String returns the canonical "start-[end]" expression at second granularity
func (tr TimeRange) String() string {
	start := time.UnixMilli(tr.StartMs).UTC().Format("20060102_150405")
	if tr.EndMs == nil {
		return start + "-"
	}
	end := time.UnixMilli(*tr.EndMs).UTC().Format("20060102_150405")
	return start + "-" + end
}
