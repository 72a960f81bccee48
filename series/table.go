// Package series holds the in-memory representation of an append-only
// time-series dataset.
package series

import "sort"

// Row is a single observation. TimeMs is milliseconds since the Unix epoch in
// UTC; Values carries the source-defined columns (open, high, close, value...).
type Row struct {
	TimeMs int64              `json:"time" bson:"time"`
	Values map[string]float64 `json:"values" bson:"values"`
}

// Table is an ordered set of rows. A well-formed table is sorted ascending by
// TimeMs with unique time values; Merge and Sort maintain that invariant.
type Table []Row

// Len returns the row count
func (t Table) Len() int {
	return len(t)
}

// IsEmpty reports whether the table has no rows
func (t Table) IsEmpty() bool {
	return len(t) == 0
}

// MinTime returns the smallest timestamp, or 0 for an empty table
func (t Table) MinTime() int64 {
	if len(t) == 0 {
		return 0
	}
	min := t[0].TimeMs
	for _, row := range t[1:] {
		if row.TimeMs < min {
			min = row.TimeMs
		}
	}
	return min
}

// MaxTime returns the largest timestamp, or 0 for an empty table
func (t Table) MaxTime() int64 {
	if len(t) == 0 {
		return 0
	}
	max := t[0].TimeMs
	for _, row := range t[1:] {
		if row.TimeMs > max {
			max = row.TimeMs
		}
	}
	return max
}

// Sort orders rows ascending by time, in place
func (t Table) Sort() {
	sort.Slice(t, func(i, j int) bool {
		return t[i].TimeMs < t[j].TimeMs
	})
}

// Merge combines a cached table with freshly fetched rows. Duplicate
// timestamps keep the fresh row. The result is sorted ascending and safe to
// merge again with the same input (idempotent).
func Merge(cached, fresh Table) Table {
	if len(cached) == 0 && len(fresh) == 0 {
		return Table{}
	}

	byTime := make(map[int64]Row, len(cached)+len(fresh))
	for _, row := range cached {
		byTime[row.TimeMs] = row
	}
	for _, row := range fresh {
		byTime[row.TimeMs] = row
	}

	merged := make(Table, 0, len(byTime))
	for _, row := range byTime {
		merged = append(merged, row)
	}
	merged.Sort()
	return merged
}
