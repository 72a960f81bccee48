// Package datasource defines the pluggable fetch contract for remote
// time-series providers and its built-in adapters.
package datasource

import (
	"context"
	"strings"

	"marketsync/series"
)

// DataSource is the source adapter contract. Fetch returns rows whose
// timestamps fall in [startMs, endMs); a nil endMs means "now". The trailing
// incomplete period is never returned. An empty result is not an error.
type DataSource interface {
	// Name returns the source name, also used as the storage sub namespace
	Name() string

	// Fetch downloads rows for one symbol at one granularity
	Fetch(ctx context.Context, symbol, timeframe string, startMs int64, endMs *int64) (series.Table, error)

	// CloseConnections releases any live provider connections
	CloseConnections()
}

// Factory builds a source instance from task-level configuration
type Factory func(config map[string]string) (DataSource, error)

// SplitExchangeSymbol parses "exchange:PAIR" identifiers. A bare symbol
// defaults to binance.
func SplitExchangeSymbol(symbol string) (exchange, pair string) {
	if idx := strings.Index(symbol, ":"); idx >= 0 {
		return strings.ToLower(symbol[:idx]), symbol[idx+1:]
	}
	return "binance", symbol
}
