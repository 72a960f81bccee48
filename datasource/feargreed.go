package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"marketsync/series"
)

const fearGreedURL = "https://api.alternative.me/fng/"

// FearGreed fetches the crypto Fear & Greed index from alternative.me.
// Only the "bitcoin_fgi" symbol at "1d" granularity is supported.
type FearGreed struct {
	httpClient *http.Client
	baseURL    string
}

// NewFearGreed creates the index adapter
func NewFearGreed(config map[string]string) (DataSource, error) {
	return &FearGreed{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    fearGreedURL,
	}, nil
}

// Name returns the source name
func (s *FearGreed) Name() string {
	return "FearGreed"
}

type fearGreedResponse struct {
	Data []struct {
		Value     string `json:"value"`
		Timestamp string `json:"timestamp"`
	} `json:"data"`
}

// Fetch downloads daily index values back to startMs. The provider stamps
// each value with the following midnight, so timestamps are shifted back one
// day to align with the other sources.
func (s *FearGreed) Fetch(ctx context.Context, symbol, timeframe string, startMs int64, endMs *int64) (series.Table, error) {
	if symbol != "" && symbol != "bitcoin_fgi" {
		return nil, fmt.Errorf("invalid symbol: %s, expected 'bitcoin_fgi'", symbol)
	}
	if timeframe != "1d" {
		return nil, fmt.Errorf("invalid timeframe: %s, expected '1d'", timeframe)
	}

	untilMs := time.Now().UnixMilli()
	if endMs != nil {
		untilMs = *endMs
	}
	limit := (time.Now().UnixMilli()-startMs)/86400000 + 1

	log.Printf("Fetching %s for symbol %s, timeframe %s, start %d, end %d",
		s.Name(), symbol, timeframe, startMs, untilMs)

	raw, err := httpGetJSON(ctx, s.httpClient, fmt.Sprintf("%s?limit=%d", s.baseURL, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fear & greed index: %w", err)
	}

	var resp fearGreedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse fear & greed response: %w", err)
	}

	var table series.Table
	for _, entry := range resp.Data {
		tsSec, err := strconv.ParseInt(entry.Timestamp, 10, 64)
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(entry.Value, 64)
		if err != nil {
			continue
		}
		ts := (tsSec - 86400) * 1000
		if ts < startMs || ts >= untilMs {
			continue
		}
		table = append(table, series.Row{TimeMs: ts, Values: map[string]float64{"value": value}})
	}
	sort.Slice(table, func(i, j int) bool { return table[i].TimeMs < table[j].TimeMs })

	if table.IsEmpty() {
		log.Printf("⚠️ No new data for %s - %s", symbol, timeframe)
		return series.Table{}, nil
	}
	log.Printf("Fetched %d index values", table.Len())
	return table, nil
}

// CloseConnections closes idle HTTP connections
func (s *FearGreed) CloseConnections() {
	s.httpClient.CloseIdleConnections()
}
