package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"time"

	"marketsync/config"
	"marketsync/series"
)

const fredObservationsURL = "https://api.stlouisfed.org/fred/series/observations"

// FRED observations are published on US Central time days; series timestamps
// are normalized to the UTC instant of Central midnight.
var fredLocation = mustLoadLocation("America/Chicago")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Fred fetches economic time series from the St. Louis Fed FRED API.
// Symbols are FRED series ids such as "EFFR" or "DGS10".
type Fred struct {
	apiKey     string
	httpClient *http.Client
}

// NewFred creates the FRED adapter. config["api_key"] falls back to the
// FRED_API_KEY environment setting.
func NewFred(cfg map[string]string) (DataSource, error) {
	apiKey := cfg["api_key"]
	if apiKey == "" && config.AppConfig != nil {
		apiKey = config.AppConfig.FredAPIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("fred source config must contain 'api_key' or FRED_API_KEY must be set")
	}
	return &Fred{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the source name
func (s *Fred) Name() string {
	return "Fred"
}

type fredResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// Fetch downloads daily observations for [startMs, endMs). Missing values
// (FRED publishes "." on market holidays) are skipped.
func (s *Fred) Fetch(ctx context.Context, symbol, timeframe string, startMs int64, endMs *int64) (series.Table, error) {
	untilMs := time.Now().UnixMilli()
	if endMs != nil {
		untilMs = *endMs
	}

	params := url.Values{}
	params.Set("series_id", symbol)
	params.Set("api_key", s.apiKey)
	params.Set("file_type", "json")
	params.Set("observation_start", time.UnixMilli(startMs).In(fredLocation).Format("2006-01-02"))
	params.Set("observation_end", time.UnixMilli(untilMs).In(fredLocation).Format("2006-01-02"))

	log.Printf("Fetching %s for symbol %s, timeframe %s, start %d, end %d",
		s.Name(), symbol, timeframe, startMs, untilMs)

	raw, err := httpGetJSON(ctx, s.httpClient, fredObservationsURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch FRED series %s: %w", symbol, err)
	}

	var resp fredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse FRED response for %s: %w", symbol, err)
	}

	var table series.Table
	for _, obs := range resp.Observations {
		if obs.Value == "." || obs.Value == "" {
			continue
		}
		var value float64
		if _, err := fmt.Sscanf(obs.Value, "%f", &value); err != nil {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", obs.Date, fredLocation)
		if err != nil {
			continue
		}
		ts := day.UnixMilli()
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
	log.Printf("Fetched %d observations for symbol %s", table.Len(), symbol)
	return table, nil
}

// CloseConnections closes idle HTTP connections
func (s *Fred) CloseConnections() {
	s.httpClient.CloseIdleConnections()
}
