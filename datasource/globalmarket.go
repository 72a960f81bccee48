package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"marketsync/series"
	"marketsync/timeutil"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

var yahooIntervals = map[string]string{
	"1h": "1h", "4h": "1h", "1d": "1d", "1w": "1wk",
}

// GlobalMarket fetches OHLCV history for equities and indices from the Yahoo
// Finance chart API. Symbols are Yahoo tickers such as "^GSPC" or "SPY".
type GlobalMarket struct {
	httpClient *http.Client
}

// NewGlobalMarket creates the adapter
func NewGlobalMarket(config map[string]string) (DataSource, error) {
	return &GlobalMarket{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the source name
func (s *GlobalMarket) Name() string {
	return "GlobalMarket"
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch downloads bars for [startMs, endMs) and drops the trailing incomplete
// period
func (s *GlobalMarket) Fetch(ctx context.Context, symbol, timeframe string, startMs int64, endMs *int64) (series.Table, error) {
	interval, ok := yahooIntervals[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe for %s: %s", s.Name(), timeframe)
	}

	untilMs := time.Now().UnixMilli()
	if endMs != nil {
		untilMs = *endMs
	}
	tfMs, err := timeutil.ParseTimeframeToMilliseconds(timeframe)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("period1", fmt.Sprintf("%d", startMs/1000))
	params.Set("period2", fmt.Sprintf("%d", untilMs/1000))
	params.Set("interval", interval)
	params.Set("events", "history")

	log.Printf("Fetching %s for symbol %s, timeframe %s, start %d, end %d",
		s.Name(), symbol, timeframe, startMs, untilMs)

	raw, err := httpGetJSON(ctx, s.httpClient, yahooChartURL+url.PathEscape(symbol)+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chart for %s: %w", symbol, err)
	}

	var resp yahooChartResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse chart response for %s: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("chart error for %s: %s", symbol, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		log.Printf("⚠️ No new data for %s - %s", symbol, timeframe)
		return series.Table{}, nil
	}

	result := resp.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	var table series.Table
	for i, tsSec := range result.Timestamp {
		ts := tsSec * 1000
		if ts < startMs || ts >= untilMs {
			continue
		}
		// Yahoo fills market holidays with nulls
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		values := map[string]float64{"close": *quote.Close[i]}
		if i < len(quote.Open) && quote.Open[i] != nil {
			values["open"] = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			values["high"] = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			values["low"] = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			values["volume"] = *quote.Volume[i]
		}
		table = append(table, series.Row{TimeMs: ts, Values: values})
	}

	table = trimIncompleteBar(table, tfMs)
	if table.IsEmpty() {
		log.Printf("⚠️ No new data for %s - %s", symbol, timeframe)
		return series.Table{}, nil
	}
	log.Printf("Fetched %d bars for symbol %s", table.Len(), symbol)
	return table, nil
}

// CloseConnections closes idle HTTP connections
func (s *GlobalMarket) CloseConnections() {
	s.httpClient.CloseIdleConnections()
}
