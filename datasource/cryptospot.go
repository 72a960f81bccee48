package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketsync/retry"
	"marketsync/series"
	"marketsync/timeutil"
)

const (
	binanceSpotKlinesURL = "https://api.binance.com/api/v3/klines"
	okxCandlesURL        = "https://www.okx.com/api/v5/market/history-candles"

	binancePageLimit = 1000
	okxPageLimit     = 300
)

// CryptoSpot fetches spot OHLCV klines. Symbols use the "exchange:PAIR"
// form, e.g. "binance:BTC/USDT" or "okx:BTC/USDT"; a bare pair defaults to
// binance.
type CryptoSpot struct {
	httpClient *http.Client
}

// NewCryptoSpot creates the spot adapter
func NewCryptoSpot(config map[string]string) (DataSource, error) {
	return &CryptoSpot{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the source name
func (s *CryptoSpot) Name() string {
	return "CryptoSpot"
}

// Fetch downloads spot klines for [startMs, endMs), paginating as needed and
// dropping the trailing incomplete bar
func (s *CryptoSpot) Fetch(ctx context.Context, symbol, timeframe string, startMs int64, endMs *int64) (series.Table, error) {
	exchange, pair := SplitExchangeSymbol(symbol)

	untilMs := time.Now().UnixMilli()
	if endMs != nil {
		untilMs = *endMs
	}
	tfMs, err := timeutil.ParseTimeframeToMilliseconds(timeframe)
	if err != nil {
		return nil, err
	}

	log.Printf("Fetching %s for symbol %s, timeframe %s, start %d, end %d",
		s.Name(), symbol, timeframe, startMs, untilMs)

	var table series.Table
	switch exchange {
	case "binance":
		table, err = fetchBinanceKlines(ctx, s.httpClient, binanceSpotKlinesURL, pair, timeframe, tfMs, startMs, untilMs, binancePageLimit)
	case "okx":
		table, err = s.fetchOKX(ctx, pair, timeframe, tfMs, startMs, untilMs)
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", exchange)
	}
	if err != nil {
		return nil, err
	}

	table = trimIncompleteBar(table, tfMs)
	if table.IsEmpty() {
		log.Printf("⚠️ No new data for %s - %s", symbol, timeframe)
		return series.Table{}, nil
	}
	log.Printf("Fetched %d OHLCV bars for symbol %s", table.Len(), symbol)
	return table, nil
}

// CloseConnections closes idle HTTP connections
func (s *CryptoSpot) CloseConnections() {
	s.httpClient.CloseIdleConnections()
}

// trimIncompleteBar drops the last bar when its period has not closed yet
func trimIncompleteBar(table series.Table, tfMs int64) series.Table {
	if table.IsEmpty() {
		return table
	}
	lastTs := table[table.Len()-1].TimeMs
	if lastTs+tfMs > time.Now().UnixMilli() {
		log.Printf("⚠️ Dropping unfinished bar %d", lastTs)
		return table[:table.Len()-1]
	}
	return table
}

// fetchBinanceKlines walks the klines endpoint forward from startMs until
// untilMs is covered or the exchange runs out of data
func fetchBinanceKlines(ctx context.Context, client *http.Client, baseURL, pair, timeframe string, tfMs, startMs, untilMs int64, pageLimit int64) (series.Table, error) {
	apiSymbol := strings.ReplaceAll(pair, "/", "")
	sinceMs := startMs

	var table series.Table
	for {
		limitMax := (untilMs - sinceMs) / tfMs
		if limitMax <= 0 {
			break
		}
		limit := pageLimit
		if limitMax < limit {
			limit = limitMax
		}

		params := url.Values{}
		params.Set("symbol", apiSymbol)
		params.Set("interval", timeframe)
		params.Set("startTime", strconv.FormatInt(sinceMs, 10))
		params.Set("limit", strconv.FormatInt(limit, 10))

		raw, err := httpGetJSON(ctx, client, baseURL+"?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch klines for %s: %w", pair, err)
		}

		var klines [][]json.RawMessage
		if err := json.Unmarshal(raw, &klines); err != nil {
			return nil, fmt.Errorf("failed to parse klines response for %s: %w", pair, err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			row, err := parseBinanceKline(k)
			if err != nil {
				return nil, err
			}
			table = append(table, row)
		}

		lastTs := table[table.Len()-1].TimeMs
		if lastTs+tfMs > untilMs {
			// a bar closing past the requested range is not complete within it;
			// one closing exactly at untilMs is
			table = table[:table.Len()-1]
			break
		}
		if int64(len(klines)) < limit {
			break
		}
		// +1 avoids refetching the last bar
		sinceMs = lastTs + 1
	}
	return table, nil
}

// parseBinanceKline decodes one kline array:
// [openTime, open, high, low, close, volume, ...] with prices as strings
func parseBinanceKline(k []json.RawMessage) (series.Row, error) {
	var zero series.Row
	if len(k) < 6 {
		return zero, fmt.Errorf("malformed kline entry with %d fields", len(k))
	}
	var openTime int64
	if err := json.Unmarshal(k[0], &openTime); err != nil {
		return zero, fmt.Errorf("failed to parse kline open time: %w", err)
	}

	values := make(map[string]float64, 5)
	for i, name := range []string{"open", "high", "low", "close", "volume"} {
		var s string
		if err := json.Unmarshal(k[i+1], &s); err != nil {
			return zero, fmt.Errorf("failed to parse kline %s: %w", name, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return zero, fmt.Errorf("invalid kline %s value %q: %w", name, s, err)
		}
		values[name] = d.InexactFloat64()
	}
	return series.Row{TimeMs: openTime, Values: values}, nil
}

var okxBars = map[string]string{
	"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1H", "4h": "4Hutc", "1d": "1Dutc", "1w": "1Wutc",
}

// fetchOKX walks the history-candles endpoint backwards from untilMs
// (okx pages newest-first via the after cursor)
func (s *CryptoSpot) fetchOKX(ctx context.Context, pair, timeframe string, tfMs, startMs, untilMs int64) (series.Table, error) {
	bar, ok := okxBars[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported okx timeframe: %s", timeframe)
	}
	instID := strings.ReplaceAll(pair, "/", "-")

	after := untilMs
	var table series.Table
	for {
		params := url.Values{}
		params.Set("instId", instID)
		params.Set("bar", bar)
		params.Set("limit", strconv.Itoa(okxPageLimit))
		params.Set("after", strconv.FormatInt(after, 10))

		raw, err := httpGetJSON(ctx, s.httpClient, okxCandlesURL+"?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch okx candles for %s: %w", pair, err)
		}

		var resp struct {
			Code string     `json:"code"`
			Msg  string     `json:"msg"`
			Data [][]string `json:"data"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse okx response for %s: %w", pair, err)
		}
		if resp.Code != "0" {
			return nil, fmt.Errorf("okx error for %s: %s", pair, resp.Msg)
		}
		if len(resp.Data) == 0 {
			break
		}

		oldest := int64(0)
		for _, c := range resp.Data {
			if len(c) < 6 {
				continue
			}
			ts, err := strconv.ParseInt(c[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid okx candle timestamp %q: %w", c[0], err)
			}
			oldest = ts
			if ts < startMs || ts >= untilMs {
				continue
			}
			values := make(map[string]float64, 5)
			for i, name := range []string{"open", "high", "low", "close", "volume"} {
				d, err := decimal.NewFromString(c[i+1])
				if err != nil {
					return nil, fmt.Errorf("invalid okx candle %s value %q: %w", name, c[i+1], err)
				}
				values[name] = d.InexactFloat64()
			}
			table = append(table, series.Row{TimeMs: ts, Values: values})
		}

		if oldest <= startMs || int64(len(resp.Data)) < okxPageLimit {
			break
		}
		after = oldest
	}

	sort.Slice(table, func(i, j int) bool { return table[i].TimeMs < table[j].TimeMs })
	return table, nil
}

// httpGetJSON performs a GET with the shared retry policy and returns the
// response body
func httpGetJSON(ctx context.Context, client *http.Client, requestURL string) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	return body, err
}
