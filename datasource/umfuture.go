package datasource

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"marketsync/series"
	"marketsync/timeutil"
)

const binanceFuturesKlinesURL = "https://fapi.binance.com/fapi/v1/klines"

// CryptoUMFuture fetches USD-margined perpetual futures OHLCV klines from
// Binance
type CryptoUMFuture struct {
	httpClient *http.Client
}

// NewCryptoUMFuture creates the futures adapter
func NewCryptoUMFuture(config map[string]string) (DataSource, error) {
	return &CryptoUMFuture{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the source name
func (s *CryptoUMFuture) Name() string {
	return "CryptoUMFuture"
}

// Fetch downloads futures klines for [startMs, endMs)
func (s *CryptoUMFuture) Fetch(ctx context.Context, symbol, timeframe string, startMs int64, endMs *int64) (series.Table, error) {
	exchange, pair := SplitExchangeSymbol(symbol)
	if exchange != "binance" {
		return nil, fmt.Errorf("unsupported futures exchange: %s", exchange)
	}

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

	table, err := fetchBinanceKlines(ctx, s.httpClient, binanceFuturesKlinesURL, pair, timeframe, tfMs, startMs, untilMs, binancePageLimit)
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
func (s *CryptoUMFuture) CloseConnections() {
	s.httpClient.CloseIdleConnections()
}
