package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFearGreed(t *testing.T, handler http.HandlerFunc) *FearGreed {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &FearGreed{
		httpClient: server.Client(),
		baseURL:    server.URL,
	}
}

func TestFearGreed_RejectsBadInputs(t *testing.T) {
	source, err := NewFearGreed(nil)
	require.NoError(t, err)

	_, err = source.Fetch(context.Background(), "ethereum", "1d", 0, nil)
	assert.ErrorContains(t, err, "invalid symbol")

	_, err = source.Fetch(context.Background(), "bitcoin_fgi", "1h", 0, nil)
	assert.ErrorContains(t, err, "invalid timeframe")
}

func TestFearGreed_ShiftsTimestampsBackOneDay(t *testing.T) {
	// the provider stamps each daily value with the following midnight
	today := time.Now().UTC().Truncate(24 * time.Hour)
	stamps := []int64{
		today.Add(-2 * 24 * time.Hour).Unix(),
		today.Add(-1 * 24 * time.Hour).Unix(),
		today.Unix(),
	}

	source := newTestFearGreed(t, func(w http.ResponseWriter, r *http.Request) {
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, limit, len(stamps))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":[
			{"value":"25","timestamp":"%d"},
			{"value":"40","timestamp":"%d"},
			{"value":"55","timestamp":"%d"}
		]}`, stamps[2], stamps[1], stamps[0])
	})

	startMs := today.Add(-4 * 24 * time.Hour).UnixMilli()
	table, err := source.Fetch(context.Background(), "bitcoin_fgi", "1d", startMs, nil)
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())

	// shifted back one day and sorted ascending
	assert.Equal(t, (stamps[0]-86400)*1000, table[0].TimeMs)
	assert.Equal(t, (stamps[2]-86400)*1000, table[2].TimeMs)
	assert.Equal(t, 55.0, table[0].Values["value"])
	assert.Equal(t, 25.0, table[2].Values["value"])
}

func TestFearGreed_FiltersOutsideRequestedRange(t *testing.T) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	oldStamp := today.Add(-10 * 24 * time.Hour).Unix()
	recentStamp := today.Unix()

	source := newTestFearGreed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":[
			{"value":"70","timestamp":"%d"},
			{"value":"30","timestamp":"%d"}
		]}`, recentStamp, oldStamp)
	})

	// only the recent value falls inside [start, now)
	startMs := today.Add(-3 * 24 * time.Hour).UnixMilli()
	table, err := source.Fetch(context.Background(), "bitcoin_fgi", "1d", startMs, nil)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, (recentStamp-86400)*1000, table[0].TimeMs)
}

func TestFearGreed_SkipsMalformedEntries(t *testing.T) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	stamp := today.Unix()

	source := newTestFearGreed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":[
			{"value":"not-a-number","timestamp":"%d"},
			{"value":"42","timestamp":"bogus"},
			{"value":"42","timestamp":"%d"}
		]}`, stamp, stamp)
	})

	startMs := today.Add(-2 * 24 * time.Hour).UnixMilli()
	table, err := source.Fetch(context.Background(), "bitcoin_fgi", "1d", startMs, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
}
