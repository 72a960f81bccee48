package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframeToMinutes(t *testing.T) {
	cases := map[string]int64{
		"1m":  1,
		"15m": 15,
		"1h":  60,
		"4h":  240,
		"1d":  1440,
		"1w":  10080,
		"1M":  43200,
		"1y":  525600,
		"45m": 45,
		"2d":  2880,
		"90":  90,
	}
	for tf, want := range cases {
		got, err := ParseTimeframeToMinutes(tf)
		require.NoError(t, err, tf)
		assert.Equal(t, want, got, tf)
	}
}

func TestParseTimeframeToMinutes_Invalid(t *testing.T) {
	for _, tf := range []string{"", "abc", "h1", "-5m", "0m"} {
		_, err := ParseTimeframeToMinutes(tf)
		assert.Error(t, err, tf)
	}
}

func TestParseTimeframeToMilliseconds(t *testing.T) {
	ms, err := ParseTimeframeToMilliseconds("1h")
	require.NoError(t, err)
	assert.Equal(t, int64(3600000), ms)
}

func TestRoundTimeframe(t *testing.T) {
	// 2023-06-15 13:47:21 UTC
	ts := time.Date(2023, 6, 15, 13, 47, 21, 0, time.UTC).UnixMilli()

	down, err := RoundTimeframeDown("1h", ts)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 15, 13, 0, 0, 0, time.UTC).UnixMilli(), down)

	up, err := RoundTimeframeUp("1h", ts)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 15, 14, 0, 0, 0, time.UTC).UnixMilli(), up)

	// already on a boundary: down keeps it, up advances
	boundary := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC).UnixMilli()
	down, err = RoundTimeframeDown("1d", boundary)
	require.NoError(t, err)
	assert.Equal(t, boundary, down)
	up, err = RoundTimeframeUp("1d", boundary)
	require.NoError(t, err)
	assert.Equal(t, boundary+86400000, up)
}

func TestWeeklyBoundariesAlignToMonday(t *testing.T) {
	// 2023-06-15 is a Thursday
	at := time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC)

	prev, err := PrevBoundaryMs("1w", at)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 12, 0, 0, 0, 0, time.UTC).UnixMilli(), prev)

	next, err := NextBoundaryMs("1w", at)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 19, 0, 0, 0, 0, time.UTC).UnixMilli(), next)

	// Monday itself rounds down to its own midnight
	monday := time.Date(2023, 6, 12, 8, 0, 0, 0, time.UTC)
	prev, err = PrevBoundaryMs("1w", monday)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 12, 0, 0, 0, 0, time.UTC).UnixMilli(), prev)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "2.0 MB", FormatSize(2*1024*1024))
}
