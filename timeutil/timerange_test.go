package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRange_Bounded(t *testing.T) {
	tr, err := ParseTimeRange("20230101-20230630")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), tr.StartMs)
	require.NotNil(t, tr.EndMs)
	assert.Equal(t, time.Date(2023, 6, 30, 23, 59, 59, 0, time.UTC).UnixMilli(), *tr.EndMs)
}

func TestParseTimeRange_OpenEnd(t *testing.T) {
	tr, err := ParseTimeRange("20220101-")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), tr.StartMs)
	assert.Nil(t, tr.EndMs)

	// open end means "now" at evaluation time
	now := time.Now().UnixMilli()
	assert.InDelta(t, now, tr.EffectiveEndMs(), 2000)
}

func TestParseTimeRange_EmptyStartDefaults(t *testing.T) {
	tr, err := ParseTimeRange("-20241231")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), tr.StartMs)
}

func TestParseTimeRange_WithTime(t *testing.T) {
	tr, err := ParseTimeRange("20230101_060000-20230101_120000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 1, 6, 0, 0, 0, time.UTC).UnixMilli(), tr.StartMs)
	require.NotNil(t, tr.EndMs)
	assert.Equal(t, time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), *tr.EndMs)
}

func TestParseTimeRange_Invalid(t *testing.T) {
	for _, s := range []string{"", "20230101", "notadate-20230630"} {
		_, err := ParseTimeRange(s)
		assert.Error(t, err, s)
	}
}

func TestNewTimeRange_ClampsOutOfRange(t *testing.T) {
	// seconds-level timestamp is below 1e12 and gets reset to 2022-01-01
	tr := NewTimeRange(1672531200, nil)
	assert.Equal(t, int64(1640995200000), tr.StartMs)

	// absurd end is reset to now
	badEnd := int64(9e15)
	tr = NewTimeRange(1672531200000, &badEnd)
	require.NotNil(t, tr.EndMs)
	assert.InDelta(t, time.Now().UnixMilli(), *tr.EndMs, 2000)
}

func TestNewTimeRange_SwapsReversed(t *testing.T) {
	end := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	tr := NewTimeRange(start, &end)
	require.NotNil(t, tr.EndMs)
	assert.Less(t, tr.StartMs, *tr.EndMs)
}

func TestTimeRange_Contains(t *testing.T) {
	tr, err := ParseTimeRange("20230101-20230630")
	require.NoError(t, err)

	assert.True(t, tr.Contains(time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()))
	assert.False(t, tr.Contains(time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC).UnixMilli()))
	assert.False(t, tr.Contains(time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC).UnixMilli()))

	open, err := ParseTimeRange("20230101-")
	require.NoError(t, err)
	assert.True(t, open.Contains(time.Now().UnixMilli()))
}

func TestTimeRange_AlignToTimeframe(t *testing.T) {
	end := time.Date(2023, 6, 15, 13, 47, 21, 0, time.UTC).UnixMilli()
	start := time.Date(2023, 6, 10, 7, 12, 3, 0, time.UTC).UnixMilli()
	tr := NewTimeRange(start, &end)

	aligned, err := tr.AlignToTimeframe("1h")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 10, 7, 0, 0, 0, time.UTC).UnixMilli(), aligned.StartMs)
	require.NotNil(t, aligned.EndMs)
	assert.Equal(t, time.Date(2023, 6, 15, 13, 0, 0, 0, time.UTC).UnixMilli(), *aligned.EndMs)
}

func TestTimeRange_String(t *testing.T) {
	tr, err := ParseTimeRange("20230101-20230630")
	require.NoError(t, err)
	assert.Equal(t, "20230101_000000-20230630_235959", tr.String())

	open, err := ParseTimeRange("20220101-")
	require.NoError(t, err)
	assert.Equal(t, "20220101_000000-", open.String())
}
