package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimeSlot(t *testing.T) {
	daily, err := NewTimeSlot("08:00:00", "18:59:59")
	require.NoError(t, err)
	assert.Equal(t, SlotDaily, daily.Type)

	hourly, err := NewTimeSlot("11:00", "11:59")
	require.NoError(t, err)
	assert.Equal(t, SlotHourly, hourly.Type)
}

func TestNewTimeSlot_Invalid(t *testing.T) {
	cases := [][2]string{
		{"08:00:00", "11:59"}, // mixed types
		{"8:00", "9:00"},      // wrong length
		{"25:00:00", "26:00:00"},
		{"aa:bb:cc", "dd:ee:ff"},
		{"", ""},
	}
	for _, c := range cases {
		_, err := NewTimeSlot(c[0], c[1])
		assert.Error(t, err, "%s-%s", c[0], c[1])
	}
}

func atClock(hour, min, sec int) time.Time {
	return time.Date(2023, 6, 15, hour, min, sec, 0, time.UTC)
}

func TestTimeSlotManager_DailyWindow(t *testing.T) {
	m := NewTimeSlotManager()
	slot, err := NewTimeSlot("08:00:00", "18:00:00")
	require.NoError(t, err)
	require.NoError(t, m.AddSlot("work", slot, false))

	m.now = func() time.Time { return atClock(12, 0, 0) }
	assert.True(t, m.IsInSlot("work", false))

	m.now = func() time.Time { return atClock(7, 59, 59) }
	assert.False(t, m.IsInSlot("work", false))

	// bounds are exclusive
	m.now = func() time.Time { return atClock(8, 0, 0) }
	assert.False(t, m.IsInSlot("work", false))
}

func TestTimeSlotManager_HourlyWindow(t *testing.T) {
	m := NewTimeSlotManager()
	slot, err := NewTimeSlot("15:00", "30:00")
	require.NoError(t, err)
	require.NoError(t, m.AddSlot("quarter", slot, false))

	// minute:second within any hour
	m.now = func() time.Time { return atClock(3, 20, 0) }
	assert.True(t, m.IsInSlot("quarter", false))
	m.now = func() time.Time { return atClock(22, 20, 0) }
	assert.True(t, m.IsInSlot("quarter", false))
	m.now = func() time.Time { return atClock(3, 45, 0) }
	assert.False(t, m.IsInSlot("quarter", false))
}

func TestTimeSlotManager_OnceEdgeTrigger(t *testing.T) {
	m := NewTimeSlotManager()
	slot, err := NewTimeSlot("08:00:00", "18:00:00")
	require.NoError(t, err)
	require.NoError(t, m.AddSlot("work", slot, false))

	// outside the window
	m.now = func() time.Time { return atClock(6, 0, 0) }
	assert.False(t, m.IsInSlot("work", true))

	// entering fires exactly once
	m.now = func() time.Time { return atClock(9, 0, 0) }
	assert.True(t, m.IsInSlot("work", true))
	assert.False(t, m.IsInSlot("work", true))
	assert.False(t, m.IsInSlot("work", true))

	// leaving and re-entering fires again
	m.now = func() time.Time { return atClock(20, 0, 0) }
	assert.False(t, m.IsInSlot("work", true))
	m.now = func() time.Time { return atClock(10, 0, 0) }
	assert.True(t, m.IsInSlot("work", true))
}

func TestTimeSlotManager_AddDelete(t *testing.T) {
	m := NewTimeSlotManager()
	slot, err := NewTimeSlot("08:00:00", "18:00:00")
	require.NoError(t, err)

	require.NoError(t, m.AddSlot("a", slot, false))
	assert.Error(t, m.AddSlot("a", slot, false))
	assert.NoError(t, m.AddSlot("a", slot, true))

	m.DeleteSlot("a")
	_, ok := m.GetSlot("a")
	assert.False(t, ok)
	assert.False(t, m.IsInSlot("a", false))
}
