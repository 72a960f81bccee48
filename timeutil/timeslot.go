package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// SlotType distinguishes daily windows (HH:MM:SS bounds) from hourly windows
// (MM:SS bounds)
type SlotType string

const (
	SlotDaily  SlotType = "daily"
	SlotHourly SlotType = "hourly"
)

// TimeSlot is a recurring admission window. Daily slots repeat every day,
// hourly slots repeat every hour. Immutable once constructed.
type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Type  SlotType
}

// NewTimeSlot validates and builds a TimeSlot. Start and end must both be
// "HH:MM:SS" (daily) or both "MM:SS" (hourly).
func NewTimeSlot(start, end string) (TimeSlot, error) {
	var zero TimeSlot
	slot := TimeSlot{Start: start, End: end}
	switch {
	case len(start) == 8 && len(end) == 8:
		slot.Type = SlotDaily
		if _, err := time.Parse("15:04:05", start); err != nil {
			return zero, fmt.Errorf("timeslot format error: invalid start %q: %w", start, err)
		}
		if _, err := time.Parse("15:04:05", end); err != nil {
			return zero, fmt.Errorf("timeslot format error: invalid end %q: %w", end, err)
		}
	case len(start) == 5 && len(end) == 5:
		slot.Type = SlotHourly
		if _, err := time.Parse("04:05", start); err != nil {
			return zero, fmt.Errorf("timeslot format error: invalid start %q: %w", start, err)
		}
		if _, err := time.Parse("04:05", end); err != nil {
			return zero, fmt.Errorf("timeslot format error: invalid end %q: %w", end, err)
		}
	default:
		return zero, fmt.Errorf("timeslot format error: start and end must both be HH:MM:SS or both MM:SS")
	}
	return slot, nil
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("%s to %s", s.Start, s.End)
}

// contains reports whether now falls strictly inside the window, comparing
// only the repeating wall clock fields
func (s TimeSlot) contains(now time.Time) bool {
	var cur, start, end string
	if s.Type == SlotDaily {
		cur = now.Format("15:04:05")
	} else {
		cur = now.Format("04:05")
	}
	start = s.Start
	end = s.End
	return start < cur && cur < end
}

// TimeSlotManager is a registry of named admission windows with an
// edge-triggered check mode. Safe for concurrent use.
type TimeSlotManager struct {
	mu        sync.Mutex
	timeslots map[string]TimeSlot
	lastSlot  map[string]bool

	// now is replaceable in tests
	now func() time.Time
}

// NewTimeSlotManager creates an empty slot registry
func NewTimeSlotManager() *TimeSlotManager {
	return &TimeSlotManager{
		timeslots: make(map[string]TimeSlot),
		lastSlot:  make(map[string]bool),
		now:       time.Now,
	}
}

// AddSlot registers a named window. Fails if the name exists unless overwrite
// is set.
func (m *TimeSlotManager) AddSlot(name string, slot TimeSlot, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.timeslots[name]; exists && !overwrite {
		return fmt.Errorf("slot name %q already exists, set overwrite to replace", name)
	}
	m.timeslots[name] = slot
	return nil
}

// DeleteSlot removes a named window and its edge-trigger state. Unknown names
// are a no-op.
func (m *TimeSlotManager) DeleteSlot(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timeslots, name)
	delete(m.lastSlot, name)
}

// GetSlot returns the registered window for a name
func (m *TimeSlotManager) GetSlot(name string) (TimeSlot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.timeslots[name]
	return slot, ok
}

// IsInSlot reports whether the current time is inside the named window.
// With once set, it fires only on the inactive-to-active transition and stays
// false until the window is exited and re-entered. Unknown names return false.
func (m *TimeSlotManager) IsInSlot(name string, once bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.timeslots[name]
	if !ok {
		return false
	}
	result := slot.contains(m.now())
	if once {
		last := m.lastSlot[name]
		m.lastSlot[name] = result
		if !result || result == last {
			return false
		}
	}
	return result
}
