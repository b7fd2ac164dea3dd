package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedule-sync-go/internal/models"
)

func testSlots() []models.WeeklySlot {
	return []models.WeeklySlot{
		{SlotID: 1, Day: "Monday", StartTime: "09:00", EndTime: "10:00"},
		{SlotID: 2, Day: "Tuesday", StartTime: "10:00", EndTime: "11:00"},
		{SlotID: 3, Day: "Tuesday", StartTime: "14:00", EndTime: "15:00"},
		{SlotID: 4, Day: "Friday", StartTime: "10:00", EndTime: "11:00"},
	}
}

func TestAllocateDeterminism(t *testing.T) {
	a := NewAllocator(60)
	window := models.TimeWindow{Day: "Tuesday", Start: "10:00", End: "11:00"}

	first, err := a.Allocate(window, testSlots(), map[uint]int{}, nil)
	require.NoError(t, err)

	second, err := a.Allocate(window, testSlots(), map[uint]int{}, nil)
	require.NoError(t, err)

	assert.Equal(t, first.SlotID, second.SlotID)
	assert.Equal(t, uint(2), first.SlotID, "slot inside the requested window wins")
}

func TestAllocatePrefersRequestedDay(t *testing.T) {
	a := NewAllocator(60)
	window := models.TimeWindow{Day: "Friday", Start: "10:00", End: "11:00"}

	slot, err := a.Allocate(window, testSlots(), map[uint]int{}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint(4), slot.SlotID)
}

func TestAllocateLoadBalancing(t *testing.T) {
	a := NewAllocator(60)
	slots := []models.WeeklySlot{
		{SlotID: 1, Day: "Tuesday", StartTime: "10:00", EndTime: "11:00"},
		{SlotID: 2, Day: "Tuesday", StartTime: "10:00", EndTime: "11:00"},
	}
	window := models.TimeWindow{Day: "Tuesday", Start: "10:00", End: "11:00"}

	slot, err := a.Allocate(window, slots, map[uint]int{1: 5, 2: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint(2), slot.SlotID, "equally ranked slots break ties on load")
}

func TestAllocateSkipsFullSlots(t *testing.T) {
	a := NewAllocator(3)
	window := models.TimeWindow{Day: "Tuesday", Start: "10:00", End: "11:00"}

	slot, err := a.Allocate(window, testSlots(), map[uint]int{2: 3}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, uint(2), slot.SlotID)
}

func TestAllocateExhausted(t *testing.T) {
	a := NewAllocator(1)
	window := models.TimeWindow{Day: "Tuesday"}

	full := map[uint]int{1: 1, 2: 1, 3: 1, 4: 1}
	_, err := a.Allocate(window, testSlots(), full, nil)
	assert.ErrorIs(t, err, ErrSlotExhausted)

	_, err = a.Allocate(window, nil, map[uint]int{}, nil)
	assert.ErrorIs(t, err, ErrSlotExhausted)
}

func TestAllocateExcludesOverlapping(t *testing.T) {
	a := NewAllocator(60)
	window := models.TimeWindow{Day: "Tuesday", Start: "10:00", End: "11:00"}

	booked := []models.WeeklySlot{
		{SlotID: 99, Day: "Tuesday", StartTime: "10:30", EndTime: "11:30"},
	}

	slot, err := a.Allocate(window, testSlots(), map[uint]int{}, booked)
	require.NoError(t, err)
	assert.NotEqual(t, uint(2), slot.SlotID, "student is already booked over that window")
}

func TestSlotsOverlap(t *testing.T) {
	a := models.WeeklySlot{Day: "Monday", StartTime: "09:00", EndTime: "10:00"}
	b := models.WeeklySlot{Day: "Monday", StartTime: "09:30", EndTime: "10:30"}
	c := models.WeeklySlot{Day: "Monday", StartTime: "10:00", EndTime: "11:00"}
	d := models.WeeklySlot{Day: "Tuesday", StartTime: "09:00", EndTime: "10:00"}

	assert.True(t, slotsOverlap(a, b))
	assert.False(t, slotsOverlap(a, c), "touching boundaries do not overlap")
	assert.False(t, slotsOverlap(a, d))
}

func TestDayDistanceWraps(t *testing.T) {
	assert.Equal(t, 0, dayDistance("Tuesday", "tuesday"))
	assert.Equal(t, 1, dayDistance("Monday", "Sunday"), "week distance is circular")
	assert.Equal(t, 7, dayDistance("Noday", "Monday"), "unknown days rank last")
}
