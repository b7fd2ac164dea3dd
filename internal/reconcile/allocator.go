package reconcile

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"schedule-sync-go/internal/models"
)

// ErrSlotExhausted reports that no weekly slot can host a reschedule. It is
// surfaced as an actionable outcome, never silently dropped.
var ErrSlotExhausted = errors.New("no available weekly slot")

// Allocator picks a non-conflicting weekly slot for a reschedule request.
// Given identical inputs it always returns the same slot, so replaying a
// reschedule event reconciles to the same class.
type Allocator struct {
	capacity int
}

// NewAllocator creates an allocator with the given per-slot student capacity
func NewAllocator(capacity int) *Allocator {
	return &Allocator{capacity: capacity}
}

// Allocate ranks candidate slots by closeness to the requested window, then
// by current load, then by slot ID. Slots at capacity and slots overlapping
// any of the excluded slots (the student's existing bookings) are skipped.
func (a *Allocator) Allocate(window models.TimeWindow, slots []models.WeeklySlot, assignments map[uint]int, excluded []models.WeeklySlot) (*models.WeeklySlot, error) {
	type candidate struct {
		slot models.WeeklySlot
		day  int
		mins int
		load int
	}

	var candidates []candidate
	for _, slot := range slots {
		if a.capacity > 0 && assignments[slot.SlotID] >= a.capacity {
			continue
		}
		if overlapsAny(slot, excluded) {
			continue
		}
		candidates = append(candidates, candidate{
			slot: slot,
			day:  dayDistance(slot.Day, window.Day),
			mins: windowDistance(slot, window),
			load: assignments[slot.SlotID],
		})
	}

	if len(candidates) == 0 {
		return nil, ErrSlotExhausted
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.day != b.day {
			return a.day < b.day
		}
		if a.mins != b.mins {
			return a.mins < b.mins
		}
		if a.load != b.load {
			return a.load < b.load
		}
		return a.slot.SlotID < b.slot.SlotID
	})

	chosen := candidates[0].slot
	return &chosen, nil
}

var dayIndex = map[string]int{
	"monday":    0,
	"tuesday":   1,
	"wednesday": 2,
	"thursday":  3,
	"friday":    4,
	"saturday":  5,
	"sunday":    6,
}

// dayDistance is the circular distance between two weekday names.
// Unknown day names rank last.
func dayDistance(a, b string) int {
	ai, aok := dayIndex[normalizeDay(a)]
	bi, bok := dayIndex[normalizeDay(b)]
	if !aok || !bok {
		return 7
	}
	d := ai - bi
	if d < 0 {
		d = -d
	}
	if 7-d < d {
		d = 7 - d
	}
	return d
}

func normalizeDay(day string) string {
	day = strings.ToLower(strings.TrimSpace(day))
	for full := range dayIndex {
		if strings.HasPrefix(full, day) && len(day) >= 3 {
			return full
		}
	}
	return day
}

// windowDistance is how far the slot start lies from the requested window,
// in minutes. A slot starting inside the window scores zero.
func windowDistance(slot models.WeeklySlot, window models.TimeWindow) int {
	slotStart, ok := parseMinutes(slot.StartTime)
	if !ok {
		return 24 * 60
	}
	winStart, startOK := parseMinutes(window.Start)
	winEnd, endOK := parseMinutes(window.End)
	if !startOK {
		return 0 // no time preference given
	}
	if endOK && slotStart >= winStart && slotStart < winEnd {
		return 0
	}
	d := slotStart - winStart
	if d < 0 {
		d = -d
	}
	return d
}

// parseMinutes converts "15:04" into minutes since midnight
func parseMinutes(value string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func overlapsAny(slot models.WeeklySlot, others []models.WeeklySlot) bool {
	for _, other := range others {
		if slotsOverlap(slot, other) {
			return true
		}
	}
	return false
}

// slotsOverlap reports whether two slots share a day and intersecting times
func slotsOverlap(a, b models.WeeklySlot) bool {
	if normalizeDay(a.Day) != normalizeDay(b.Day) {
		return false
	}
	aStart, ok1 := parseMinutes(a.StartTime)
	aEnd, ok2 := parseMinutes(a.EndTime)
	bStart, ok3 := parseMinutes(b.StartTime)
	bEnd, ok4 := parseMinutes(b.EndTime)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return true // unparseable times are treated as conflicting
	}
	return aStart < bEnd && bStart < aEnd
}
