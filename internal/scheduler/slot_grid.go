package scheduler

import (
	"fmt"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// SlotKey identifies a bookable period on the weekly grid.
type SlotKey struct {
	Day   models.Weekday
	Start models.ClockTime
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s@%s", k.Day, k.Start)
}

// Slot is one period on the grid. Period is the position within the day; Block increments
// every time the lunch window interrupts the day, so periods are adjacent only inside a block.
type Slot struct {
	Day    models.Weekday
	Start  models.ClockTime
	End    models.ClockTime
	Period int
	Block  int
}

// Key returns the occupancy key of the slot.
func (s Slot) Key() SlotKey {
	return SlotKey{Day: s.Day, Start: s.Start}
}

// Label renders the stored "HH:MM-HH:MM" representation.
func (s Slot) Label() string {
	return models.TimeSlotLabel(s.Start, s.End)
}

// SlotGrid is the ordered set of bookable slots for a week, day first then time.
type SlotGrid struct {
	slots []Slot
	index map[SlotKey]int
	days  map[models.Weekday][]Slot
}

// ValidateConstraints rejects constraint sets that cannot describe a teaching day.
func ValidateConstraints(c models.Constraints) error {
	switch {
	case c.PeriodDuration <= 0:
		return fmt.Errorf("%w: period duration must be positive", ErrInvalidConstraints)
	case c.StartTime >= c.EndTime:
		return fmt.Errorf("%w: start time %s must be before end time %s", ErrInvalidConstraints, c.StartTime, c.EndTime)
	case c.BreakDuration < 0:
		return fmt.Errorf("%w: break duration cannot be negative", ErrInvalidConstraints)
	case c.LunchBreakDuration < 0:
		return fmt.Errorf("%w: lunch break duration cannot be negative", ErrInvalidConstraints)
	case c.MaxHoursPerDay < 1:
		return fmt.Errorf("%w: max hours per day must be at least 1", ErrInvalidConstraints)
	case c.MaxConsecutiveHours < 1:
		return fmt.Errorf("%w: max consecutive hours must be at least 1", ErrInvalidConstraints)
	}
	return nil
}

// BuildSlotGrid derives the weekly grid from the constraints.
func BuildSlotGrid(c models.Constraints) (*SlotGrid, error) {
	if err := ValidateConstraints(c); err != nil {
		return nil, err
	}
	daily := dailyPeriods(c)
	if len(daily) == 0 {
		return nil, fmt.Errorf("%w: no period fits between %s and %s", ErrInvalidConstraints, c.StartTime, c.EndTime)
	}

	grid := &SlotGrid{
		slots: make([]Slot, 0, len(daily)*len(models.WorkingDays)),
		index: make(map[SlotKey]int, len(daily)*len(models.WorkingDays)),
		days:  make(map[models.Weekday][]Slot, len(models.WorkingDays)),
	}
	for _, day := range models.WorkingDays {
		for _, p := range daily {
			slot := Slot{Day: day, Start: p.Start, End: p.End, Period: p.Period, Block: p.Block}
			grid.index[slot.Key()] = len(grid.slots)
			grid.slots = append(grid.slots, slot)
			grid.days[day] = append(grid.days[day], slot)
		}
	}
	return grid, nil
}

// dailyPeriods walks the day from start to end, skipping over the lunch window.
func dailyPeriods(c models.Constraints) []Slot {
	lunchStart, lunchEnd := c.LunchBreakStart, c.LunchEnd()
	hasLunch := c.LunchBreakDuration > 0

	var periods []Slot
	block := 0
	cursor := c.StartTime
	for {
		if hasLunch && cursor >= lunchStart && cursor < lunchEnd {
			cursor = lunchEnd
			block++
		}
		end := cursor.Add(c.PeriodDuration)
		if end > c.EndTime {
			break
		}
		if hasLunch && cursor < lunchEnd && end > lunchStart {
			cursor = lunchEnd
			block++
			continue
		}
		periods = append(periods, Slot{Start: cursor, End: end, Period: len(periods), Block: block})
		cursor = end.Add(c.BreakDuration)
	}
	return periods
}

// Slots returns every slot in search order.
func (g *SlotGrid) Slots() []Slot {
	return g.slots
}

// Len returns the number of slots in the week.
func (g *SlotGrid) Len() int {
	return len(g.slots)
}

// PerDay returns the number of periods in a single day.
func (g *SlotGrid) PerDay() int {
	return len(g.slots) / len(models.WorkingDays)
}

// Day returns the slots of a single day in time order.
func (g *SlotGrid) Day(day models.Weekday) []Slot {
	return g.days[day]
}

// Lookup returns the slot for a key.
func (g *SlotGrid) Lookup(key SlotKey) (Slot, bool) {
	idx, ok := g.index[key]
	if !ok {
		return Slot{}, false
	}
	return g.slots[idx], true
}

// Order returns the search position of a key, or -1 when the key is off-grid.
func (g *SlotGrid) Order(key SlotKey) int {
	idx, ok := g.index[key]
	if !ok {
		return -1
	}
	return idx
}

// Neighbour returns the slot offset periods away on the same day and inside the same block.
func (g *SlotGrid) Neighbour(slot Slot, offset int) (Slot, bool) {
	day := g.days[slot.Day]
	target := slot.Period + offset
	if target < 0 || target >= len(day) {
		return Slot{}, false
	}
	neighbour := day[target]
	if neighbour.Block != slot.Block {
		return Slot{}, false
	}
	return neighbour, true
}
