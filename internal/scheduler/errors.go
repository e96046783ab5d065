package scheduler

import "errors"

var (
	// ErrInvalidConstraints is returned when the constraint set cannot produce a slot grid.
	ErrInvalidConstraints = errors.New("invalid constraints")
	// ErrSlotConflict is returned when an occupancy key is already held.
	ErrSlotConflict = errors.New("slot already occupied")
	// ErrInvalidAbsence is returned when an absence carries an unparseable date or time slot.
	ErrInvalidAbsence = errors.New("invalid absence")
	// ErrEntryNotFound is returned when the absent lecturer teaches nothing at the absence slot.
	ErrEntryNotFound = errors.New("no timetable entry at absence slot")
)
