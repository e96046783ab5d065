package scheduler

import (
	"fmt"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

type occupancyKey struct {
	kind models.ResourceKind
	id   string
	slot SlotKey
}

type resourceKey struct {
	kind models.ResourceKind
	id   string
}

type dayKey struct {
	kind models.ResourceKind
	id   string
	day  models.Weekday
}

// AvailabilityIndex tracks which (faculty, slot), (classroom, slot) and (batch, slot)
// keys are taken. Each generation or substitution call owns its own index.
type AvailabilityIndex struct {
	occupied map[occupancyKey]models.TimetableEntry
	daily    map[dayKey]int
	weekly   map[resourceKey]int
}

// NewAvailabilityIndex returns an empty index.
func NewAvailabilityIndex() *AvailabilityIndex {
	return &AvailabilityIndex{
		occupied: make(map[occupancyKey]models.TimetableEntry),
		daily:    make(map[dayKey]int),
		weekly:   make(map[resourceKey]int),
	}
}

// EntrySlotKey parses the slot key of a stored entry.
func EntrySlotKey(entry models.TimetableEntry) (SlotKey, error) {
	if !entry.Day.Valid() {
		return SlotKey{}, fmt.Errorf("unknown day %q", entry.Day)
	}
	start, err := models.ParseTimeSlotStart(entry.TimeSlot)
	if err != nil {
		return SlotKey{}, err
	}
	return SlotKey{Day: entry.Day, Start: start}, nil
}

func entryKeys(entry models.TimetableEntry, slot SlotKey) [3]occupancyKey {
	return [3]occupancyKey{
		{kind: models.ResourceFaculty, id: entry.FacultyID, slot: slot},
		{kind: models.ResourceClassroom, id: entry.ClassroomID, slot: slot},
		{kind: models.ResourceBatch, id: entry.BatchID, slot: slot},
	}
}

// Occupy marks the three keys of an entry. Nothing is marked when any key is taken.
func (x *AvailabilityIndex) Occupy(entry models.TimetableEntry) error {
	slot, err := EntrySlotKey(entry)
	if err != nil {
		return err
	}
	keys := entryKeys(entry, slot)
	for _, key := range keys {
		if _, taken := x.occupied[key]; taken {
			return fmt.Errorf("%w: %s %s at %s", ErrSlotConflict, key.kind, key.id, slot)
		}
	}
	for _, key := range keys {
		x.occupied[key] = entry
		x.daily[dayKey{kind: key.kind, id: key.id, day: slot.Day}]++
		x.weekly[resourceKey{kind: key.kind, id: key.id}]++
	}
	return nil
}

// Release frees the keys held by the entry. Keys held by a different assignment are left alone.
func (x *AvailabilityIndex) Release(entry models.TimetableEntry) {
	slot, err := EntrySlotKey(entry)
	if err != nil {
		return
	}
	for _, key := range entryKeys(entry, slot) {
		current, taken := x.occupied[key]
		if !taken || !sameAssignment(current, entry) {
			continue
		}
		delete(x.occupied, key)
		x.daily[dayKey{kind: key.kind, id: key.id, day: slot.Day}]--
		x.weekly[resourceKey{kind: key.kind, id: key.id}]--
	}
}

// IsFree reports whether the resource is unoccupied at the slot.
func (x *AvailabilityIndex) IsFree(kind models.ResourceKind, id string, slot SlotKey) bool {
	_, taken := x.occupied[occupancyKey{kind: kind, id: id, slot: slot}]
	return !taken
}

// Occupant returns the entry holding the resource at the slot.
func (x *AvailabilityIndex) Occupant(kind models.ResourceKind, id string, slot SlotKey) (models.TimetableEntry, bool) {
	entry, taken := x.occupied[occupancyKey{kind: kind, id: id, slot: slot}]
	return entry, taken
}

// DayLoad returns the number of slots the resource holds on the day.
func (x *AvailabilityIndex) DayLoad(kind models.ResourceKind, id string, day models.Weekday) int {
	return x.daily[dayKey{kind: kind, id: id, day: day}]
}

// Load returns the number of slots the resource holds across the week.
func (x *AvailabilityIndex) Load(kind models.ResourceKind, id string) int {
	return x.weekly[resourceKey{kind: kind, id: id}]
}

func sameAssignment(a, b models.TimetableEntry) bool {
	return a.ID == b.ID &&
		a.BatchID == b.BatchID &&
		a.SubjectID == b.SubjectID &&
		a.FacultyID == b.FacultyID &&
		a.ClassroomID == b.ClassroomID
}

// BuildIndex seeds an index from stored entries. Entries with unresolvable references,
// unparseable slots or clashing keys are left out and reported.
func BuildIndex(entries []models.TimetableEntry, catalog *Catalog) (*AvailabilityIndex, []models.StaleReference) {
	index := NewAvailabilityIndex()
	var stale []models.StaleReference
	for _, entry := range entries {
		if refs := catalog.staleReferences(entry); len(refs) > 0 {
			stale = append(stale, refs...)
			continue
		}
		if err := index.Occupy(entry); err != nil {
			stale = append(stale, models.StaleReference{
				EntryID:    entry.ID,
				Kind:       models.ResourceSlot,
				ReferredID: fmt.Sprintf("%s %s", entry.Day, entry.TimeSlot),
			})
		}
	}
	return index, stale
}
