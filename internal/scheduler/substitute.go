package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// Clock supplies the current time for absences that do not carry a calendar date.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// ResolveInput is the live data a substitution is computed against.
type ResolveInput struct {
	Absence    models.Absence
	Timetable  []models.TimetableEntry
	Faculty    []models.Faculty
	Subjects   []models.Subject
	Classrooms []models.Classroom
	Batches    []models.Batch
}

// Resolution is the outcome of one substitution. Updated is nil when nobody qualifies.
type Resolution struct {
	Day        models.Weekday
	Slot       SlotKey
	Original   models.TimetableEntry
	Updated    *models.TimetableEntry
	Absence    models.Absence
	Candidates []models.SubstituteCandidate
	Stale      []models.StaleReference
}

// Found reports whether a substitute was chosen.
func (r *Resolution) Found() bool {
	return r != nil && r.Updated != nil
}

// SubstituteID returns the chosen faculty id or an empty string.
func (r *Resolution) SubstituteID() string {
	if !r.Found() {
		return ""
	}
	return r.Updated.FacultyID
}

// Resolver picks a substitute for an absent lecturer from the live timetable.
type Resolver struct {
	clock Clock
}

// NewResolver constructs a resolver. A nil clock falls back to the system clock.
func NewResolver(clock Clock) *Resolver {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Resolver{clock: clock}
}

// AbsenceDay maps an absence date onto a working day. It accepts an ISO date
// ("2024-03-13"), a weekday name ("Wednesday"), or an empty value / "today".
// Sundays resolve to ErrEntryNotFound since nothing is ever scheduled on them.
func (r *Resolver) AbsenceDay(raw string) (models.Weekday, error) {
	raw = strings.TrimSpace(raw)
	var date time.Time
	switch {
	case raw == "" || strings.EqualFold(raw, "today"):
		date = r.clock.Now()
	default:
		if day, ok := models.ParseWeekday(raw); ok {
			return day, nil
		}
		parsed, err := parseAbsenceDate(raw)
		if err != nil {
			return "", fmt.Errorf("%w: date %q", ErrInvalidAbsence, raw)
		}
		date = parsed
	}
	day, ok := models.WeekdayFromTime(date)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a working day", ErrEntryNotFound, date.Format("2006-01-02"))
	}
	return day, nil
}

func parseAbsenceDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// Resolve locates the absent lecturer's entry at the absence slot and picks the
// least-loaded free colleague from the same department who can teach the subject.
// Finding nobody is a normal outcome and leaves the absence untouched.
func (r *Resolver) Resolve(in ResolveInput) (*Resolution, error) {
	day, err := r.AbsenceDay(in.Absence.Date)
	if err != nil {
		return nil, err
	}
	start, err := models.ParseTimeSlotStart(in.Absence.TimeSlot)
	if err != nil {
		return nil, fmt.Errorf("%w: time slot %q", ErrInvalidAbsence, in.Absence.TimeSlot)
	}
	slot := SlotKey{Day: day, Start: start}

	entry, ok := findTaughtEntry(in.Timetable, in.Absence.LecturerID, slot)
	if !ok {
		return nil, fmt.Errorf("%w: lecturer %s at %s", ErrEntryNotFound, in.Absence.LecturerID, slot)
	}

	catalog := NewCatalog(in.Faculty, in.Subjects, in.Classrooms, in.Batches)
	index, stale := BuildIndex(in.Timetable, catalog)
	res := &Resolution{
		Day:      day,
		Slot:     slot,
		Original: entry,
		Absence:  in.Absence,
		Stale:    stale,
	}

	lecturer, ok := catalog.Faculty(in.Absence.LecturerID)
	if !ok {
		res.Stale = append(res.Stale, models.StaleReference{AbsenceID: in.Absence.ID, Kind: models.ResourceFaculty, ReferredID: in.Absence.LecturerID})
		return res, nil
	}
	subject, ok := catalog.Subject(entry.SubjectID)
	if !ok {
		res.Stale = append(res.Stale, models.StaleReference{EntryID: entry.ID, Kind: models.ResourceSubject, ReferredID: entry.SubjectID})
		return res, nil
	}

	for _, f := range catalog.QualifiedFaculty(subject) {
		if f.ID == lecturer.ID || !strings.EqualFold(f.Department, lecturer.Department) {
			continue
		}
		if !index.IsFree(models.ResourceFaculty, f.ID, slot) {
			continue
		}
		res.Candidates = append(res.Candidates, models.SubstituteCandidate{
			FacultyID:   f.ID,
			Name:        f.Name,
			Department:  f.Department,
			WeeklyHours: index.Load(models.ResourceFaculty, f.ID),
		})
	}
	sort.SliceStable(res.Candidates, func(i, j int) bool {
		if res.Candidates[i].WeeklyHours != res.Candidates[j].WeeklyHours {
			return res.Candidates[i].WeeklyHours < res.Candidates[j].WeeklyHours
		}
		return res.Candidates[i].FacultyID < res.Candidates[j].FacultyID
	})
	if len(res.Candidates) == 0 {
		return res, nil
	}

	chosen := res.Candidates[0].FacultyID
	updated := entry
	updated.FacultyID = chosen
	res.Updated = &updated
	res.Absence.Status = models.AbsenceStatusSubstituted
	res.Absence.SubstituteID = &chosen
	return res, nil
}

// findTaughtEntry returns the lecturer's entry at the slot. Ties on corrupt data go to the lowest id.
func findTaughtEntry(entries []models.TimetableEntry, lecturerID string, slot SlotKey) (models.TimetableEntry, bool) {
	var found models.TimetableEntry
	ok := false
	for _, entry := range entries {
		if entry.FacultyID != lecturerID {
			continue
		}
		key, err := EntrySlotKey(entry)
		if err != nil || key != slot {
			continue
		}
		if !ok || entry.ID < found.ID {
			found, ok = entry, true
		}
	}
	return found, ok
}
