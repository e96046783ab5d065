package models

import "time"

// TimetableEntry places one subject hour of a batch with a faculty member and classroom.
// (batch_id, day, time_slot) is unique.
type TimetableEntry struct {
	ID          string    `db:"id" json:"id"`
	BatchID     string    `db:"batch_id" json:"batch_id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	FacultyID   string    `db:"faculty_id" json:"faculty_id"`
	ClassroomID string    `db:"classroom_id" json:"classroom_id"`
	Day         Weekday   `db:"day" json:"day"`
	TimeSlot    string    `db:"time_slot" json:"time_slot"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// TimetableEntryDetail is an entry joined with display names for read views.
type TimetableEntryDetail struct {
	TimetableEntry
	SubjectName   string `db:"subject_name" json:"subject_name"`
	SubjectCode   string `db:"subject_code" json:"subject_code"`
	FacultyName   string `db:"faculty_name" json:"faculty_name"`
	ClassroomName string `db:"classroom_name" json:"classroom_name"`
	BatchName     string `db:"batch_name" json:"batch_name"`
}

// UnscheduledReason explains why a unit is short of hours.
type UnscheduledReason string

const (
	ReasonNoQualifiedFaculty    UnscheduledReason = "NO_QUALIFIED_FACULTY"
	ReasonNoCompatibleClassroom UnscheduledReason = "NO_COMPATIBLE_CLASSROOM"
	ReasonNoFeasibleSlot        UnscheduledReason = "NO_FEASIBLE_SLOT"
	ReasonTimeout               UnscheduledReason = "TIMEOUT"
)

// Unsatisfiable reports whether the reason is a structural impossibility rather than a packing failure.
func (r UnscheduledReason) Unsatisfiable() bool {
	return r == ReasonNoQualifiedFaculty || r == ReasonNoCompatibleClassroom
}

// UnscheduledUnit is a (batch, subject) pair that did not receive all of its weekly hours.
type UnscheduledUnit struct {
	BatchID        string            `json:"batch_id"`
	BatchName      string            `json:"batch_name"`
	SubjectID      string            `json:"subject_id"`
	SubjectCode    string            `json:"subject_code"`
	SubjectName    string            `json:"subject_name"`
	RequiredHours  int               `json:"required_hours"`
	ScheduledHours int               `json:"scheduled_hours"`
	MissingHours   int               `json:"missing_hours"`
	Reason         UnscheduledReason `json:"reason"`
}

// ResourceKind names the kind of entity an occupancy key or reference points to.
type ResourceKind string

const (
	ResourceFaculty   ResourceKind = "faculty"
	ResourceClassroom ResourceKind = "classroom"
	ResourceBatch     ResourceKind = "batch"
	ResourceSubject   ResourceKind = "subject"
	// ResourceSlot marks an entry whose day/time slot cannot be placed on the grid.
	ResourceSlot ResourceKind = "slot"
)

// StaleReference records a row pointing at an entity that no longer exists.
type StaleReference struct {
	EntryID    string       `json:"entry_id,omitempty"`
	AbsenceID  string       `json:"absence_id,omitempty"`
	Kind       ResourceKind `json:"kind"`
	ReferredID string       `json:"referred_id"`
}

// GenerationReport summarises a generation run. A non-empty Unscheduled list is a partial schedule.
type GenerationReport struct {
	Units          int               `json:"units"`
	RequiredHours  int               `json:"required_hours"`
	ScheduledHours int               `json:"scheduled_hours"`
	Backtracks     int               `json:"backtracks"`
	TimedOut       bool              `json:"timed_out"`
	Unscheduled    []UnscheduledUnit `json:"unscheduled"`
	Stale          []StaleReference  `json:"stale_references"`
}

// Partial reports whether any required hour is missing.
func (r GenerationReport) Partial() bool {
	return len(r.Unscheduled) > 0
}
