package models

import "time"

// AbsenceStatus tracks an absence through substitution.
type AbsenceStatus string

const (
	AbsenceStatusPending     AbsenceStatus = "pending"
	AbsenceStatusApproved    AbsenceStatus = "approved"
	AbsenceStatusSubstituted AbsenceStatus = "substituted"
)

// Absence is a lecturer's reported unavailability for one dated time slot.
type Absence struct {
	ID           string        `db:"id" json:"id"`
	LecturerID   string        `db:"lecturer_id" json:"lecturer_id"`
	Date         string        `db:"date" json:"date"`
	TimeSlot     string        `db:"time_slot" json:"time_slot"`
	Reason       string        `db:"reason" json:"reason"`
	Status       AbsenceStatus `db:"status" json:"status"`
	SubstituteID *string       `db:"substitute_id" json:"substitute_id,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// SubstituteCandidate is a qualified, free faculty member ranked for a substitution.
type SubstituteCandidate struct {
	FacultyID   string `json:"faculty_id"`
	Name        string `json:"name"`
	Department  string `json:"department"`
	WeeklyHours int    `json:"weekly_hours"`
}
