package models

import (
	"strings"
	"time"
)

// Batch represents a cohort of students that attends every subject of its department/year/semester.
type Batch struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Department   string    `db:"department" json:"department"`
	Year         int       `db:"year" json:"year"`
	Semester     int       `db:"semester" json:"semester"`
	StudentCount int       `db:"student_count" json:"student_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Requires reports whether the batch must take the subject.
func (b Batch) Requires(subject Subject) bool {
	return strings.EqualFold(b.Department, subject.Department) &&
		b.Year == subject.Year &&
		b.Semester == subject.Semester
}
