package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Faculty represents a lecturer that can be assigned to timetable slots.
type Faculty struct {
	ID         string         `db:"id" json:"id"`
	Name       string         `db:"name" json:"name"`
	Email      string         `db:"email" json:"email"`
	Department string         `db:"department" json:"department"`
	Subjects   pq.StringArray `db:"subjects" json:"subjects"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// CanTeach reports whether the subject name or code appears in the teachable list.
func (f Faculty) CanTeach(subject Subject) bool {
	for _, raw := range f.Subjects {
		name := strings.TrimSpace(raw)
		if strings.EqualFold(name, subject.Name) || (subject.Code != "" && strings.EqualFold(name, subject.Code)) {
			return true
		}
	}
	return false
}
