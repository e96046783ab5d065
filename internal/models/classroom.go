package models

import (
	"time"

	"github.com/lib/pq"
)

// ClassroomType enumerates the kinds of rooms available for scheduling.
type ClassroomType string

const (
	ClassroomTypeLectureHall ClassroomType = "lecture_hall"
	ClassroomTypeLab         ClassroomType = "lab"
	ClassroomTypeSeminarRoom ClassroomType = "seminar_room"
)

// Classroom is a bookable room.
type Classroom struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Capacity  int            `db:"capacity" json:"capacity"`
	Type      ClassroomType  `db:"type" json:"type"`
	Equipment pq.StringArray `db:"equipment" json:"equipment"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Hosts reports whether the room type and capacity fit the subject for the batch.
// Lab subjects need lab rooms; theory subjects use lecture halls or seminar rooms.
func (c Classroom) Hosts(subject Subject, batch Batch) bool {
	if c.Capacity < batch.StudentCount {
		return false
	}
	if subject.IsLab() {
		return c.Type == ClassroomTypeLab
	}
	return c.Type != ClassroomTypeLab
}
