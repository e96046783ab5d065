package scheduler

import (
	"sort"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// Catalog indexes reference data by id. Slices handed out by the catalog are sorted by id.
type Catalog struct {
	faculty    map[string]models.Faculty
	subjects   map[string]models.Subject
	classrooms map[string]models.Classroom
	batches    map[string]models.Batch

	facultyByID    []models.Faculty
	classroomsByID []models.Classroom
}

// NewCatalog builds a catalog. Duplicate ids keep the first occurrence.
func NewCatalog(faculty []models.Faculty, subjects []models.Subject, classrooms []models.Classroom, batches []models.Batch) *Catalog {
	c := &Catalog{
		faculty:    make(map[string]models.Faculty, len(faculty)),
		subjects:   make(map[string]models.Subject, len(subjects)),
		classrooms: make(map[string]models.Classroom, len(classrooms)),
		batches:    make(map[string]models.Batch, len(batches)),
	}
	for _, f := range faculty {
		if _, exists := c.faculty[f.ID]; !exists {
			c.faculty[f.ID] = f
			c.facultyByID = append(c.facultyByID, f)
		}
	}
	for _, s := range subjects {
		if _, exists := c.subjects[s.ID]; !exists {
			c.subjects[s.ID] = s
		}
	}
	for _, room := range classrooms {
		if _, exists := c.classrooms[room.ID]; !exists {
			c.classrooms[room.ID] = room
			c.classroomsByID = append(c.classroomsByID, room)
		}
	}
	for _, b := range batches {
		if _, exists := c.batches[b.ID]; !exists {
			c.batches[b.ID] = b
		}
	}
	sort.Slice(c.facultyByID, func(i, j int) bool { return c.facultyByID[i].ID < c.facultyByID[j].ID })
	sort.Slice(c.classroomsByID, func(i, j int) bool { return c.classroomsByID[i].ID < c.classroomsByID[j].ID })
	return c
}

func (c *Catalog) Faculty(id string) (models.Faculty, bool) {
	f, ok := c.faculty[id]
	return f, ok
}

func (c *Catalog) Subject(id string) (models.Subject, bool) {
	s, ok := c.subjects[id]
	return s, ok
}

func (c *Catalog) Classroom(id string) (models.Classroom, bool) {
	room, ok := c.classrooms[id]
	return room, ok
}

func (c *Catalog) Batch(id string) (models.Batch, bool) {
	b, ok := c.batches[id]
	return b, ok
}

// QualifiedFaculty returns the faculty able to teach the subject, in id order.
func (c *Catalog) QualifiedFaculty(subject models.Subject) []models.Faculty {
	var out []models.Faculty
	for _, f := range c.facultyByID {
		if f.CanTeach(subject) {
			out = append(out, f)
		}
	}
	return out
}

// CompatibleClassrooms returns the rooms that can host the batch for the subject, in id order.
func (c *Catalog) CompatibleClassrooms(subject models.Subject, batch models.Batch) []models.Classroom {
	var out []models.Classroom
	for _, room := range c.classroomsByID {
		if room.Hosts(subject, batch) {
			out = append(out, room)
		}
	}
	return out
}

// staleReferences lists the references of an entry that the catalog cannot resolve.
func (c *Catalog) staleReferences(entry models.TimetableEntry) []models.StaleReference {
	var stale []models.StaleReference
	check := func(kind models.ResourceKind, id string, ok bool) {
		if !ok {
			stale = append(stale, models.StaleReference{EntryID: entry.ID, Kind: kind, ReferredID: id})
		}
	}
	_, ok := c.faculty[entry.FacultyID]
	check(models.ResourceFaculty, entry.FacultyID, ok)
	_, ok = c.classrooms[entry.ClassroomID]
	check(models.ResourceClassroom, entry.ClassroomID, ok)
	_, ok = c.batches[entry.BatchID]
	check(models.ResourceBatch, entry.BatchID, ok)
	_, ok = c.subjects[entry.SubjectID]
	check(models.ResourceSubject, entry.SubjectID, ok)
	return stale
}
