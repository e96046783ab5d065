package scheduler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

func cse4A() models.Batch {
	return models.Batch{ID: "b-cse4a", Name: "CSE-4A", Department: "CSE", Year: 2, Semester: 4, StudentCount: 60}
}

func subject(id, code, name string, kind models.SubjectType, hours int) models.Subject {
	return models.Subject{ID: id, Code: code, Name: name, Department: "CSE", Year: 2, Semester: 4, Type: kind, HoursPerWeek: hours}
}

func lecturer(id string, subjects ...string) models.Faculty {
	return models.Faculty{ID: id, Name: "Dr " + id, Department: "CSE", Subjects: subjects}
}

func room(id string, kind models.ClassroomType, capacity int) models.Classroom {
	return models.Classroom{ID: id, Name: id, Type: kind, Capacity: capacity}
}

func compactConstraints(start, end string) models.Constraints {
	c := models.DefaultConstraints()
	c.StartTime = models.MustClockTime(start)
	c.EndTime = models.MustClockTime(end)
	c.BreakDuration = 0
	c.LunchBreakDuration = 0
	return c
}

func slotsOf(entries []models.TimetableEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, fmt.Sprintf("%s %s %s", e.Day, e.TimeSlot, e.FacultyID))
	}
	return out
}

func TestGeneratorReportsLabWithoutCompatibleRoom(t *testing.T) {
	gen := NewGenerator(Options{MaxBacktracks: DefaultMaxBacktracks})
	res, err := gen.Generate(context.Background(), Input{
		Batches: []models.Batch{cse4A()},
		Subjects: []models.Subject{
			subject("s-ds", "CS201", "Data Structures", models.SubjectTypeTheory, 3),
			subject("s-os", "CS202L", "OS Lab", models.SubjectTypeLab, 2),
		},
		Faculty: []models.Faculty{
			lecturer("f-1", "Data Structures", "OS Lab"),
			lecturer("f-2", "Data Structures", "OS Lab"),
		},
		Classrooms: []models.Classroom{
			room("room-hall", models.ClassroomTypeLectureHall, 60),
			room("room-lab", models.ClassroomTypeLab, 40),
		},
		Constraints: models.DefaultConstraints(),
	})
	require.NoError(t, err)

	require.Len(t, res.Entries, 3)
	for _, e := range res.Entries {
		assert.Equal(t, "s-ds", e.SubjectID)
		assert.Equal(t, "room-hall", e.ClassroomID)
	}
	assert.Equal(t, []string{
		"monday 09:00-10:00 f-1",
		"monday 10:15-11:15 f-2",
		"monday 13:00-14:00 f-1",
	}, slotsOf(res.Entries))

	require.Len(t, res.Report.Unscheduled, 1)
	missing := res.Report.Unscheduled[0]
	assert.Equal(t, "CS202L", missing.SubjectCode)
	assert.Equal(t, models.ReasonNoCompatibleClassroom, missing.Reason)
	assert.Equal(t, 2, missing.MissingHours)
	assert.True(t, missing.Reason.Unsatisfiable())
	assert.Equal(t, 2, res.Report.Units)
	assert.Equal(t, 5, res.Report.RequiredHours)
	assert.Equal(t, 3, res.Report.ScheduledHours)
	assert.True(t, res.Report.Partial())
}

func TestGeneratorReportsSubjectWithoutFaculty(t *testing.T) {
	gen := NewGenerator(Options{})
	res, err := gen.Generate(context.Background(), Input{
		Batches: []models.Batch{cse4A()},
		Subjects: []models.Subject{
			subject("s-ds", "CS201", "Data Structures", models.SubjectTypeTheory, 2),
			subject("s-ai", "CS299", "Quantum Basket Weaving", models.SubjectTypeTheory, 2),
		},
		Faculty:     []models.Faculty{lecturer("f-1", "cs201")},
		Classrooms:  []models.Classroom{room("room-hall", models.ClassroomTypeLectureHall, 80)},
		Constraints: models.DefaultConstraints(),
	})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 2, "subject code matches case-insensitively")
	require.Len(t, res.Report.Unscheduled, 1)
	assert.Equal(t, models.ReasonNoQualifiedFaculty, res.Report.Unscheduled[0].Reason)
}

func TestGeneratorCapsConsecutiveHours(t *testing.T) {
	c := compactConstraints("09:00", "13:00")
	c.MaxConsecutiveHours = 2

	gen := NewGenerator(Options{MaxBacktracks: DefaultMaxBacktracks})
	res, err := gen.Generate(context.Background(), Input{
		Batches:     []models.Batch{cse4A()},
		Subjects:    []models.Subject{subject("s-ds", "CS201", "Data Structures", models.SubjectTypeTheory, 4)},
		Faculty:     []models.Faculty{lecturer("f-1", "Data Structures")},
		Classrooms:  []models.Classroom{room("room-hall", models.ClassroomTypeLectureHall, 60)},
		Constraints: c,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"monday 09:00-10:00 f-1",
		"monday 10:00-11:00 f-1",
		"monday 12:00-13:00 f-1",
		"tuesday 09:00-10:00 f-1",
	}, slotsOf(res.Entries))
	assert.Empty(t, res.Report.Unscheduled)
}

func TestGeneratorKeepsLabsApart(t *testing.T) {
	input := Input{
		Batches:     []models.Batch{cse4A()},
		Subjects:    []models.Subject{subject("s-os", "CS202L", "OS Lab", models.SubjectTypeLab, 2)},
		Faculty:     []models.Faculty{lecturer("f-1", "OS Lab"), lecturer("f-2", "OS Lab")},
		Classrooms:  []models.Classroom{room("room-lab", models.ClassroomTypeLab, 60)},
		Constraints: compactConstraints("09:00", "12:00"),
	}
	gen := NewGenerator(Options{})

	res, err := gen.Generate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []string{"monday 09:00-10:00 f-1", "monday 11:00-12:00 f-2"}, slotsOf(res.Entries))

	input.Constraints.NoBackToBackLabs = false
	res, err = gen.Generate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []string{"monday 09:00-10:00 f-1", "monday 10:00-11:00 f-2"}, slotsOf(res.Entries))
}

func TestGeneratorBacktracksThenReportsShortfall(t *testing.T) {
	c := models.DefaultConstraints()
	c.MaxHoursPerDay = 1

	gen := NewGenerator(Options{MaxBacktracks: 3})
	res, err := gen.Generate(context.Background(), Input{
		Batches:     []models.Batch{cse4A()},
		Subjects:    []models.Subject{subject("s-ds", "CS201", "Data Structures", models.SubjectTypeTheory, 8)},
		Faculty:     []models.Faculty{lecturer("f-1", "Data Structures")},
		Classrooms:  []models.Classroom{room("room-hall", models.ClassroomTypeLectureHall, 60)},
		Constraints: c,
	})
	require.NoError(t, err)

	require.Len(t, res.Entries, 6)
	days := map[models.Weekday]int{}
	for _, e := range res.Entries {
		days[e.Day]++
	}
	for _, day := range models.WorkingDays {
		assert.Equal(t, 1, days[day], day)
	}
	assert.Equal(t, 3, res.Report.Backtracks)
	require.Len(t, res.Report.Unscheduled, 1)
	assert.Equal(t, models.ReasonNoFeasibleSlot, res.Report.Unscheduled[0].Reason)
	assert.Equal(t, 2, res.Report.Unscheduled[0].MissingHours)
	assert.Equal(t, 6, res.Report.Unscheduled[0].ScheduledHours)
}

func TestGeneratorKeepsGreedyHoursWhenBacktrackingFails(t *testing.T) {
	gen := NewGenerator(Options{MaxBacktracks: DefaultMaxBacktracks})
	res, err := gen.Generate(context.Background(), Input{
		Batches:     []models.Batch{cse4A()},
		Subjects:    []models.Subject{subject("s-ds", "CS201", "Data Structures", models.SubjectTypeTheory, 7)},
		Faculty:     []models.Faculty{lecturer("f-1", "Data Structures")},
		Classrooms:  []models.Classroom{room("room-hall", models.ClassroomTypeLectureHall, 60)},
		Constraints: compactConstraints("09:00", "10:00"),
	})
	require.NoError(t, err)

	require.Len(t, res.Entries, 6)
	days := map[models.Weekday]int{}
	for _, e := range res.Entries {
		days[e.Day]++
		assert.Equal(t, "09:00-10:00", e.TimeSlot)
	}
	assert.Len(t, days, 6)
	require.Len(t, res.Report.Unscheduled, 1)
	assert.Equal(t, 6, res.Report.Unscheduled[0].ScheduledHours)
	assert.Equal(t, 1, res.Report.Unscheduled[0].MissingHours)
	assert.Equal(t, models.ReasonNoFeasibleSlot, res.Report.Unscheduled[0].Reason)
	assert.Equal(t, 6, res.Report.ScheduledHours)
}

func TestGeneratorRespectsOtherBatchesAndReplacesOwn(t *testing.T) {
	other := models.Batch{ID: "b-other", Name: "CSE-2B", Department: "CSE", Year: 1, Semester: 2, StudentCount: 30}
	gen := NewGenerator(Options{})
	res, err := gen.Generate(context.Background(), Input{
		Batches:      []models.Batch{cse4A()},
		OtherBatches: []models.Batch{other},
		Subjects:     []models.Subject{subject("s-ds", "CS201", "Data Structures", models.SubjectTypeTheory, 1)},
		Faculty:      []models.Faculty{lecturer("f-1", "Data Structures")},
		Classrooms:   []models.Classroom{room("room-hall", models.ClassroomTypeLectureHall, 60)},
		Existing: []models.TimetableEntry{
			entryAt("old-own", "b-cse4a", "s-ds", "f-1", "room-hall", models.Monday, "10:15-11:15"),
			entryAt("kept", "b-other", "s-ds", "f-1", "room-hall", models.Monday, "09:00-10:00"),
		},
		Constraints: models.DefaultConstraints(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"monday 10:15-11:15 f-1"}, slotsOf(res.Entries))
	assert.Empty(t, res.Report.Stale)
}

func TestGeneratorStopsOnExpiredContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := NewGenerator(Options{})
	res, err := gen.Generate(ctx, Input{
		Batches:     []models.Batch{cse4A()},
		Subjects:    []models.Subject{subject("s-ds", "CS201", "Data Structures", models.SubjectTypeTheory, 3)},
		Faculty:     []models.Faculty{lecturer("f-1", "Data Structures")},
		Classrooms:  []models.Classroom{room("room-hall", models.ClassroomTypeLectureHall, 60)},
		Constraints: models.DefaultConstraints(),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.True(t, res.Report.TimedOut)
	require.Len(t, res.Report.Unscheduled, 1)
	assert.Equal(t, models.ReasonTimeout, res.Report.Unscheduled[0].Reason)
}

func TestGeneratorRejectsInvalidConstraints(t *testing.T) {
	c := models.DefaultConstraints()
	c.PeriodDuration = 0
	_, err := NewGenerator(Options{}).Generate(context.Background(), Input{Batches: []models.Batch{cse4A()}, Constraints: c})
	assert.ErrorIs(t, err, ErrInvalidConstraints)
}

func departmentFixture() Input {
	batches := []models.Batch{
		cse4A(),
		{ID: "b-cse4b", Name: "CSE-4B", Department: "CSE", Year: 2, Semester: 4, StudentCount: 45},
	}
	subjects := []models.Subject{
		subject("s-ds", "CS201", "Data Structures", models.SubjectTypeTheory, 4),
		subject("s-alg", "CS203", "Algorithms", models.SubjectTypeTheory, 3),
		subject("s-db", "CS204", "Databases", models.SubjectTypeTheory, 3),
		subject("s-os", "CS202L", "OS Lab", models.SubjectTypeLab, 2),
		subject("s-dbl", "CS204L", "DB Lab", models.SubjectTypeLab, 2),
	}
	faculty := []models.Faculty{
		lecturer("f-1", "Data Structures", "Algorithms"),
		lecturer("f-2", "Algorithms", "Databases", "DB Lab"),
		lecturer("f-3", "OS Lab", "Data Structures"),
		lecturer("f-4", "Databases", "DB Lab", "OS Lab"),
	}
	rooms := []models.Classroom{
		room("room-101", models.ClassroomTypeLectureHall, 60),
		room("room-102", models.ClassroomTypeSeminarRoom, 50),
		room("lab-1", models.ClassroomTypeLab, 60),
	}
	return Input{Batches: batches, Subjects: subjects, Faculty: faculty, Classrooms: rooms, Constraints: models.DefaultConstraints()}
}

func TestGeneratorOutputHoldsInvariants(t *testing.T) {
	in := departmentFixture()
	res, err := NewGenerator(Options{MaxBacktracks: DefaultMaxBacktracks}).Generate(context.Background(), in)
	require.NoError(t, err)

	grid, err := BuildSlotGrid(in.Constraints)
	require.NoError(t, err)
	catalog := NewCatalog(in.Faculty, in.Subjects, in.Classrooms, in.Batches)

	seen := map[string]bool{}
	perUnit := map[string]int{}
	batchDay := map[string]int{}
	for _, e := range res.Entries {
		for _, key := range []string{
			"batch|" + e.BatchID + "|" + string(e.Day) + "|" + e.TimeSlot,
			"faculty|" + e.FacultyID + "|" + string(e.Day) + "|" + e.TimeSlot,
			"room|" + e.ClassroomID + "|" + string(e.Day) + "|" + e.TimeSlot,
		} {
			assert.False(t, seen[key], "double booking %s", key)
			seen[key] = true
		}
		perUnit[e.BatchID+"|"+e.SubjectID]++
		batchDay[e.BatchID+"|"+string(e.Day)]++

		s, _ := catalog.Subject(e.SubjectID)
		r, _ := catalog.Classroom(e.ClassroomID)
		b, _ := catalog.Batch(e.BatchID)
		f, _ := catalog.Faculty(e.FacultyID)
		assert.Equal(t, s.IsLab(), r.Type == models.ClassroomTypeLab)
		assert.GreaterOrEqual(t, r.Capacity, b.StudentCount)
		assert.True(t, f.CanTeach(s))
	}

	short := map[string]bool{}
	for _, u := range res.Report.Unscheduled {
		short[u.BatchID+"|"+u.SubjectID] = true
	}
	for _, b := range in.Batches {
		for _, s := range in.Subjects {
			key := b.ID + "|" + s.ID
			if !short[key] {
				assert.Equal(t, s.HoursPerWeek, perUnit[key], key)
			}
		}
		for _, day := range models.WorkingDays {
			assert.LessOrEqual(t, batchDay[b.ID+"|"+string(day)], in.Constraints.MaxHoursPerDay)
		}
	}

	// contiguous runs per faculty and lab adjacency per batch
	for _, day := range models.WorkingDays {
		for _, f := range in.Faculty {
			run := 0
			prevBlock := -1
			for _, slot := range grid.Day(day) {
				busy := seen["faculty|"+f.ID+"|"+string(day)+"|"+slot.Label()]
				if !busy || slot.Block != prevBlock {
					run = 0
				}
				if busy {
					run++
				}
				prevBlock = slot.Block
				assert.LessOrEqual(t, run, in.Constraints.MaxConsecutiveHours, "%s on %s", f.ID, day)
			}
		}
	}
	labAt := map[string]bool{}
	for _, e := range res.Entries {
		if s, _ := catalog.Subject(e.SubjectID); s.IsLab() {
			labAt[e.BatchID+"|"+string(e.Day)+"|"+e.TimeSlot] = true
		}
	}
	for _, b := range in.Batches {
		for _, slot := range grid.Slots() {
			next, ok := grid.Neighbour(slot, 1)
			if !ok {
				continue
			}
			both := labAt[b.ID+"|"+string(slot.Day)+"|"+slot.Label()] && labAt[b.ID+"|"+string(next.Day)+"|"+next.Label()]
			assert.False(t, both, "adjacent labs for %s at %s", b.ID, slot.Key())
		}
	}
}

func TestGeneratorIsDeterministic(t *testing.T) {
	in := departmentFixture()
	gen := NewGenerator(Options{MaxBacktracks: DefaultMaxBacktracks})
	first, err := gen.Generate(context.Background(), in)
	require.NoError(t, err)

	reversed := departmentFixture()
	reverse(reversed.Batches)
	reverse(reversed.Subjects)
	reverse(reversed.Faculty)
	reverse(reversed.Classrooms)
	second, err := gen.Generate(context.Background(), reversed)
	require.NoError(t, err)

	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, first.Report, second.Report)
}

func reverse[T any](items []T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
