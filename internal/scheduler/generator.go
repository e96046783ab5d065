package scheduler

import (
	"context"
	"sort"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// DefaultMaxBacktracks bounds how many placed hours a unit may give back before it is reported.
const DefaultMaxBacktracks = 3

// Options tunes the generator.
type Options struct {
	MaxBacktracks int
}

// Input is everything a generation run reads. Batches are the batches being (re)generated;
// OtherBatches are kept only to resolve Existing entries that belong to batches outside the run.
type Input struct {
	Batches      []models.Batch
	OtherBatches []models.Batch
	Subjects     []models.Subject
	Faculty      []models.Faculty
	Classrooms   []models.Classroom
	Existing     []models.TimetableEntry
	Constraints  models.Constraints
}

// Result carries the produced entries and the run report.
type Result struct {
	Entries []models.TimetableEntry
	Report  models.GenerationReport
}

// Generator assigns every required subject hour of a set of batches to a
// (faculty, classroom, slot) triple using greedy placement with bounded backtracking.
type Generator struct {
	opts Options
}

// NewGenerator constructs a generator.
func NewGenerator(opts Options) *Generator {
	if opts.MaxBacktracks < 0 {
		opts.MaxBacktracks = 0
	}
	return &Generator{opts: opts}
}

type unit struct {
	batch      models.Batch
	subject    models.Subject
	faculty    []models.Faculty
	classrooms []models.Classroom
}

type run struct {
	opts        Options
	constraints models.Constraints
	grid        *SlotGrid
	catalog     *Catalog
	index       *AvailabilityIndex
	assigned    map[resourceKey]int
	entries     []models.TimetableEntry
	report      models.GenerationReport
}

// Generate runs one generation. Only invalid constraints fail the call; everything else
// ends up in the report. When ctx expires the hours placed so far are returned and the
// remainder is reported with reason TIMEOUT.
func (g *Generator) Generate(ctx context.Context, in Input) (*Result, error) {
	grid, err := BuildSlotGrid(in.Constraints)
	if err != nil {
		return nil, err
	}

	batches := dedupeBatches(in.Batches)
	catalog := NewCatalog(in.Faculty, in.Subjects, in.Classrooms, append(append([]models.Batch{}, batches...), in.OtherBatches...))

	regenerating := make(map[string]struct{}, len(batches))
	for _, b := range batches {
		regenerating[b.ID] = struct{}{}
	}
	kept := make([]models.TimetableEntry, 0, len(in.Existing))
	for _, entry := range in.Existing {
		if _, replaced := regenerating[entry.BatchID]; !replaced {
			kept = append(kept, entry)
		}
	}
	index, stale := BuildIndex(kept, catalog)

	r := &run{
		opts:        g.opts,
		constraints: in.Constraints,
		grid:        grid,
		catalog:     catalog,
		index:       index,
		assigned:    make(map[resourceKey]int),
		report:      models.GenerationReport{Stale: stale},
	}

	for _, u := range buildUnits(batches, in.Subjects, catalog) {
		if ctx.Err() != nil {
			r.report.TimedOut = true
			r.account(u, 0, models.ReasonTimeout)
			continue
		}
		r.schedule(ctx, u)
	}

	r.sortEntries()
	return &Result{Entries: r.entries, Report: r.report}, nil
}

func dedupeBatches(batches []models.Batch) []models.Batch {
	seen := make(map[string]struct{}, len(batches))
	out := make([]models.Batch, 0, len(batches))
	for _, b := range batches {
		if _, dup := seen[b.ID]; dup {
			continue
		}
		seen[b.ID] = struct{}{}
		out = append(out, b)
	}
	return out
}

// buildUnits expands batches into (batch, subject) units in placement priority order:
// labs first, then more weekly hours first, then batch name, then subject code.
func buildUnits(batches []models.Batch, subjects []models.Subject, catalog *Catalog) []unit {
	var units []unit
	for _, b := range batches {
		for _, s := range subjects {
			if s.HoursPerWeek <= 0 || !b.Requires(s) {
				continue
			}
			units = append(units, unit{
				batch:      b,
				subject:    s,
				faculty:    catalog.QualifiedFaculty(s),
				classrooms: catalog.CompatibleClassrooms(s, b),
			})
		}
	}
	sort.SliceStable(units, func(i, j int) bool {
		a, b := units[i], units[j]
		if a.subject.IsLab() != b.subject.IsLab() {
			return a.subject.IsLab()
		}
		if a.subject.HoursPerWeek != b.subject.HoursPerWeek {
			return a.subject.HoursPerWeek > b.subject.HoursPerWeek
		}
		if a.batch.Name != b.batch.Name {
			return a.batch.Name < b.batch.Name
		}
		if a.subject.Code != b.subject.Code {
			return a.subject.Code < b.subject.Code
		}
		if a.batch.ID != b.batch.ID {
			return a.batch.ID < b.batch.ID
		}
		return a.subject.ID < b.subject.ID
	})
	return units
}

func (r *run) schedule(ctx context.Context, u unit) {
	if len(u.faculty) == 0 {
		r.account(u, 0, models.ReasonNoQualifiedFaculty)
		return
	}
	if len(u.classrooms) == 0 {
		r.account(u, 0, models.ReasonNoCompatibleClassroom)
		return
	}

	required := u.subject.HoursPerWeek
	placed := make([]models.TimetableEntry, 0, required)
	var best []models.TimetableEntry
	tabu := make(map[SlotKey]bool)
	backtracks := 0
	var reason models.UnscheduledReason

	for len(placed) < required {
		if ctx.Err() != nil {
			r.report.TimedOut = true
			reason = models.ReasonTimeout
			break
		}
		if entry, ok := r.place(u, tabu); ok {
			placed = append(placed, entry)
			continue
		}
		if len(placed) > len(best) {
			best = append(best[:0:0], placed...)
		}
		if len(placed) == 0 || backtracks >= r.opts.MaxBacktracks {
			reason = models.ReasonNoFeasibleSlot
			break
		}
		last := placed[len(placed)-1]
		placed = placed[:len(placed)-1]
		r.release(last)
		if key, err := EntrySlotKey(last); err == nil {
			tabu[key] = true
		}
		backtracks++
		r.report.Backtracks++
	}

	// A backtrack is only kept when it ends with more hours than before it started.
	if len(best) > len(placed) {
		placed = r.restore(placed, best)
	}

	r.entries = append(r.entries, placed...)
	r.account(u, len(placed), reason)
}

// restore swaps the unit's current placements for an earlier, larger set.
func (r *run) restore(current, previous []models.TimetableEntry) []models.TimetableEntry {
	for _, entry := range current {
		r.release(entry)
	}
	restored := make([]models.TimetableEntry, 0, len(previous))
	for _, entry := range previous {
		if err := r.index.Occupy(entry); err != nil {
			continue
		}
		r.assigned[resourceKey{kind: models.ResourceFaculty, id: entry.FacultyID}]++
		r.assigned[resourceKey{kind: models.ResourceClassroom, id: entry.ClassroomID}]++
		restored = append(restored, entry)
	}
	return restored
}

// account adds the unit to the totals and, when short, to the unscheduled list.
func (r *run) account(u unit, scheduled int, reason models.UnscheduledReason) {
	required := u.subject.HoursPerWeek
	r.report.Units++
	r.report.RequiredHours += required
	r.report.ScheduledHours += scheduled
	if scheduled >= required {
		return
	}
	r.report.Unscheduled = append(r.report.Unscheduled, models.UnscheduledUnit{
		BatchID:        u.batch.ID,
		BatchName:      u.batch.Name,
		SubjectID:      u.subject.ID,
		SubjectCode:    u.subject.Code,
		SubjectName:    u.subject.Name,
		RequiredHours:  required,
		ScheduledHours: scheduled,
		MissingHours:   required - scheduled,
		Reason:         reason,
	})
}

// place finds the first slot in grid order that can take one hour of the unit and occupies it.
func (r *run) place(u unit, tabu map[SlotKey]bool) (models.TimetableEntry, bool) {
	for _, slot := range r.grid.Slots() {
		key := slot.Key()
		if tabu[key] || !r.batchCanTake(u, slot) {
			continue
		}
		faculty, ok := r.pickFaculty(u, slot)
		if !ok {
			continue
		}
		room, ok := r.pickClassroom(u, slot)
		if !ok {
			continue
		}
		entry := models.TimetableEntry{
			BatchID:     u.batch.ID,
			SubjectID:   u.subject.ID,
			FacultyID:   faculty.ID,
			ClassroomID: room.ID,
			Day:         slot.Day,
			TimeSlot:    slot.Label(),
		}
		if err := r.index.Occupy(entry); err != nil {
			continue
		}
		r.assigned[resourceKey{kind: models.ResourceFaculty, id: faculty.ID}]++
		r.assigned[resourceKey{kind: models.ResourceClassroom, id: room.ID}]++
		return entry, true
	}
	return models.TimetableEntry{}, false
}

func (r *run) release(entry models.TimetableEntry) {
	r.index.Release(entry)
	r.assigned[resourceKey{kind: models.ResourceFaculty, id: entry.FacultyID}]--
	r.assigned[resourceKey{kind: models.ResourceClassroom, id: entry.ClassroomID}]--
}

func (r *run) batchCanTake(u unit, slot Slot) bool {
	key := slot.Key()
	if !r.index.IsFree(models.ResourceBatch, u.batch.ID, key) {
		return false
	}
	if r.index.DayLoad(models.ResourceBatch, u.batch.ID, slot.Day) >= r.constraints.MaxHoursPerDay {
		return false
	}
	if u.subject.IsLab() && r.constraints.NoBackToBackLabs && r.labNextTo(u.batch.ID, slot) {
		return false
	}
	return true
}

func (r *run) labNextTo(batchID string, slot Slot) bool {
	for _, offset := range []int{-1, 1} {
		neighbour, ok := r.grid.Neighbour(slot, offset)
		if !ok {
			continue
		}
		occupant, taken := r.index.Occupant(models.ResourceBatch, batchID, neighbour.Key())
		if !taken {
			continue
		}
		if subject, known := r.catalog.Subject(occupant.SubjectID); known && subject.IsLab() {
			return true
		}
	}
	return false
}

// pickFaculty returns the least-assigned qualified faculty member who is free at the slot,
// under the daily cap, and would not exceed the consecutive-hours cap. Ties go to the lower id.
func (r *run) pickFaculty(u unit, slot Slot) (models.Faculty, bool) {
	key := slot.Key()
	best, bestLoad := -1, 0
	for i, f := range u.faculty {
		if !r.index.IsFree(models.ResourceFaculty, f.ID, key) {
			continue
		}
		if r.index.DayLoad(models.ResourceFaculty, f.ID, slot.Day) >= r.constraints.MaxHoursPerDay {
			continue
		}
		if r.runLength(models.ResourceFaculty, f.ID, slot) > r.constraints.MaxConsecutiveHours {
			continue
		}
		load := r.assigned[resourceKey{kind: models.ResourceFaculty, id: f.ID}]
		if best < 0 || load < bestLoad {
			best, bestLoad = i, load
		}
	}
	if best < 0 {
		return models.Faculty{}, false
	}
	return u.faculty[best], true
}

func (r *run) pickClassroom(u unit, slot Slot) (models.Classroom, bool) {
	key := slot.Key()
	best, bestLoad := -1, 0
	for i, room := range u.classrooms {
		if !r.index.IsFree(models.ResourceClassroom, room.ID, key) {
			continue
		}
		load := r.assigned[resourceKey{kind: models.ResourceClassroom, id: room.ID}]
		if best < 0 || load < bestLoad {
			best, bestLoad = i, load
		}
	}
	if best < 0 {
		return models.Classroom{}, false
	}
	return u.classrooms[best], true
}

// runLength is the length of the contiguous run the resource would have if it took the slot.
func (r *run) runLength(kind models.ResourceKind, id string, slot Slot) int {
	length := 1
	for _, step := range []int{-1, 1} {
		for offset := step; ; offset += step {
			neighbour, ok := r.grid.Neighbour(slot, offset)
			if !ok || r.index.IsFree(kind, id, neighbour.Key()) {
				break
			}
			length++
		}
	}
	return length
}

// sortEntries orders output by batch, then day, then time.
func (r *run) sortEntries() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i], r.entries[j]
		if a.BatchID != b.BatchID {
			return a.BatchID < b.BatchID
		}
		return r.order(a) < r.order(b)
	})
}

func (r *run) order(entry models.TimetableEntry) int {
	key, err := EntrySlotKey(entry)
	if err != nil {
		return -1
	}
	return r.grid.Order(key)
}
