package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

const (
	entryColumns = "id, batch_id, subject_id, faculty_id, classroom_id, day, time_slot, created_at, updated_at"
	dayOrder     = "array_position(ARRAY['monday','tuesday','wednesday','thursday','friday','saturday'], e.day)"
)

const detailedEntrySelect = `SELECT e.id, e.batch_id, e.subject_id, e.faculty_id, e.classroom_id, e.day, e.time_slot, e.created_at, e.updated_at,
    COALESCE(s.name, 'Unknown') AS subject_name,
    COALESCE(s.code, 'Unknown') AS subject_code,
    COALESCE(f.name, 'Unknown') AS faculty_name,
    COALESCE(c.name, 'Unknown') AS classroom_name,
    COALESCE(b.name, 'Unknown') AS batch_name
FROM timetable_entries e
LEFT JOIN subjects s ON s.id = e.subject_id
LEFT JOIN faculty f ON f.id = e.faculty_id
LEFT JOIN classrooms c ON c.id = e.classroom_id
LEFT JOIN batches b ON b.id = e.batch_id`

// ErrSlotTaken reports a write that would give a batch, lecturer or classroom a
// second entry at the same day and slot.
var ErrSlotTaken = errors.New("timetable slot already taken")

const uniqueViolation = "23505"

func slotError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w (%s)", op, ErrSlotTaken, pqErr.Constraint)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// TimetableRepository persists timetable entries.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository builds repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockEntries blocks other timetable writers until exec's transaction ends.
// Plain reads are not blocked.
func (r *TimetableRepository) LockEntries(ctx context.Context, exec sqlx.ExtContext) error {
	if _, err := r.exec(exec).ExecContext(ctx, "LOCK TABLE timetable_entries IN SHARE ROW EXCLUSIVE MODE"); err != nil {
		return fmt.Errorf("lock timetable entries: %w", err)
	}
	return nil
}

// ListAll returns the live timetable.
func (r *TimetableRepository) ListAll(ctx context.Context, exec sqlx.ExtContext) ([]models.TimetableEntry, error) {
	query := "SELECT " + entryColumns + " FROM timetable_entries ORDER BY id ASC"
	var entries []models.TimetableEntry
	if err := sqlx.SelectContext(ctx, r.exec(exec), &entries, query); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	return entries, nil
}

// ListByBatchDetailed returns a batch's entries joined with display names, ordered by day then slot.
func (r *TimetableRepository) ListByBatchDetailed(ctx context.Context, batchID string) ([]models.TimetableEntryDetail, error) {
	query := detailedEntrySelect + " WHERE e.batch_id = $1 ORDER BY " + dayOrder + " ASC, e.time_slot ASC"
	var entries []models.TimetableEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch timetable: %w", err)
	}
	return entries, nil
}

// ListByFacultyDetailed returns a lecturer's entries joined with display names, ordered by day then slot.
func (r *TimetableRepository) ListByFacultyDetailed(ctx context.Context, facultyID string) ([]models.TimetableEntryDetail, error) {
	query := detailedEntrySelect + " WHERE e.faculty_id = $1 ORDER BY " + dayOrder + " ASC, e.time_slot ASC"
	var entries []models.TimetableEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, facultyID); err != nil {
		return nil, fmt.Errorf("list faculty timetable: %w", err)
	}
	return entries, nil
}

// ReplaceForBatches deletes the batches' current entries and inserts the new ones.
// Run it inside a transaction so readers never observe a half-replaced timetable.
func (r *TimetableRepository) ReplaceForBatches(ctx context.Context, exec sqlx.ExtContext, batchIDs []string, entries []models.TimetableEntry) (int64, error) {
	target := r.exec(exec)

	var removed int64
	if len(batchIDs) > 0 {
		query, args, err := sqlx.In("DELETE FROM timetable_entries WHERE batch_id IN (?)", batchIDs)
		if err != nil {
			return 0, fmt.Errorf("build timetable delete: %w", err)
		}
		res, err := target.ExecContext(ctx, target.Rebind(query), args...)
		if err != nil {
			return 0, fmt.Errorf("delete timetable entries: %w", err)
		}
		removed, _ = res.RowsAffected()
	}

	const insert = `
INSERT INTO timetable_entries (id, batch_id, subject_id, faculty_id, classroom_id, day, time_slot, created_at, updated_at)
VALUES (:id, :batch_id, :subject_id, :faculty_id, :classroom_id, :day, :time_slot, :created_at, :updated_at)`

	now := time.Now().UTC()
	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.CreatedAt = now
		entry.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, insert, entry); err != nil {
			return 0, slotError("insert timetable entry", err)
		}
	}
	return removed, nil
}

// ReassignFaculty swaps the lecturer of an entry only if it is still held by expectedFaculty.
// It reports false when another writer changed the entry first.
func (r *TimetableRepository) ReassignFaculty(ctx context.Context, exec sqlx.ExtContext, entryID, expectedFaculty, newFaculty string) (bool, error) {
	const query = `UPDATE timetable_entries SET faculty_id = $3, updated_at = $4 WHERE id = $1 AND faculty_id = $2`
	res, err := r.exec(exec).ExecContext(ctx, query, entryID, expectedFaculty, newFaculty, time.Now().UTC())
	if err != nil {
		return false, slotError("reassign timetable entry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reassign timetable entry: %w", err)
	}
	return affected == 1, nil
}

// FacultyBusyAt reports whether the lecturer already teaches at the day/slot.
func (r *TimetableRepository) FacultyBusyAt(ctx context.Context, exec sqlx.ExtContext, facultyID string, day models.Weekday, timeSlot string) (bool, error) {
	const query = `SELECT COUNT(*) FROM timetable_entries WHERE faculty_id = $1 AND day = $2 AND time_slot = $3`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, facultyID, day, timeSlot); err != nil {
		return false, fmt.Errorf("check faculty slot: %w", err)
	}
	return count > 0, nil
}
