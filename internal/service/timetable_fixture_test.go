package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/jobs"
)

type stubFacultyRepo struct{ items []models.Faculty }

func (s *stubFacultyRepo) List(context.Context) ([]models.Faculty, error) { return s.items, nil }

func (s *stubFacultyRepo) FindByID(_ context.Context, id string) (*models.Faculty, error) {
	for i := range s.items {
		if s.items[i].ID == id {
			item := s.items[i]
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

type stubSubjectRepo struct{ items []models.Subject }

func (s *stubSubjectRepo) List(context.Context) ([]models.Subject, error) { return s.items, nil }

type stubClassroomRepo struct{ items []models.Classroom }

func (s *stubClassroomRepo) List(context.Context) ([]models.Classroom, error) { return s.items, nil }

type stubBatchRepo struct{ items []models.Batch }

func (s *stubBatchRepo) List(context.Context) ([]models.Batch, error) { return s.items, nil }

func (s *stubBatchRepo) ListByIDs(_ context.Context, ids []string) ([]models.Batch, error) {
	var out []models.Batch
	for _, b := range s.items {
		for _, id := range ids {
			if b.ID == id {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (s *stubBatchRepo) FindByID(_ context.Context, id string) (*models.Batch, error) {
	for i := range s.items {
		if s.items[i].ID == id {
			item := s.items[i]
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

// stubTimetableStore serves both the generation and the substitution paths.
type stubTimetableStore struct {
	mu         sync.Mutex
	existing   []models.TimetableEntry
	details    []models.TimetableEntryDetail
	detailHits int

	replacedBatches []string
	inserted        []models.TimetableEntry
	replaceCount    int64
	replaceErr      error

	busy        bool
	swapped     bool
	reassignErr error
	reassigned  []string
	busyChecked []string

	// onLock runs while LockEntries holds the table, standing in for a writer
	// that committed just before the lock was granted.
	onLock  func(*stubTimetableStore)
	lockErr error
	calls   []string
}

func (s *stubTimetableStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubTimetableStore) LockEntries(context.Context, sqlx.ExtContext) error {
	if s.lockErr != nil {
		return s.lockErr
	}
	if s.onLock != nil {
		s.onLock(s)
	}
	s.record("lock")
	return nil
}

func (s *stubTimetableStore) ListAll(context.Context, sqlx.ExtContext) ([]models.TimetableEntry, error) {
	s.record("list")
	return append([]models.TimetableEntry(nil), s.existing...), nil
}

func (s *stubTimetableStore) ListByBatchDetailed(_ context.Context, batchID string) ([]models.TimetableEntryDetail, error) {
	s.detailHits++
	var out []models.TimetableEntryDetail
	for _, d := range s.details {
		if d.BatchID == batchID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubTimetableStore) ListByFacultyDetailed(_ context.Context, facultyID string) ([]models.TimetableEntryDetail, error) {
	s.detailHits++
	var out []models.TimetableEntryDetail
	for _, d := range s.details {
		if d.FacultyID == facultyID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubTimetableStore) ReplaceForBatches(_ context.Context, _ sqlx.ExtContext, batchIDs []string, entries []models.TimetableEntry) (int64, error) {
	s.record("replace")
	if s.replaceErr != nil {
		return 0, s.replaceErr
	}
	s.replacedBatches = append([]string(nil), batchIDs...)
	s.inserted = append([]models.TimetableEntry(nil), entries...)
	return s.replaceCount, nil
}

func (s *stubTimetableStore) ReassignFaculty(_ context.Context, _ sqlx.ExtContext, entryID, expected, next string) (bool, error) {
	s.record("reassign")
	if s.reassignErr != nil {
		return false, s.reassignErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reassigned = append(s.reassigned, entryID+":"+expected+"->"+next)
	return s.swapped, nil
}

func (s *stubTimetableStore) FacultyBusyAt(_ context.Context, _ sqlx.ExtContext, facultyID string, day models.Weekday, timeSlot string) (bool, error) {
	s.record("busy")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busyChecked = append(s.busyChecked, facultyID+"@"+string(day)+" "+timeSlot)
	return s.busy, nil
}

// memoryCache is a CacheRepository backed by a map.
type memoryCache struct {
	mu        sync.Mutex
	items     map[string][]byte
	patterns  []string
	deleteErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, pattern)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.items = make(map[string][]byte)
	return nil
}

type stubDispatcher struct {
	jobs []jobs.Job
	err  error
}

func (d *stubDispatcher) TryEnqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func newTxMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func cseBatch() models.Batch {
	return models.Batch{ID: "b-cse4a", Name: "CSE-4A", Department: "CSE", Year: 2, Semester: 4, StudentCount: 60}
}

func cseSubjects() []models.Subject {
	return []models.Subject{
		{ID: "s-ds", Code: "CS201", Name: "Data Structures", Department: "CSE", Year: 2, Semester: 4, Type: models.SubjectTypeTheory, HoursPerWeek: 3},
		{ID: "s-os", Code: "CS202L", Name: "OS Lab", Department: "CSE", Year: 2, Semester: 4, Type: models.SubjectTypeLab, HoursPerWeek: 2},
	}
}

func cseFaculty() []models.Faculty {
	return []models.Faculty{
		{ID: "f-1", Name: "Dr Rao", Department: "CSE", Subjects: []string{"Data Structures", "OS Lab"}},
		{ID: "f-2", Name: "Dr Iyer", Department: "CSE", Subjects: []string{"Data Structures", "OS Lab"}},
	}
}

func cseRooms() []models.Classroom {
	return []models.Classroom{
		{ID: "room-hall", Name: "Hall A", Type: models.ClassroomTypeLectureHall, Capacity: 60},
		{ID: "room-lab", Name: "Lab 1", Type: models.ClassroomTypeLab, Capacity: 40},
	}
}
