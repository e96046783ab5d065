package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/storage"
)

type stubViews struct{ view dto.TimetableView }

func (s *stubViews) BatchTimetable(_ context.Context, id string) (*dto.TimetableView, error) {
	if id != s.view.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
	}
	view := s.view
	return &view, nil
}

func (s *stubViews) FacultyTimetable(_ context.Context, id string) (*dto.TimetableView, error) {
	view := s.view
	view.Scope = "faculty"
	view.ID = id
	view.Name = "Dr Rao"
	return &view, nil
}

func detail(id string, day models.Weekday, slot, code, name string) models.TimetableEntryDetail {
	return models.TimetableEntryDetail{
		TimetableEntry: models.TimetableEntry{ID: id, BatchID: "b-cse4a", FacultyID: "f-1", ClassroomID: "room-hall", Day: day, TimeSlot: slot},
		SubjectCode:    code,
		SubjectName:    name,
		FacultyName:    "Dr Rao",
		ClassroomName:  "Hall A",
		BatchName:      "CSE-4A",
	}
}

func newExportFixture(t *testing.T) *ExportService {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	views := &stubViews{view: dto.TimetableView{Scope: "batch", ID: "b-cse4a", Name: "CSE-4A", Entries: []models.TimetableEntryDetail{
		detail("e-2", models.Monday, "13:00-14:00", "CS201", "Data Structures"),
		detail("e-1", models.Monday, "09:00-10:00", "CS201", "Data Structures"),
		detail("e-3", models.Wednesday, "09:00-10:00", "CS305", "Networks"),
	}}}
	svc := NewExportService(views, files, storage.NewSignedURLSigner("secret", time.Hour), nil, nil, ExportConfig{APIPrefix: "/api/v1"})
	svc.now = func() time.Time { return time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC) }
	return svc
}

func tokenFromURL(t *testing.T, url string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(url, "/api/v1/exports/"), url)
	return strings.TrimPrefix(url, "/api/v1/exports/")
}

func TestExportServiceCSVRoundTrip(t *testing.T) {
	svc := newExportFixture(t)

	result, err := svc.Export(context.Background(), dto.ExportTimetableRequest{Scope: "batch", ID: "b-cse4a", Format: FormatCSV})
	require.NoError(t, err)
	assert.Equal(t, "batch_CSE-4A_20240313_120000.csv", result.FileName)
	assert.NotEmpty(t, result.ExportID)

	download, err := svc.Download(context.Background(), tokenFromURL(t, result.URL))
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv", download.ContentType)
	assert.Equal(t, result.FileName, download.Filename)

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Equal(t, "Time,Monday,Tuesday,Wednesday,Thursday,Friday,Saturday", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "09:00-10:00,"), lines[1])
	assert.Contains(t, string(body), "CS305 Networks")
	assert.Equal(t, int64(len(body)), download.SizeBytes)
}

func TestExportServiceICSFeed(t *testing.T) {
	svc := newExportFixture(t)

	result, err := svc.Export(context.Background(), dto.ExportTimetableRequest{Scope: "faculty", ID: "f-1", Format: FormatICS})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.FileName, "faculty_Dr_Rao_"))

	download, err := svc.Download(context.Background(), tokenFromURL(t, result.URL))
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/calendar", download.ContentType)
	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "BEGIN:VCALENDAR")
	assert.Equal(t, 3, strings.Count(text, "BEGIN:VEVENT"))
	assert.Contains(t, text, "RRULE:FREQ=WEEKLY")
	assert.Contains(t, text, "20240311T090000Z")
	assert.Contains(t, text, "20240313T090000Z")
}

func TestExportServiceBinaryFormats(t *testing.T) {
	svc := newExportFixture(t)
	for _, format := range []string{FormatPDF, FormatXLSX} {
		result, err := svc.Export(context.Background(), dto.ExportTimetableRequest{Scope: "batch", ID: "b-cse4a", Format: format})
		require.NoError(t, err, format)
		assert.True(t, strings.HasSuffix(result.FileName, "."+format))
	}
}

func TestExportServiceValidationAndErrors(t *testing.T) {
	svc := newExportFixture(t)

	_, err := svc.Export(context.Background(), dto.ExportTimetableRequest{Scope: "room", ID: "r-1", Format: FormatCSV})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Export(context.Background(), dto.ExportTimetableRequest{Scope: "batch", ID: "b-cse4a", Format: "docx"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Export(context.Background(), dto.ExportTimetableRequest{Scope: "batch", ID: "b-404", Format: FormatCSV})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Download(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCleanup(t *testing.T) {
	svc := newExportFixture(t)
	_, err := svc.Export(context.Background(), dto.ExportTimetableRequest{Scope: "batch", ID: "b-cse4a", Format: FormatCSV})
	require.NoError(t, err)

	removed, err := svc.Cleanup(time.Hour)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestWeeklyGridMergesSharedSlots(t *testing.T) {
	view := &dto.TimetableView{Scope: "faculty", ID: "f-1", Entries: []models.TimetableEntryDetail{
		detail("e-1", models.Tuesday, "10:15-11:15", "CS201", "Data Structures"),
		detail("e-2", models.Tuesday, "10:15-11:15", "CS305", "Networks"),
		detail("e-3", models.Monday, "09:00-10:00", "CS201", "Data Structures"),
	}}
	grid := weeklyGrid(view)
	require.Len(t, grid.Rows, 2)
	assert.Equal(t, "09:00-10:00", grid.Rows[0]["Time"])
	assert.Equal(t, "CS201 Data Structures\nCSE-4A\nHall A\nCS305 Networks\nCSE-4A\nHall A", grid.Rows[1]["Tuesday"])
	assert.Equal(t, "Timetable faculty f-1", grid.Title)
}
