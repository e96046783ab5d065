package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/export"
	"github.com/noah-isme/campus-timetable-api/pkg/storage"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
	FormatICS  = "ics"
)

type timetableViews interface {
	BatchTimetable(ctx context.Context, batchID string) (*dto.TimetableView, error)
	FacultyTimetable(ctx context.Context, facultyID string) (*dto.TimetableView, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type calendarRenderer interface {
	Render(name string, events []export.CalendarEvent, until time.Time) ([]byte, error)
	ContentType() string
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportDownload is an opened export file ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	SizeBytes   int64
	ExpiresAt   time.Time
}

// ExportService renders batch and faculty timetables and hands out signed download links.
type ExportService struct {
	views     timetableViews
	storage   fileStorage
	signer    *storage.SignedURLSigner
	renderers map[string]export.Renderer
	calendar  calendarRenderer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(views timetableViews, files fileStorage, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		views:   views,
		storage: files,
		signer:  signer,
		renderers: map[string]export.Renderer{
			FormatCSV:  export.NewCSVExporter(),
			FormatPDF:  export.NewPDFExporter(),
			FormatXLSX: export.NewXLSXExporter(),
		},
		calendar:  export.NewICSExporter(""),
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Export renders the requested timetable, stores it and returns a signed link.
func (s *ExportService) Export(ctx context.Context, req dto.ExportTimetableRequest) (*dto.ExportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}

	var (
		view *dto.TimetableView
		err  error
	)
	switch req.Scope {
	case "batch":
		view, err = s.views.BatchTimetable(ctx, req.ID)
	default:
		view, err = s.views.FacultyTimetable(ctx, req.ID)
	}
	if err != nil {
		return nil, err
	}

	payload, ext, err := s.render(view, req.Format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	relPath, err := s.storage.Save(s.buildFilename(view, ext), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("timetable exported",
		zap.String("export_id", exportID),
		zap.String("scope", view.Scope),
		zap.String("id", view.ID),
		zap.String("format", req.Format),
		zap.Int("entries", len(view.Entries)))

	return &dto.ExportResult{
		ExportID:  exportID,
		FileName:  filepath.Base(relPath),
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Download validates the token and opens the stored file.
func (s *ExportService) Download(_ context.Context, token string) (*ExportDownload, error) {
	signed, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	file, err := s.storage.Open(signed.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file")
	}
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(signed.Path),
		ContentType: s.contentType(filepath.Ext(signed.Path)),
		SizeBytes:   info.Size(),
		ExpiresAt:   signed.ExpiresAt,
	}, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	removed, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		return removed, err
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

func (s *ExportService) render(view *dto.TimetableView, format string) ([]byte, string, error) {
	if format == FormatICS {
		payload, err := s.calendar.Render(viewTitle(view), s.calendarEvents(view), time.Time{})
		return payload, FormatICS, err
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, "", fmt.Errorf("unsupported format %s", format)
	}
	payload, err := renderer.Render(weeklyGrid(view))
	return payload, renderer.Extension(), err
}

func (s *ExportService) contentType(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == FormatICS {
		return s.calendar.ContentType()
	}
	if renderer, ok := s.renderers[ext]; ok {
		return renderer.ContentType()
	}
	return "application/octet-stream"
}

func (s *ExportService) buildFilename(view *dto.TimetableView, ext string) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	name := view.Name
	if name == "" {
		name = view.ID
	}
	return fmt.Sprintf("%s_%s_%s.%s", view.Scope, sanitizeFilename(name), timestamp, ext)
}

// weeklyGrid lays the view out with one row per time slot and one column per working day.
func weeklyGrid(view *dto.TimetableView) export.Dataset {
	headers := []string{"Time"}
	for _, day := range models.WorkingDays {
		headers = append(headers, dayTitle(day))
	}

	rows := make(map[string]map[string]string)
	for _, entry := range view.Entries {
		row, ok := rows[entry.TimeSlot]
		if !ok {
			row = map[string]string{"Time": entry.TimeSlot}
			rows[entry.TimeSlot] = row
		}
		col := dayTitle(entry.Day)
		cell := gridCell(view.Scope, entry)
		if existing := row[col]; existing != "" {
			cell = existing + "\n" + cell
		}
		row[col] = cell
	}

	slots := make([]string, 0, len(rows))
	for slot := range rows {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slotBefore(slots[i], slots[j]) })

	dataset := export.Dataset{Title: viewTitle(view), Headers: headers}
	for _, slot := range slots {
		dataset.Rows = append(dataset.Rows, rows[slot])
	}
	return dataset
}

func gridCell(scope string, entry models.TimetableEntryDetail) string {
	who := entry.FacultyName
	if scope == "faculty" {
		who = entry.BatchName
	}
	return fmt.Sprintf("%s %s\n%s\n%s", entry.SubjectCode, entry.SubjectName, who, entry.ClassroomName)
}

// calendarEvents anchors each entry in the current week; the feed repeats weekly.
func (s *ExportService) calendarEvents(view *dto.TimetableView) []export.CalendarEvent {
	monday := weekStart(s.now())
	events := make([]export.CalendarEvent, 0, len(view.Entries))
	for _, entry := range view.Entries {
		start, end, ok := slotBounds(entry.TimeSlot)
		if !ok || !entry.Day.Valid() {
			s.logger.Warn("skipping unparseable entry in calendar export", zap.String("entry_id", entry.ID), zap.String("time_slot", entry.TimeSlot))
			continue
		}
		day := monday.AddDate(0, 0, entry.Day.Index())
		events = append(events, export.CalendarEvent{
			UID:         entry.ID + "@campus-timetable",
			Summary:     fmt.Sprintf("%s %s", entry.SubjectCode, entry.SubjectName),
			Location:    entry.ClassroomName,
			Description: fmt.Sprintf("Batch: %s\nLecturer: %s", entry.BatchName, entry.FacultyName),
			Start:       day.Add(time.Duration(start) * time.Minute),
			End:         day.Add(time.Duration(end) * time.Minute),
		})
	}
	return events
}

// weekStart returns Monday 00:00 of now's week in now's location.
func weekStart(now time.Time) time.Time {
	offset := (int(now.Weekday()) + 6) % 7
	return time.Date(now.Year(), now.Month(), now.Day()-offset, 0, 0, 0, 0, now.Location())
}

func slotBounds(raw string) (models.ClockTime, models.ClockTime, bool) {
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err := models.ParseClockTime(parts[0])
	if err != nil {
		return 0, 0, false
	}
	end, err := models.ParseClockTime(parts[1])
	if err != nil || end <= start {
		return 0, 0, false
	}
	return start, end, true
}

func slotBefore(a, b string) bool {
	sa, errA := models.ParseTimeSlotStart(a)
	sb, errB := models.ParseTimeSlotStart(b)
	if errA != nil || errB != nil {
		return a < b
	}
	if sa != sb {
		return sa < sb
	}
	return a < b
}

func dayTitle(day models.Weekday) string {
	if day == "" {
		return ""
	}
	return strings.ToUpper(string(day[:1])) + string(day[1:])
}

func viewTitle(view *dto.TimetableView) string {
	name := view.Name
	if name == "" {
		name = view.ID
	}
	return fmt.Sprintf("Timetable %s %s", view.Scope, name)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
