package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/jobs"
)

// JobTypeGenerate tags queued generation runs.
const JobTypeGenerate = "timetable.generate"

type facultyReader interface {
	List(ctx context.Context) ([]models.Faculty, error)
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
}

type subjectReader interface {
	List(ctx context.Context) ([]models.Subject, error)
}

type classroomReader interface {
	List(ctx context.Context) ([]models.Classroom, error)
}

type batchReader interface {
	List(ctx context.Context) ([]models.Batch, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Batch, error)
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

type timetableStore interface {
	LockEntries(ctx context.Context, exec sqlx.ExtContext) error
	ListAll(ctx context.Context, exec sqlx.ExtContext) ([]models.TimetableEntry, error)
	ListByBatchDetailed(ctx context.Context, batchID string) ([]models.TimetableEntryDetail, error)
	ListByFacultyDetailed(ctx context.Context, facultyID string) ([]models.TimetableEntryDetail, error)
	ReplaceForBatches(ctx context.Context, exec sqlx.ExtContext, batchIDs []string, entries []models.TimetableEntry) (int64, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type jobDispatcher interface {
	TryEnqueue(job jobs.Job) error
}

// TimetableServiceConfig tunes generation runs.
type TimetableServiceConfig struct {
	SoftTimeout   time.Duration
	MaxBacktracks int
	RunTTL        time.Duration
	AsyncEnabled  bool
	CacheTTL      time.Duration
}

// TimetableService orchestrates timetable generation and the timetable read views.
type TimetableService struct {
	faculty    facultyReader
	subjects   subjectReader
	classrooms classroomReader
	batches    batchReader
	timetable  timetableStore
	tx         txProvider
	cache      *CacheService
	metrics    *MetricsService
	generator  *scheduler.Generator
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        TimetableServiceConfig
	runs       *runStore
	queue      jobDispatcher

	// mu serializes runs: every run seeds from and writes to the one live timetable.
	mu  sync.Mutex
	now func() time.Time
}

// NewTimetableService constructs the service.
func NewTimetableService(
	faculty facultyReader,
	subjects subjectReader,
	classrooms classroomReader,
	batches batchReader,
	timetable timetableStore,
	tx txProvider,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableServiceConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SoftTimeout <= 0 {
		cfg.SoftTimeout = 10 * time.Second
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 30 * time.Minute
	}
	return &TimetableService{
		faculty:    faculty,
		subjects:   subjects,
		classrooms: classrooms,
		batches:    batches,
		timetable:  timetable,
		tx:         tx,
		cache:      cache,
		metrics:    metrics,
		generator:  scheduler.NewGenerator(scheduler.Options{MaxBacktracks: cfg.MaxBacktracks}),
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		runs:       newRunStore(cfg.RunTTL),
		now:        time.Now,
	}
}

// UseDispatcher enables asynchronous runs through the given queue.
func (s *TimetableService) UseDispatcher(queue jobDispatcher) {
	s.queue = queue
}

// Generate validates the request and either runs generation inline or queues it.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate payload")
	}
	constraints, err := req.Constraints.ToConstraints()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidConstraints.Code, appErrors.ErrInvalidConstraints.Status, err.Error())
	}
	if err := scheduler.ValidateConstraints(constraints); err != nil {
		return nil, invalidConstraints(err)
	}

	run := models.GenerationRun{
		ID:          uuid.NewString(),
		Status:      models.GenerationRunQueued,
		BatchIDs:    uniqueIDs(req.BatchIDs),
		Constraints: constraints,
		RequestedAt: s.now().UTC(),
	}

	if req.Async && s.cfg.AsyncEnabled && s.queue != nil {
		s.runs.Save(run)
		if err := s.queue.TryEnqueue(jobs.Job{ID: run.ID, Type: JobTypeGenerate}); err != nil {
			s.runs.Delete(run.ID)
			if errors.Is(err, jobs.ErrQueueFull) {
				return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "generation queue is full")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation run")
		}
		s.logger.Info("timetable generation queued", zap.String("run_id", run.ID), zap.Int("batches", len(run.BatchIDs)))
		return &dto.GenerateTimetableResponse{RunID: run.ID, Status: run.Status}, nil
	}

	run.Status = models.GenerationRunRunning
	s.runs.Save(run)
	outcome, err := s.execute(ctx, run)
	s.finish(run.ID, outcome, err)
	if err != nil {
		return nil, err
	}
	return &dto.GenerateTimetableResponse{
		RunID:    run.ID,
		Status:   models.GenerationRunCompleted,
		Entries:  outcome.entries,
		Replaced: outcome.replaced,
		Report:   &outcome.report,
	}, nil
}

// GetRun returns a generation run by id.
func (s *TimetableService) GetRun(_ context.Context, id string) (*models.GenerationRun, error) {
	run, ok := s.runs.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation run not found or expired")
	}
	return &run, nil
}

// HandleJob executes a queued generation run.
func (s *TimetableService) HandleJob(ctx context.Context, job jobs.Job) error {
	run, ok := s.runs.Get(job.ID)
	if !ok {
		s.logger.Warn("generation run vanished before execution", zap.String("run_id", job.ID))
		return nil
	}
	s.runs.Update(run.ID, func(r *models.GenerationRun) { r.Status = models.GenerationRunRunning })
	outcome, err := s.execute(ctx, run)
	s.finish(run.ID, outcome, err)
	return err
}

// PurgeRuns drops finished runs older than the configured TTL.
func (s *TimetableService) PurgeRuns() int {
	removed := s.runs.Purge()
	if removed > 0 {
		s.logger.Debug("purged generation runs", zap.Int("removed", removed))
	}
	return removed
}

// BatchTimetable returns the enriched timetable of a batch.
func (s *TimetableService) BatchTimetable(ctx context.Context, batchID string) (*dto.TimetableView, error) {
	key := BatchViewKey(batchID)
	var cached dto.TimetableView
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, lookupError(err, "batch")
	}
	entries, err := s.timetable.ListByBatchDetailed(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch timetable")
	}
	view := &dto.TimetableView{Scope: "batch", ID: batch.ID, Name: batch.Name, Entries: nonNil(entries)}
	_ = s.cache.Set(ctx, key, view, s.cfg.CacheTTL)
	return view, nil
}

// FacultyTimetable returns the enriched timetable of a lecturer.
func (s *TimetableService) FacultyTimetable(ctx context.Context, facultyID string) (*dto.TimetableView, error) {
	key := FacultyViewKey(facultyID)
	var cached dto.TimetableView
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	lecturer, err := s.faculty.FindByID(ctx, facultyID)
	if err != nil {
		return nil, lookupError(err, "faculty")
	}
	entries, err := s.timetable.ListByFacultyDetailed(ctx, facultyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty timetable")
	}
	view := &dto.TimetableView{Scope: "faculty", ID: lecturer.ID, Name: lecturer.Name, Entries: nonNil(entries)}
	_ = s.cache.Set(ctx, key, view, s.cfg.CacheTTL)
	return view, nil
}

type generationOutcome struct {
	entries  []models.TimetableEntry
	replaced int64
	report   models.GenerationReport
}

func (s *TimetableService) execute(ctx context.Context, run models.GenerationRun) (outcome *generationOutcome, err error) {
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	started := time.Now()
	defer func() {
		label := OutcomeFailed
		unscheduled := 0
		if err == nil {
			label = OutcomeComplete
			unscheduled = len(outcome.report.Unscheduled)
			if outcome.report.Partial() {
				label = OutcomePartial
			}
		}
		s.metrics.ObserveGeneration(label, unscheduled, time.Since(started))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	in, err := s.loadInput(ctx, run)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.timetable.LockEntries(ctx, tx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock timetable")
	}
	in.Existing, err = s.timetable.ListAll(ctx, tx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current timetable")
	}

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.SoftTimeout)
	result, err := s.generator.Generate(genCtx, in)
	cancel()
	if err != nil {
		if errors.Is(err, scheduler.ErrInvalidConstraints) {
			return nil, invalidConstraints(err)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable generation failed")
	}

	replaced, err := s.timetable.ReplaceForBatches(ctx, tx, run.BatchIDs, result.Entries)
	if errors.Is(err, repository.ErrSlotTaken) {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "timetable changed during generation")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
	}

	dropTimetableViews(ctx, s.cache, s.logger, zap.String("run_id", run.ID))

	s.logger.Info("timetable generated",
		zap.String("run_id", run.ID),
		zap.Int("batches", len(run.BatchIDs)),
		zap.Int("entries", len(result.Entries)),
		zap.Int64("replaced", replaced),
		zap.Int("unscheduled", len(result.Report.Unscheduled)),
		zap.Int("stale_references", len(result.Report.Stale)),
		zap.Int("backtracks", result.Report.Backtracks),
		zap.Bool("timed_out", result.Report.TimedOut),
		zap.Duration("duration", time.Since(started)),
	)
	for _, u := range result.Report.Unscheduled {
		if u.Reason.Unsatisfiable() {
			s.logger.Warn("unsatisfiable requirement",
				zap.String("run_id", run.ID),
				zap.String("batch", u.BatchName),
				zap.String("subject", u.SubjectCode),
				zap.String("reason", string(u.Reason)))
		}
	}

	return &generationOutcome{entries: result.Entries, replaced: replaced, report: result.Report}, nil
}

func (s *TimetableService) loadInput(ctx context.Context, run models.GenerationRun) (scheduler.Input, error) {
	requested, err := s.batches.ListByIDs(ctx, run.BatchIDs)
	if err != nil {
		return scheduler.Input{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batches")
	}
	found := make(map[string]struct{}, len(requested))
	for _, b := range requested {
		found[b.ID] = struct{}{}
	}
	var missing []string
	for _, id := range run.BatchIDs {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return scheduler.Input{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("batch not found: %s", strings.Join(missing, ", ")))
	}

	all, err := s.batches.List(ctx)
	if err != nil {
		return scheduler.Input{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batches")
	}
	others := make([]models.Batch, 0, len(all))
	for _, b := range all {
		if _, ok := found[b.ID]; !ok {
			others = append(others, b)
		}
	}
	subjects, err := s.subjects.List(ctx)
	if err != nil {
		return scheduler.Input{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	faculty, err := s.faculty.List(ctx)
	if err != nil {
		return scheduler.Input{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	classrooms, err := s.classrooms.List(ctx)
	if err != nil {
		return scheduler.Input{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classrooms")
	}

	return scheduler.Input{
		Batches:      requested,
		OtherBatches: others,
		Subjects:     subjects,
		Faculty:      faculty,
		Classrooms:   classrooms,
		Constraints:  run.Constraints,
	}, nil
}

func (s *TimetableService) finish(id string, outcome *generationOutcome, err error) {
	finished := s.now().UTC()
	s.runs.Update(id, func(r *models.GenerationRun) {
		r.FinishedAt = &finished
		if err != nil {
			r.Status = models.GenerationRunFailed
			r.Error = err.Error()
			return
		}
		r.Status = models.GenerationRunCompleted
		r.Entries = len(outcome.entries)
		r.Replaced = outcome.replaced
		report := outcome.report
		r.Report = &report
	})
	if err != nil {
		s.logger.Error("timetable generation failed", zap.String("run_id", id), zap.Error(err))
	}
}

func invalidConstraints(err error) error {
	return appErrors.Wrap(err, appErrors.ErrInvalidConstraints.Code, appErrors.ErrInvalidConstraints.Status, err.Error())
}

func lookupError(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+entity)
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
