package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

const (
	msgSubstituteAssigned = "substitute assigned"
	msgNoSubstitute       = "no substitute available"
	msgNoEntry            = "no timetable entry found for this absence"
)

type absenceStore interface {
	FindByID(ctx context.Context, id string) (*models.Absence, error)
	MarkSubstituted(ctx context.Context, exec sqlx.ExtContext, id, substituteID string) (bool, error)
}

type entryReassigner interface {
	LockEntries(ctx context.Context, exec sqlx.ExtContext) error
	ListAll(ctx context.Context, exec sqlx.ExtContext) ([]models.TimetableEntry, error)
	ReassignFaculty(ctx context.Context, exec sqlx.ExtContext, entryID, expectedFaculty, newFaculty string) (bool, error)
	FacultyBusyAt(ctx context.Context, exec sqlx.ExtContext, facultyID string, day models.Weekday, timeSlot string) (bool, error)
}

type distributedLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// SubstituteServiceConfig tunes slot locking.
type SubstituteServiceConfig struct {
	LockTTL                 time.Duration
	DistributedLocksEnabled bool
	Clock                   scheduler.Clock
}

// SubstituteService assigns substitutes for reported absences.
type SubstituteService struct {
	absences   absenceStore
	timetable  entryReassigner
	faculty    facultyReader
	subjects   subjectReader
	classrooms classroomReader
	batches    batchReader
	tx         txProvider
	lock       distributedLock
	cache      *CacheService
	metrics    *MetricsService
	resolver   *scheduler.Resolver
	slots      *keyedMutex
	logger     *zap.Logger
	cfg        SubstituteServiceConfig
}

// NewSubstituteService constructs the service. lock may be nil.
func NewSubstituteService(
	absences absenceStore,
	timetable entryReassigner,
	faculty facultyReader,
	subjects subjectReader,
	classrooms classroomReader,
	batches batchReader,
	tx txProvider,
	lock distributedLock,
	cache *CacheService,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg SubstituteServiceConfig,
) *SubstituteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Second
	}
	return &SubstituteService{
		absences:   absences,
		timetable:  timetable,
		faculty:    faculty,
		subjects:   subjects,
		classrooms: classrooms,
		batches:    batches,
		tx:         tx,
		lock:       lock,
		cache:      cache,
		metrics:    metrics,
		resolver:   scheduler.NewResolver(cfg.Clock),
		slots:      newKeyedMutex(),
		logger:     logger,
		cfg:        cfg,
	}
}

// Substitute finds and records a substitute for the absence. Finding nobody is a
// successful call with Success=false and the absence left pending.
func (s *SubstituteService) Substitute(ctx context.Context, absenceID string) (*dto.SubstituteResponse, error) {
	absence, err := s.absences.FindByID(ctx, absenceID)
	if err != nil {
		return nil, lookupError(err, "absence")
	}
	if absence.Status != models.AbsenceStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("absence is already %s", absence.Status))
	}

	day, err := s.resolver.AbsenceDay(absence.Date)
	if err != nil {
		return s.resolveFailure(*absence, err)
	}
	start, err := models.ParseTimeSlotStart(absence.TimeSlot)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid absence time slot")
	}

	release, err := s.lockSlot(ctx, scheduler.SlotKey{Day: day, Start: start})
	if err != nil {
		s.metrics.ObserveSubstitution(OutcomeConflict)
		return nil, err
	}
	defer release()

	in, err := s.loadInput(ctx, *absence)
	if err != nil {
		return nil, err
	}
	res, err := s.resolver.Resolve(in)
	if err != nil {
		return s.resolveFailure(*absence, err)
	}

	resp := &dto.SubstituteResponse{
		Absence:         res.Absence,
		Candidates:      nonNil(res.Candidates),
		StaleReferences: res.Stale,
	}
	if !res.Found() {
		s.metrics.ObserveSubstitution(OutcomeNone)
		s.logger.Info(msgNoSubstitute,
			zap.String("absence_id", absence.ID),
			zap.String("lecturer_id", absence.LecturerID),
			zap.String("slot", res.Slot.String()),
			zap.Int("stale_references", len(res.Stale)))
		resp.Message = msgNoSubstitute
		return resp, nil
	}

	if err := s.persist(ctx, res); err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrConflict.Code {
			s.metrics.ObserveSubstitution(OutcomeConflict)
		}
		return nil, err
	}
	dropTimetableViews(ctx, s.cache, s.logger, zap.String("absence_id", absence.ID))
	s.metrics.ObserveSubstitution(OutcomeAssigned)
	s.logger.Info(msgSubstituteAssigned,
		zap.String("absence_id", absence.ID),
		zap.String("entry_id", res.Original.ID),
		zap.String("lecturer_id", absence.LecturerID),
		zap.String("substitute_id", res.SubstituteID()),
		zap.Int("candidates", len(res.Candidates)))

	resp.Success = true
	resp.SubstituteID = res.SubstituteID()
	resp.Entry = res.Updated
	resp.Message = msgSubstituteAssigned
	return resp, nil
}

func (s *SubstituteService) resolveFailure(absence models.Absence, err error) (*dto.SubstituteResponse, error) {
	switch {
	case errors.Is(err, scheduler.ErrEntryNotFound):
		s.metrics.ObserveSubstitution(OutcomeNone)
		return &dto.SubstituteResponse{
			Absence:    absence,
			Candidates: []models.SubstituteCandidate{},
			Message:    msgNoEntry,
		}, nil
	case errors.Is(err, scheduler.ErrInvalidAbsence):
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve substitute")
	}
}

// lockSlot serializes substitutions touching the same day and slot.
func (s *SubstituteService) lockSlot(ctx context.Context, slot scheduler.SlotKey) (func(), error) {
	key := slot.String()
	unlock := s.slots.Lock(key)
	if !s.cfg.DistributedLocksEnabled || s.lock == nil {
		return unlock, nil
	}

	token, ok, err := s.lock.Acquire(ctx, key, s.cfg.LockTTL)
	if err != nil {
		unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "slot lock unavailable")
	}
	if !ok {
		unlock()
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("another substitution for %s is in progress", key))
	}
	return func() {
		// the request context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.lock.Release(releaseCtx, key, token); err != nil {
			s.logger.Warn("failed to release slot lock", zap.String("slot", key), zap.Error(err))
		}
		unlock()
	}, nil
}

func (s *SubstituteService) loadInput(ctx context.Context, absence models.Absence) (scheduler.ResolveInput, error) {
	timetable, err := s.timetable.ListAll(ctx, nil)
	if err != nil {
		return scheduler.ResolveInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current timetable")
	}
	faculty, err := s.faculty.List(ctx)
	if err != nil {
		return scheduler.ResolveInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	subjects, err := s.subjects.List(ctx)
	if err != nil {
		return scheduler.ResolveInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	classrooms, err := s.classrooms.List(ctx)
	if err != nil {
		return scheduler.ResolveInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classrooms")
	}
	batches, err := s.batches.List(ctx)
	if err != nil {
		return scheduler.ResolveInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batches")
	}
	return scheduler.ResolveInput{
		Absence:    absence,
		Timetable:  timetable,
		Faculty:    faculty,
		Subjects:   subjects,
		Classrooms: classrooms,
		Batches:    batches,
	}, nil
}

// persist swaps the entry's lecturer and closes the absence in one transaction.
// Both writes are compare-and-swap; losing either race is a CONFLICT.
func (s *SubstituteService) persist(ctx context.Context, res *scheduler.Resolution) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.timetable.LockEntries(ctx, tx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock timetable")
	}

	substitute := res.SubstituteID()
	busy, err := s.timetable.FacultyBusyAt(ctx, tx, substitute, res.Original.Day, res.Original.TimeSlot)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check substitute availability")
	}
	if busy {
		return appErrors.Clone(appErrors.ErrConflict, "substitute was booked at this slot by a concurrent change")
	}

	swapped, err := s.timetable.ReassignFaculty(ctx, tx, res.Original.ID, res.Original.FacultyID, substitute)
	if errors.Is(err, repository.ErrSlotTaken) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "substitute was booked at this slot by a concurrent change")
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reassign timetable entry")
	}
	if !swapped {
		return appErrors.Clone(appErrors.ErrConflict, "timetable entry changed while resolving the substitute")
	}

	marked, err := s.absences.MarkSubstituted(ctx, tx, res.Absence.ID, substitute)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update absence")
	}
	if !marked {
		return appErrors.Clone(appErrors.ErrConflict, "absence was already handled by another request")
	}

	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit substitution")
	}
	return nil
}
