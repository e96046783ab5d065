package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// AbsenceRepository persists lecturer absences.
type AbsenceRepository struct {
	db *sqlx.DB
}

// NewAbsenceRepository builds repository.
func NewAbsenceRepository(db *sqlx.DB) *AbsenceRepository {
	return &AbsenceRepository{db: db}
}

// FindByID returns an absence by id.
func (r *AbsenceRepository) FindByID(ctx context.Context, id string) (*models.Absence, error) {
	const query = `SELECT id, lecturer_id, date, time_slot, reason, status, substitute_id, created_at, updated_at
FROM absences WHERE id = $1`
	var absence models.Absence
	if err := r.db.GetContext(ctx, &absence, query, id); err != nil {
		return nil, err
	}
	return &absence, nil
}

// MarkSubstituted moves a pending absence to substituted. It reports false when the absence
// was no longer pending.
func (r *AbsenceRepository) MarkSubstituted(ctx context.Context, exec sqlx.ExtContext, id, substituteID string) (bool, error) {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE absences SET status = $2, substitute_id = $3, updated_at = $4 WHERE id = $1 AND status = $5`
	res, err := exec.ExecContext(ctx, query, id, models.AbsenceStatusSubstituted, substituteID, time.Now().UTC(), models.AbsenceStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark absence substituted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark absence substituted: %w", err)
	}
	return affected == 1, nil
}
