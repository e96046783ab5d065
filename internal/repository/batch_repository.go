package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

const batchColumns = "id, name, department, year, semester, student_count, created_at, updated_at"

// BatchRepository reads student cohorts.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository creates a new repository instance.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// List returns all batches ordered by name.
func (r *BatchRepository) List(ctx context.Context) ([]models.Batch, error) {
	query := "SELECT " + batchColumns + " FROM batches ORDER BY name ASC"
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// ListByIDs returns the batches with the given ids. Unknown ids are skipped.
func (r *BatchRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Batch, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT "+batchColumns+" FROM batches WHERE id IN (?) ORDER BY name ASC", ids)
	if err != nil {
		return nil, fmt.Errorf("build batch lookup: %w", err)
	}
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list batches by id: %w", err)
	}
	return batches, nil
}

// FindByID returns a batch by id.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	query := "SELECT " + batchColumns + " FROM batches WHERE id = $1"
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}
