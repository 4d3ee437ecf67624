package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/reelsense/internal/domain"
	"gorm.io/gorm"
)

// RunRepository records pipeline runs.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run.
func (r *RunRepository) Create(ctx context.Context, run *domain.AnalysisRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Update saves every field of run.
func (r *RunRepository) Update(ctx context.Context, run *domain.AnalysisRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// GetByID retrieves a run. Missing runs wrap domain.ErrNotFound.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	var run domain.AnalysisRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// ListRecent lists runs newest first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]domain.AnalysisRun, error) {
	var runs []domain.AnalysisRun
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limitOrDefault(limit)).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
