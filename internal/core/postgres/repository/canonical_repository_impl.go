package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"canonsync/internal/core/ports"
	"canonsync/internal/domain"
)

type canonicalRepository struct {
	db *gorm.DB
}

// NewCanonicalRepository creates a new instance of CanonicalRepository
func NewCanonicalRepository(db *gorm.DB) ports.CanonicalRepository {
	return &canonicalRepository{db: db}
}

func (r *canonicalRepository) Create(ctx context.Context, workflow *domain.CanonicalWorkflow) error {
	return r.db.WithContext(ctx).Create(workflow).Error
}

func (r *canonicalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CanonicalWorkflow, error) {
	var workflow domain.CanonicalWorkflow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&workflow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

// SoftDelete sets deleted_at. The guard on deleted_at keeps the first
// deletion timestamp when called twice.
func (r *canonicalRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&domain.CanonicalWorkflow{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", time.Now()).Error
}
