package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/ctf-go-api/internal/models"
)

// TeardownRepository tracks orchestrator teardowns awaiting confirmation.
type TeardownRepository interface {
	Enqueue(ctx context.Context, instanceID, reason string) error
	List(ctx context.Context, limit int) ([]models.PendingTeardown, error)
	MarkFailed(ctx context.Context, instanceID, message string) error
	Delete(ctx context.Context, instanceID string) error
}

type teardownRepository struct {
	db *gorm.DB
}

// NewTeardownRepository constructs a pending teardown repository.
func NewTeardownRepository(db *gorm.DB) TeardownRepository {
	return &teardownRepository{db: db}
}

func (r *teardownRepository) Enqueue(ctx context.Context, instanceID, reason string) error {
	pending := models.PendingTeardown{InstanceID: instanceID, Reason: reason}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instance_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "updated_at"}),
	}).Create(&pending).Error
}

func (r *teardownRepository) List(ctx context.Context, limit int) ([]models.PendingTeardown, error) {
	query := r.db.WithContext(ctx).Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var pending []models.PendingTeardown
	if err := query.Find(&pending).Error; err != nil {
		return nil, err
	}

	return pending, nil
}

func (r *teardownRepository) MarkFailed(ctx context.Context, instanceID, message string) error {
	return r.db.WithContext(ctx).
		Model(&models.PendingTeardown{}).
		Where("instance_id = ?", instanceID).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": message,
		}).Error
}

func (r *teardownRepository) Delete(ctx context.Context, instanceID string) error {
	return r.db.WithContext(ctx).Where("instance_id = ?", instanceID).Delete(&models.PendingTeardown{}).Error
}
