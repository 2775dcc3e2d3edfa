package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/ctf-go-api/internal/models"
)

// RunningChallengeRepository persists live challenge instances.
type RunningChallengeRepository interface {
	Create(ctx context.Context, instance *models.RunningChallenge) error
	GetByID(ctx context.Context, id string) (models.RunningChallenge, error)
	FindForUser(ctx context.Context, challengeID, userID uint) (*models.RunningChallenge, error)
	ListByUser(ctx context.Context, userID uint) ([]models.RunningChallenge, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.RunningChallenge, error)
	CountByChallenge(ctx context.Context, challengeID uint) (int64, error)
	Delete(ctx context.Context, id string) error
}

type runningChallengeRepository struct {
	db *gorm.DB
}

// NewRunningChallengeRepository constructs a running challenge repository.
func NewRunningChallengeRepository(db *gorm.DB) RunningChallengeRepository {
	return &runningChallengeRepository{db: db}
}

func (r *runningChallengeRepository) Create(ctx context.Context, instance *models.RunningChallenge) error {
	return r.db.WithContext(ctx).Create(instance).Error
}

func (r *runningChallengeRepository) GetByID(ctx context.Context, id string) (models.RunningChallenge, error) {
	var instance models.RunningChallenge
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&instance).Error; err != nil {
		return models.RunningChallenge{}, err
	}

	return instance, nil
}

// FindForUser returns nil when the user has no instance of the challenge.
func (r *runningChallengeRepository) FindForUser(ctx context.Context, challengeID, userID uint) (*models.RunningChallenge, error) {
	var instance models.RunningChallenge
	err := r.db.WithContext(ctx).
		Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &instance, nil
}

func (r *runningChallengeRepository) ListByUser(ctx context.Context, userID uint) ([]models.RunningChallenge, error) {
	var instances []models.RunningChallenge
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_time ASC").
		Find(&instances).Error; err != nil {
		return nil, err
	}

	return instances, nil
}

func (r *runningChallengeRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.RunningChallenge, error) {
	query := r.db.WithContext(ctx).
		Where("end_time < ?", now).
		Order("end_time ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var instances []models.RunningChallenge
	if err := query.Find(&instances).Error; err != nil {
		return nil, err
	}

	return instances, nil
}

func (r *runningChallengeRepository) CountByChallenge(ctx context.Context, challengeID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.RunningChallenge{}).
		Where("challenge_id = ?", challengeID).
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// Delete removes the instance row. Deleting a missing row is not an error.
func (r *runningChallengeRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.RunningChallenge{}).Error
}
