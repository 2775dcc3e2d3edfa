package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/ctf-go-api/internal/models"
)

// ChallengeRepository provides persistence for challenges and their decay parameters.
type ChallengeRepository interface {
	List(ctx context.Context, includeHidden bool) ([]models.Challenge, error)
	GetByID(ctx context.Context, id uint) (models.Challenge, error)
	GetDynamic(ctx context.Context, id uint) (*models.DynamicChallenge, error)
	ListDynamic(ctx context.Context, ids []uint) (map[uint]models.DynamicChallenge, error)
	Create(ctx context.Context, challenge *models.Challenge, dynamic *models.DynamicChallenge) error
	Update(ctx context.Context, challenge *models.Challenge, dynamic *models.DynamicChallenge) error
	Delete(ctx context.Context, id uint) error
}

type challengeRepository struct {
	db *gorm.DB
}

// NewChallengeRepository constructs a challenge repository.
func NewChallengeRepository(db *gorm.DB) ChallengeRepository {
	return &challengeRepository{db: db}
}

func (r *challengeRepository) List(ctx context.Context, includeHidden bool) ([]models.Challenge, error) {
	query := r.db.WithContext(ctx).Order("category ASC, id ASC")
	if !includeHidden {
		query = query.Where("hidden = ?", false)
	}

	var challenges []models.Challenge
	if err := query.Find(&challenges).Error; err != nil {
		return nil, err
	}

	return challenges, nil
}

func (r *challengeRepository) GetByID(ctx context.Context, id uint) (models.Challenge, error) {
	var challenge models.Challenge
	if err := r.db.WithContext(ctx).First(&challenge, id).Error; err != nil {
		return models.Challenge{}, err
	}

	return challenge, nil
}

// GetDynamic returns nil when the challenge has no decay parameters.
func (r *challengeRepository) GetDynamic(ctx context.Context, id uint) (*models.DynamicChallenge, error) {
	var dynamic []models.DynamicChallenge
	if err := r.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&dynamic).Error; err != nil {
		return nil, err
	}
	if len(dynamic) == 0 {
		return nil, nil
	}

	return &dynamic[0], nil
}

func (r *challengeRepository) ListDynamic(ctx context.Context, ids []uint) (map[uint]models.DynamicChallenge, error) {
	result := make(map[uint]models.DynamicChallenge, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var dynamic []models.DynamicChallenge
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&dynamic).Error; err != nil {
		return nil, err
	}

	for _, item := range dynamic {
		result[item.ID] = item
	}

	return result, nil
}

// Create inserts the challenge and, for dynamic scoring, its decay row in one transaction.
func (r *challengeRepository) Create(ctx context.Context, challenge *models.Challenge, dynamic *models.DynamicChallenge) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(challenge).Error; err != nil {
			return err
		}

		if dynamic == nil {
			return nil
		}

		dynamic.ID = challenge.ID
		return tx.Create(dynamic).Error
	})
}

func (r *challengeRepository) Update(ctx context.Context, challenge *models.Challenge, dynamic *models.DynamicChallenge) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(challenge).Error; err != nil {
			return err
		}

		if err := tx.Where("id = ?", challenge.ID).Delete(&models.DynamicChallenge{}).Error; err != nil {
			return err
		}

		if dynamic == nil {
			return nil
		}

		dynamic.ID = challenge.ID
		return tx.Create(dynamic).Error
	})
}

func (r *challengeRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Delete(&models.DynamicChallenge{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Challenge{}, id)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return nil
	})
}
