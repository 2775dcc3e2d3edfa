package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/ctf-go-api/internal/models"
)

// UserRepository handles account persistence.
type UserRepository interface {
	Create(ctx context.Context, user *models.User, teamName string) error
	GetByID(ctx context.Context, id uint) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a user repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create stores the user. When teamName is set a team captained by the user is created as well.
func (r *userRepository) Create(ctx context.Context, user *models.User, teamName string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}

		teamName = strings.TrimSpace(teamName)
		if teamName == "" {
			return nil
		}

		team := models.Team{Name: teamName, CaptainID: user.ID}
		if err := tx.Create(&team).Error; err != nil {
			return err
		}

		user.TeamID = &team.ID
		return tx.Model(user).Update("team_id", team.ID).Error
	})
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error; err != nil {
		return models.User{}, err
	}

	return user, nil
}
