package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/ctf-go-api/internal/models"
)

// Migrate creates or updates the tables owned by the API.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Team{},
		&models.User{},
		&models.Challenge{},
		&models.DynamicChallenge{},
		&models.RunningChallenge{},
		&models.Submission{},
		&models.PendingTeardown{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
