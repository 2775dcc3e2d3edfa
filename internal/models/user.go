package models

import "time"

// User roles carried in access tokens.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered competitor or administrator.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:256;not null" json:"name"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	TeamID       *uint     `gorm:"uniqueIndex" json:"team_id,omitempty"`
	Role         string    `gorm:"size:16;not null;default:user" json:"role"`
	Verified     bool      `gorm:"not null;default:false" json:"verified"`
	Hidden       bool      `gorm:"not null;default:false" json:"hidden"`
	Banned       bool      `gorm:"not null;default:false" json:"banned"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Team groups users that share solves on the scoreboard.
type Team struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;uniqueIndex;not null" json:"name"`
	CaptainID uint      `gorm:"uniqueIndex;not null" json:"captain_id"`
	Hidden    bool      `gorm:"not null;default:false" json:"hidden"`
	Banned    bool      `gorm:"not null;default:false" json:"banned"`
	CreatedAt time.Time `json:"created_at"`
}
