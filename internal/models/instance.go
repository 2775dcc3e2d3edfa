package models

import "time"

// RunningChallenge is a live per-user deployment of a challenge.
type RunningChallenge struct {
	ID          string    `gorm:"primaryKey;size:10" json:"id"`
	ChallengeID uint      `gorm:"not null;uniqueIndex:idx_running_challenge_user" json:"challenge_id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_running_challenge_user" json:"user_id"`
	Flag        string    `gorm:"size:255;not null" json:"-"`
	StartTime   time.Time `gorm:"not null" json:"start_time"`
	EndTime     time.Time `gorm:"not null;index" json:"end_time"`

	Challenge *Challenge `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

// PendingTeardown records an orchestrator teardown that still has to be confirmed.
type PendingTeardown struct {
	InstanceID string    `gorm:"primaryKey;size:10" json:"instance_id"`
	Reason     string    `gorm:"size:32;not null" json:"reason"`
	Attempts   int       `gorm:"not null;default:0" json:"attempts"`
	LastError  string    `gorm:"type:text" json:"last_error"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Teardown reasons.
const (
	TeardownReasonSolved  = "solved"
	TeardownReasonStopped = "stopped"
	TeardownReasonExpired = "expired"
)
