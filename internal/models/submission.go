package models

import "time"

// Submission is an append-only record of a flag attempt.
type Submission struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index:idx_submission_user_challenge" json:"user_id"`
	TeamID      *uint     `gorm:"index" json:"team_id,omitempty"`
	ChallengeID uint      `gorm:"not null;index:idx_submission_user_challenge" json:"challenge_id"`
	InstanceID  string    `gorm:"size:10" json:"instance_id,omitempty"`
	Answer      string    `gorm:"type:text;not null" json:"-"`
	Correct     bool      `gorm:"column:type;not null" json:"correct"`
	CreatedAt   time.Time `gorm:"column:date" json:"date"`
}
