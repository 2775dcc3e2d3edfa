package dto

import (
	"time"
)

// InstanceResponse describes a running challenge instance.
type InstanceResponse struct {
	ID          string    `json:"id"`
	ChallengeID uint      `json:"challenge_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Links       []Link    `json:"links"`
}

// FlagSubmitRequest captures a flag attempt. InstanceID is required for per-instance flags.
type FlagSubmitRequest struct {
	Flag       string `json:"flag" validate:"required,max=255"`
	InstanceID string `json:"instance_id" validate:"omitempty,len=8,alphanum,lowercase"`
}

// FlagSubmitResponse reports the outcome of a flag attempt.
type FlagSubmitResponse struct {
	ChallengeID uint `json:"challenge_id"`
	Correct     bool `json:"correct"`
}
