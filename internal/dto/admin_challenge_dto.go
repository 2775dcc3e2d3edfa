package dto

import (
	"time"

	"github.com/noah-isme/ctf-go-api/internal/models"
)

// DecayRequest configures dynamic scoring.
type DecayRequest struct {
	Function string `json:"function" validate:"required,oneof=linear logarithmic"`
	Decay    int    `json:"decay" validate:"min=0"`
	Minimum  int    `json:"minimum" validate:"min=0"`
}

// ChallengeUpsertRequest is the admin payload for creating or replacing a challenge.
type ChallengeUpsertRequest struct {
	Name        string                 `json:"name" validate:"required,max=255"`
	Category    string                 `json:"category" validate:"required,max=64"`
	Author      string                 `json:"author" validate:"omitempty,max=255"`
	Description string                 `json:"description"`
	Flag        string                 `json:"flag" validate:"required,max=255"`
	Type        string                 `json:"type" validate:"required,oneof=static dynamic"`
	Value       int                    `json:"value" validate:"min=0"`
	Decay       *DecayRequest          `json:"decay,omitempty"`
	DynamicFlag bool                   `json:"dynamic_flag"`
	Hidden      bool                   `json:"hidden"`
	Hints       []string               `json:"hints" validate:"omitempty,dive,max=2048"`
	Deploy      *models.DeployTemplate `json:"deploy,omitempty"`
}

// AdminChallengeResponse is the full challenge representation for administrators.
type AdminChallengeResponse struct {
	ID          uint                    `json:"id"`
	Name        string                  `json:"name"`
	Category    string                  `json:"category"`
	Author      string                  `json:"author"`
	Description string                  `json:"description"`
	Flag        string                  `json:"flag"`
	Type        string                  `json:"type"`
	Value       int                     `json:"value"`
	Decay       *DecayFunction          `json:"decay,omitempty"`
	DynamicFlag bool                    `json:"dynamic_flag"`
	Hidden      bool                    `json:"hidden"`
	Hints       []string                `json:"hints"`
	Files       []ChallengeFileResponse `json:"files"`
	Deploy      *models.DeployTemplate  `json:"deploy,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// NewAdminChallengeResponse converts a challenge and its decay row.
func NewAdminChallengeResponse(challenge models.Challenge, dynamic *models.DynamicChallenge) AdminChallengeResponse {
	response := AdminChallengeResponse{
		ID:          challenge.ID,
		Name:        challenge.Name,
		Category:    challenge.Category,
		Author:      challenge.Author,
		Description: challenge.Description,
		Flag:        challenge.Flag,
		Type:        challenge.Type,
		Value:       challenge.Value,
		Decay:       NewDecayFunction(dynamic),
		DynamicFlag: challenge.DynamicFlag,
		Hidden:      challenge.Hidden,
		Hints:       challenge.HintList(),
		Files:       NewChallengeFileResponses(challenge.FileList()),
		CreatedAt:   challenge.CreatedAt,
		UpdatedAt:   challenge.UpdatedAt,
	}

	if template, err := challenge.DeployTemplate(); err == nil && len(template.Containers) > 0 {
		response.Deploy = &template
	}

	return response
}
