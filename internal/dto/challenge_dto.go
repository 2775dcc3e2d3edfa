package dto

import (
	"time"

	"github.com/noah-isme/ctf-go-api/internal/models"
)

// Link is a reachable endpoint of a running instance.
type Link struct {
	URL         string `json:"url"`
	Protocol    string `json:"protocol"`
	Description string `json:"description,omitempty"`
}

// DecayFunction describes how a dynamic challenge loses value.
type DecayFunction struct {
	Function string `json:"function"`
	Decay    int    `json:"decay"`
	Minimum  int    `json:"minimum"`
}

// ChallengeValue is the scoring information shown to competitors.
type ChallengeValue struct {
	Type          string         `json:"type"`
	Points        int            `json:"points"`
	DecayFunction *DecayFunction `json:"decay_function,omitempty"`
}

// ChallengeFileResponse is a downloadable attachment.
type ChallengeFileResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
	Type string `json:"type,omitempty"`
}

// ChallengeView is the public view of a challenge scoped to the requesting user.
type ChallengeView struct {
	ID           uint                    `json:"id"`
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	Category     string                  `json:"category"`
	Author       string                  `json:"author"`
	Value        ChallengeValue          `json:"value"`
	Hints        []string                `json:"hints"`
	Files        []ChallengeFileResponse `json:"files"`
	Solves       int64                   `json:"solves"`
	Deployable   bool                    `json:"deployable"`
	DynamicFlag  bool                    `json:"dynamic_flag"`
	IsSolved     bool                    `json:"is_solved"`
	Links        []Link                  `json:"links"`
	InstanceName string                  `json:"instance_name,omitempty"`
	StartTime    *time.Time              `json:"start_time,omitempty"`
	EndTime      *time.Time              `json:"end_time,omitempty"`
}

// NewChallengeFileResponses converts stored attachments.
func NewChallengeFileResponses(files []models.ChallengeFile) []ChallengeFileResponse {
	responses := make([]ChallengeFileResponse, 0, len(files))
	for _, file := range files {
		responses = append(responses, ChallengeFileResponse{
			Name: file.Name,
			URL:  file.URL,
			Size: file.Size,
			Type: file.Type,
		})
	}

	return responses
}

// NewDecayFunction converts a decay row. Nil input yields nil.
func NewDecayFunction(dynamic *models.DynamicChallenge) *DecayFunction {
	if dynamic == nil {
		return nil
	}

	return &DecayFunction{
		Function: dynamic.Function,
		Decay:    dynamic.Decay,
		Minimum:  dynamic.Minimum,
	}
}
