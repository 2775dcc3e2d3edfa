package dto

import (
	"time"

	"github.com/noah-isme/ctf-go-api/internal/models"
)

// RegisterRequest creates a new account, optionally founding a team.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=256"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	TeamName string `json:"team_name" validate:"omitempty,max=255"`
}

// LoginRequest exchanges credentials for an access token.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserResponse is the public account representation.
type UserResponse struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	TeamID *uint  `json:"team_id,omitempty"`
}

// AuthResponse carries an issued token.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// NewUserResponse converts a user model.
func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:     user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   user.Role,
		TeamID: user.TeamID,
	}
}
