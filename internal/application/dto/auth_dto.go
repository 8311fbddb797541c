package dto

import (
	"time"

	"github.com/turtacn/invoicer/internal/domain/models"
)

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email,max=255"`
	Password string `json:"password" form:"password" binding:"required,min=1,max=1024"`
}

// CreateUserRequest carries the fields needed to register an account.
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Name     string `json:"name" binding:"max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserResponse converts a user model to its public view.
func NewUserResponse(u *models.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}

// MessageResponse is the body used by the fixed message responses.
type MessageResponse struct {
	Message string `json:"message"`
}
