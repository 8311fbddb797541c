// Package repository defines the persistence contracts of the domain models.
package repository

import (
	"context"

	"github.com/turtacn/invoicer/internal/domain/models"
)

// UserRepository defines persistence operations on users.
// Implementations: internal/infrastructure/persistence/postgres/user_repo_impl.go
// and the read-through cache in internal/infrastructure/persistence/cache.
type UserRepository interface {
	// FindByID returns the user with the given id, or errors.ErrNotFound.
	FindByID(ctx context.Context, id string) (*models.User, error)

	// FindByEmail returns the user with the given email, or errors.ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// Create persists a new user and assigns its id.
	Create(ctx context.Context, user *models.User) error
}
