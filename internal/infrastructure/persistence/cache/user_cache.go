// Package cache provides in-memory read-through decorators for repositories.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/internal/domain/repository"
)

// CachedUserRepository caches user lookups by id. Session resolution hits it on every
// authenticated request.
type CachedUserRepository struct {
	next  repository.UserRepository
	users *gocache.Cache
}

// NewCachedUserRepository wraps next with a cache whose entries live for ttl.
func NewCachedUserRepository(next repository.UserRepository, ttl time.Duration) *CachedUserRepository {
	return &CachedUserRepository{
		next:  next,
		users: gocache.New(ttl, 2*ttl),
	}
}

func (r *CachedUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	if v, ok := r.users.Get(id); ok {
		u := v.(models.User)
		return &u, nil
	}

	user, err := r.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.users.SetDefault(id, *user)
	return user, nil
}

// FindByEmail is not cached; it is only used by the login flow.
func (r *CachedUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.next.FindByEmail(ctx, email)
}

func (r *CachedUserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.next.Create(ctx, user); err != nil {
		return err
	}
	r.users.Delete(user.ID)
	return nil
}

// Invalidate drops a cached user, e.g. after deactivation.
func (r *CachedUserRepository) Invalidate(id string) {
	r.users.Delete(id)
}
