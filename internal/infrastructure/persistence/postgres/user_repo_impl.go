package postgres

import (
	"context"
	stderrors "errors"
	"strings"

	"gorm.io/gorm"

	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/internal/domain/repository"
	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/logger"
)

type userRepository struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewUserRepository creates a gorm backed UserRepository.
func NewUserRepository(db *gorm.DB, log logger.Logger) repository.UserRepository {
	return &userRepository{db: db, logger: log}
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepository) first(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound
		}
		r.logger.Error(ctx, "Failed to query user", err)
		return nil, errors.ErrDatabaseUnavailable.WithCause(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.ErrInvalidRequest("email already registered")
		}
		return errors.ErrDatabaseUnavailable.WithCause(err)
	}
	return nil
}
