// Package service provides application services that orchestrate repositories and
// infrastructure for the HTTP handlers and the admin CLI.
package service

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/turtacn/invoicer/internal/application/dto"
	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/internal/domain/repository"
	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/logger"
	"github.com/turtacn/invoicer/pkg/utils"
)

// dummyHash is compared against when the email is unknown so both failure paths cost one bcrypt run.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("invoicer-timing-equalizer"), bcrypt.DefaultCost)

// UserAppService authenticates and registers users.
type UserAppService interface {
	// Authenticate returns the active user owning email and password, or errors.ErrInvalidCredentials.
	Authenticate(ctx context.Context, email, password string) (*models.User, error)

	// Register creates an active user with a bcrypt password hash.
	Register(ctx context.Context, req *dto.CreateUserRequest) (*models.User, error)
}

type userAppServiceImpl struct {
	users  repository.UserRepository
	cost   int
	logger logger.Logger
}

// NewUserAppService creates a UserAppService. cost <= 0 selects bcrypt.DefaultCost.
func NewUserAppService(users repository.UserRepository, cost int, log logger.Logger) UserAppService {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &userAppServiceImpl{users: users, cost: cost, logger: log}
}

func (s *userAppServiceImpl) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.logger.Info(ctx, "Login attempt for unknown email", logger.String("email", utils.MaskEmail(email)))
		return nil, errors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info(ctx, "Login attempt with wrong password", logger.String("user_id", user.ID))
		return nil, errors.ErrInvalidCredentials
	}
	if !user.Active {
		s.logger.Warn(ctx, "Login attempt for inactive user", logger.String("user_id", user.ID))
		return nil, errors.ErrInvalidCredentials
	}
	return user, nil
}

func (s *userAppServiceImpl) Register(ctx context.Context, req *dto.CreateUserRequest) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, errors.ErrInvalidRequest("email and password are required").WithCause(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.ErrInvalidRequest("password cannot be hashed").WithCause(err)
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "User registered", logger.String("user_id", user.ID), logger.String("email", utils.MaskEmail(user.Email)))
	return user, nil
}
