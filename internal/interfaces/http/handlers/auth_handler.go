package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/invoicer/internal/application/dto"
	"github.com/turtacn/invoicer/internal/application/service"
	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/internal/infrastructure/audit"
	"github.com/turtacn/invoicer/internal/interfaces/http/middleware"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/logger"
)

// AuthHandler handles password login, logout and the current user endpoint.
type AuthHandler struct {
	users    service.UserAppService
	gate     *middleware.SessionGate
	recorder *audit.Recorder
	logger   logger.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users service.UserAppService, gate *middleware.SessionGate, recorder *audit.Recorder, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		gate:     gate,
		recorder: recorder,
		logger:   log,
	}
}

// Login checks the credentials and issues the session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		dto.SendValidationError(c, err)
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidCredentials) {
			h.recorder.Record(ctx, models.NewAuditEvent(constants.AuditEventLoginFailed, "").
				WithClientIP(c.ClientIP()))
		} else {
			h.logger.Error(ctx, "Login failed", err)
		}
		dto.SendError(c, err)
		return
	}

	if err := h.gate.Login(c, models.NewSessionClaims(user.ID), h.gate.TTL()); err != nil {
		h.logger.Error(ctx, "Failed to issue session", err, logger.String("user_id", user.ID))
		dto.SendError(c, errors.ErrInternal)
		return
	}

	h.recorder.Record(ctx, models.NewAuditEvent(constants.AuditEventLoginSucceeded, user.ID).
		WithClientIP(c.ClientIP()))
	c.JSON(http.StatusOK, dto.NewUserResponse(user))
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	subject := ""
	if user, ok := middleware.CurrentUser(c); ok {
		subject = user.ID
	}
	h.gate.Logout(c)

	h.recorder.Record(c.Request.Context(), models.NewAuditEvent(constants.AuditEventLogout, subject).
		WithClientIP(c.ClientIP()))
	c.Status(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		dto.SendError(c, errors.ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserResponse(user))
}
