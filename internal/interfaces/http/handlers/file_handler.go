package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/invoicer/internal/application/dto"
	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/internal/infrastructure/audit"
	"github.com/turtacn/invoicer/internal/infrastructure/crypto"
	"github.com/turtacn/invoicer/internal/interfaces/http/middleware"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/logger"
)

// FileHandler serves private files behind signed URLs and mints those URLs.
type FileHandler struct {
	signer   *crypto.URLSigner
	cfg      config.SignedURLConfig
	recorder *audit.Recorder
	logger   logger.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(signer *crypto.URLSigner, cfg config.SignedURLConfig, recorder *audit.Recorder, log logger.Logger) *FileHandler {
	if cfg.TTL <= 0 {
		cfg.TTL = constants.DefaultSignedURLTTL
	}
	return &FileHandler{signer: signer, cfg: cfg, recorder: recorder, logger: log}
}

// Serve streams the file whose path was verified by RequireSignedURL.
func (h *FileHandler) Serve(c *gin.Context) {
	full, ok := h.locate(middleware.SignedPath(c))
	if !ok {
		dto.SendError(c, errors.ErrInvalidSignature)
		return
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		dto.SendError(c, errors.ErrNotFound)
		return
	}

	c.Header("Cache-Control", "private, no-store")
	c.File(full)
}

// Link returns a temporary link for a stored file.
func (h *FileHandler) Link(c *gin.Context) {
	var req dto.SignedLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.SendValidationError(c, err)
		return
	}

	path := crypto.NormalizeResourcePath(req.Path)
	full, ok := h.locate(path)
	if !ok {
		dto.SendError(c, errors.ErrInvalidRequest("The path is invalid."))
		return
	}
	if info, err := os.Stat(full); err != nil || info.IsDir() {
		dto.SendError(c, errors.ErrNotFound)
		return
	}

	ttl := h.cfg.TTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	res := h.signer.Resource(path, ttl)
	link, err := h.signer.URL(strings.TrimRight(h.cfg.BaseURL, "/")+"/files", res)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Failed to build signed link", err)
		dto.SendError(c, errors.ErrInternal)
		return
	}

	subject := ""
	if user, ok := middleware.CurrentUser(c); ok {
		subject = user.ID
	}
	h.recorder.Record(c.Request.Context(), models.NewAuditEvent(constants.AuditEventSignedURLGenerated, subject).
		WithClientIP(c.ClientIP()).
		WithDetail("path", path))

	c.JSON(http.StatusOK, dto.SignedLinkResponse{URL: link, ExpiresAt: time.Unix(res.ExpiresAt, 0).UTC()})
}

// locate maps a resource path onto the storage root. Empty paths, dot-dot segments and
// anything resolving outside the root are refused.
func (h *FileHandler) locate(rel string) (string, bool) {
	if rel == "" || h.cfg.StorageRoot == "" {
		return "", false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", false
		}
	}
	if strings.ContainsRune(rel, '\\') || strings.ContainsRune(rel, 0) {
		return "", false
	}

	root, err := filepath.Abs(h.cfg.StorageRoot)
	if err != nil {
		return "", false
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	inside, err := filepath.Rel(root, full)
	if err != nil || inside == "." || strings.HasPrefix(inside, "..") {
		return "", false
	}
	return full, true
}
