package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/invoicer/internal/application/dto"
	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/internal/infrastructure/audit"
	"github.com/turtacn/invoicer/internal/infrastructure/crypto"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
)

// SignedURLMetrics receives one observation per signed URL check.
type SignedURLMetrics interface {
	RecordSignedURL(result string)
}

// SignedPathFromParam attaches the named route parameter as the signed path.
func SignedPathFromParam(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p := c.Param(name); p != "" {
			c.Set(string(constants.ContextKeySignedPath), p)
		}
		c.Next()
	}
}

// RequireSignedURL lets a request through only with a valid, unexpired signature for
// its resource path. Every failure gets the same 403 body. On success the verified
// path is stored under the signed path context key.
func RequireSignedURL(signer *crypto.URLSigner, metrics SignedURLMetrics, recorder *audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		expires := requestParam(c, constants.SignedURLParamExpires)
		signature := requestParam(c, constants.SignedURLParamSignature)
		path := resourcePath(c)

		if !signer.Verify(path, expires, signature) {
			if metrics != nil {
				metrics.RecordSignedURL("rejected")
			}
			recorder.Record(c.Request.Context(),
				models.NewAuditEvent(constants.AuditEventSignedURLRejected, "").
					WithClientIP(c.ClientIP()).
					WithDetail("path", path))
			dto.SendError(c, errors.ErrInvalidSignature)
			c.Abort()
			return
		}

		if metrics != nil {
			metrics.RecordSignedURL("accepted")
		}
		c.Set(string(constants.ContextKeySignedPath), path)
		c.Next()
	}
}

// SignedPath returns the path verified by RequireSignedURL.
func SignedPath(c *gin.Context) string {
	return crypto.NormalizeResourcePath(c.GetString(string(constants.ContextKeySignedPath)))
}

// requestParam reads name from the query string, then from the form body.
func requestParam(c *gin.Context, name string) string {
	if v, ok := c.GetQuery(name); ok {
		return v
	}
	v, _ := c.GetPostForm(name)
	return v
}

// resourcePath resolves the signed resource: explicit path parameter, then the
// attached signed path, then the request URL path.
func resourcePath(c *gin.Context) string {
	if p := requestParam(c, constants.SignedURLParamPath); p != "" {
		return crypto.NormalizeResourcePath(p)
	}
	if p := c.GetString(string(constants.ContextKeySignedPath)); p != "" {
		return crypto.NormalizeResourcePath(p)
	}
	return crypto.NormalizeResourcePath(c.Request.URL.Path)
}
