package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/internal/domain/repository"
	"github.com/turtacn/invoicer/internal/infrastructure/crypto"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/logger"
)

const sessionResolvedKey = "auth_resolved"

// Session resolution outcomes reported to metrics.
const (
	SessionAuthenticated = "authenticated"
	SessionAnonymous     = "anonymous"
	SessionInvalid       = "invalid"
	SessionUnknownUser   = "unknown_user"
	SessionInactive      = "inactive"
	SessionError         = "error"
)

// SessionMetrics receives one observation per session resolution.
type SessionMetrics interface {
	RecordSession(result string)
}

// SessionGate authenticates requests with an encrypted cookie holding token claims.
// Login and Logout write Set-Cookie headers, so they must run before the response body.
type SessionGate struct {
	codec   *crypto.TokenCodec
	users   repository.UserRepository
	cfg     config.SessionConfig
	metrics SessionMetrics
	logger  logger.Logger
	now     func() time.Time
}

// NewSessionGate creates a gate. metrics may be nil.
func NewSessionGate(codec *crypto.TokenCodec, users repository.UserRepository, cfg config.SessionConfig, metrics SessionMetrics, log logger.Logger) *SessionGate {
	if cfg.CookieName == "" {
		cfg.CookieName = constants.DefaultSessionCookieName
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = constants.DefaultLoginPath
	}
	if cfg.HomePath == "" {
		cfg.HomePath = "/"
	}
	return &SessionGate{
		codec:   codec,
		users:   users,
		cfg:     cfg,
		metrics: metrics,
		logger:  log.WithFields(logger.String("component", "session")),
		now:     time.Now,
	}
}

// Login issues a token for claims and stores it in the session cookie. The value is also
// mirrored into the current request so Resolve sees it without a round trip.
func (g *SessionGate) Login(c *gin.Context, claims models.Claims, ttl time.Duration) error {
	token, err := g.codec.Issue(claims, ttl)
	if err != nil {
		return err
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  g.now().Add(ttl),
		MaxAge:   int(ttl / time.Second),
		Secure:   g.isSecure(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	mirrorCookie(c.Request, g.cfg.CookieName, token)
	c.Set(sessionResolvedKey, false)
	return nil
}

// Logout overwrites the cookie with an expired empty value and clears the mirror.
func (g *SessionGate) Logout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   g.isSecure(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	mirrorCookie(c.Request, g.cfg.CookieName, "")
	c.Set(sessionResolvedKey, true)
	c.Set(string(constants.ContextKeyUser), (*models.User)(nil))
}

// Resolve returns the authenticated user for the request. Invalid tokens, unknown and
// inactive users all yield (nil, false). The outcome is cached for the request.
func (g *SessionGate) Resolve(c *gin.Context) (*models.User, bool) {
	if c.GetBool(sessionResolvedKey) {
		return CurrentUser(c)
	}

	user, result := g.resolve(c)
	if g.metrics != nil {
		g.metrics.RecordSession(result)
	}

	c.Set(sessionResolvedKey, true)
	c.Set(string(constants.ContextKeyUser), user)
	return user, user != nil
}

func (g *SessionGate) resolve(c *gin.Context) (*models.User, string) {
	cookie, err := c.Request.Cookie(g.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, SessionAnonymous
	}

	claims, ok := g.codec.Verify(cookie.Value)
	if !ok {
		g.Logout(c)
		return nil, SessionInvalid
	}

	sub, _ := models.SubjectOf(claims)
	user, err := g.users.FindByID(c.Request.Context(), sub)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			g.Logout(c)
			return nil, SessionUnknownUser
		}
		g.logger.Error(c.Request.Context(), "Failed to load session user", err, logger.String("user_id", sub))
		return nil, SessionError
	}
	if !user.Active {
		g.Logout(c)
		return nil, SessionInactive
	}
	return user, SessionAuthenticated
}

// RequireSession rejects anonymous requests: browsers are redirected to the login
// page, API clients get a 401 JSON body.
func (g *SessionGate) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := g.Resolve(c); ok {
			c.Next()
			return
		}

		if wantsJSON(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": constants.MessageUnauthenticated})
			return
		}
		c.Redirect(http.StatusFound, g.cfg.LoginPath)
		c.Abort()
	}
}

// RedirectIfAuthenticated keeps signed in users away from guest only routes.
func (g *SessionGate) RedirectIfAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := g.Resolve(c); ok {
			c.Redirect(http.StatusFound, g.cfg.HomePath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CookieName returns the configured session cookie name.
func (g *SessionGate) CookieName() string {
	return g.cfg.CookieName
}

// TTL returns the configured session lifetime.
func (g *SessionGate) TTL() time.Duration {
	if g.cfg.TTL <= 0 {
		return constants.DefaultSessionTTL
	}
	return g.cfg.TTL
}

func (g *SessionGate) isSecure(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	return g.cfg.TrustProxyHeaders && strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}

// CurrentUser returns the user resolved earlier in the request.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(string(constants.ContextKeyUser))
	if !ok {
		return nil, false
	}
	user, _ := v.(*models.User)
	return user, user != nil
}

// mirrorCookie rewrites the request Cookie header so name holds value, or is dropped
// when value is empty.
func mirrorCookie(r *http.Request, name, value string) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, ck := range cookies {
		if ck.Name != name {
			r.AddCookie(ck)
		}
	}
	if value != "" {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func wantsJSON(c *gin.Context) bool {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		return true
	}
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "json")
}
