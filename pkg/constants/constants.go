// Package constants defines system-wide constants for the invoicer service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Session Constants
// ================================================================================

const (
	// DefaultSessionCookieName is the cookie that carries the encrypted auth token
	DefaultSessionCookieName = "auth_token"

	// DefaultSessionTTL is the lifetime of a login session
	DefaultSessionTTL = 8 * time.Hour

	// DefaultLoginPath is where anonymous browser requests are redirected
	DefaultLoginPath = "/login"

	// ClaimSubject is the subject identifier claim
	ClaimSubject = "sub"

	// ClaimIssuedAt is the issued-at claim (epoch seconds)
	ClaimIssuedAt = "iat"

	// ClaimExpiresAt is the expiry claim (epoch seconds)
	ClaimExpiresAt = "exp"
)

// ================================================================================
// Secret Key Constants
// ================================================================================

const (
	// DefaultAppKeyEnv is the environment variable holding the application secret key
	DefaultAppKeyEnv = "INVOICER_APP_KEY"

	// AppKeyBase64Prefix marks a base64 encoded binary key
	AppKeyBase64Prefix = "base64:"

	// KeySourceEnv reads the secret key from the process environment
	KeySourceEnv = "env"

	// KeySourceVault reads the secret key from a Vault KV v2 secret
	KeySourceVault = "vault"
)

// ================================================================================
// Rate Limit Constants
// ================================================================================

// RateLimitStrategy selects which request attributes form the limiter key
type RateLimitStrategy string

const (
	// RateLimitStrategyIP keys on the client IP only
	RateLimitStrategyIP RateLimitStrategy = "ip"

	// RateLimitStrategyRoute keys on "METHOD /path" only
	RateLimitStrategyRoute RateLimitStrategy = "route"

	// RateLimitStrategyIPRoute keys on client IP and route
	RateLimitStrategyIPRoute RateLimitStrategy = "ip_route"
)

// RateLimitDriver selects the limiter storage backend
type RateLimitDriver string

const (
	RateLimitDriverFile   RateLimitDriver = "file"
	RateLimitDriverMemory RateLimitDriver = "memory"
	RateLimitDriverRedis  RateLimitDriver = "redis"
)

const (
	// RateLimitSuffixRate namespaces the global request limiter
	RateLimitSuffixRate = "rate"

	// RateLimitSuffixThrottle namespaces the login attempt limiter
	RateLimitSuffixThrottle = "throttle"

	DefaultRateLimitMax    = 60
	DefaultRateLimitWindow = time.Minute

	DefaultLoginThrottleMax    = 5
	DefaultLoginThrottleWindow = time.Minute

	// DefaultRateLimitPruneInterval is how often stale limiter records are swept
	DefaultRateLimitPruneInterval = 10 * time.Minute

	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"

	MessageTooManyRequests = "Too Many Requests."
	MessageTooManyAttempts = "Too Many Attempts."
)

// ================================================================================
// Signed URL Constants
// ================================================================================

const (
	SignedURLParamExpires   = "expires"
	SignedURLParamSignature = "signature"
	SignedURLParamPath      = "path"

	// DefaultSignedURLTTL is the lifetime of a freshly minted temporary link
	DefaultSignedURLTTL = 5 * time.Minute

	MessageInvalidSignedURL = "The temporary link is invalid or has expired."
	MessageUnauthenticated  = "Unauthenticated."
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey represents keys used in context.Context
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID is the key for distributed trace ID in context
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeyLogger is the key for a request scoped logger
	ContextKeyLogger ContextKey = "logger"

	// ContextKeyUser holds the resolved *models.User for the request
	ContextKeyUser ContextKey = "auth_user"

	// ContextKeySignedPath lets a route pre-attach the resource path a signature covers
	ContextKeySignedPath ContextKey = "signed_path"
)

// HeaderRequestID carries the request ID in and out of the service
const HeaderRequestID = "X-Request-ID"

// ================================================================================
// Audit Event Types
// ================================================================================

// AuditEventType classifies audit trail entries
type AuditEventType string

const (
	AuditEventLoginSucceeded     AuditEventType = "login_succeeded"
	AuditEventLoginFailed        AuditEventType = "login_failed"
	AuditEventLogout             AuditEventType = "logout"
	AuditEventRateLimitExceeded  AuditEventType = "rate_limit_exceeded"
	AuditEventSignedURLRejected  AuditEventType = "signed_url_rejected"
	AuditEventSignedURLGenerated AuditEventType = "signed_url_generated"
)
