package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/invoicer/internal/application/dto"
	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/internal/infrastructure/audit"
	"github.com/turtacn/invoicer/internal/infrastructure/ratelimit"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
)

// RateLimitPolicy describes one limiter applied to a group of routes.
type RateLimitPolicy struct {
	// Name namespaces the keys of this policy and labels its metrics
	Name     string
	Max      int
	Window   time.Duration
	Strategy constants.RateLimitStrategy
	// Message is returned in the 429 body
	Message string
}

// GlobalPolicy is the per client request limit applied to every route.
func GlobalPolicy(cfg config.RateLimitConfig) RateLimitPolicy {
	return RateLimitPolicy{
		Name:     constants.RateLimitSuffixRate,
		Max:      cfg.Max,
		Window:   cfg.Window,
		Strategy: cfg.Strategy,
		Message:  constants.MessageTooManyRequests,
	}
}

// LoginThrottlePolicy limits login attempts per client and route.
func LoginThrottlePolicy(cfg config.RateLimitConfig) RateLimitPolicy {
	return RateLimitPolicy{
		Name:     constants.RateLimitSuffixThrottle,
		Max:      cfg.LoginMax,
		Window:   cfg.LoginWindow,
		Strategy: constants.RateLimitStrategyIPRoute,
		Message:  constants.MessageTooManyAttempts,
	}
}

// RateLimit counts the request against policy. The limit headers are always set;
// Retry-After only on denial, which aborts with 429.
func RateLimit(limiter *ratelimit.Limiter, policy RateLimitPolicy, headers config.RateLimitHeaders, recorder *audit.Recorder) gin.HandlerFunc {
	headers = withDefaultHeaders(headers)

	return func(c *gin.Context) {
		key := ratelimit.KeyFor(policy.Strategy, c.ClientIP(), c.Request.Method, c.Request.URL.Path, policy.Name)
		res := limiter.Hit(c.Request.Context(), policy.Name, key, policy.Max, policy.Window)

		c.Header(headers.Limit, strconv.Itoa(res.Limit))
		c.Header(headers.Remaining, strconv.Itoa(res.Remaining))
		c.Header(headers.Reset, strconv.FormatInt(res.ResetAt.Unix(), 10))

		if res.Allowed {
			c.Next()
			return
		}

		retryAfter := int64(res.RetryAfter / time.Second)
		c.Header(headers.RetryAfter, strconv.FormatInt(retryAfter, 10))

		recorder.Record(c.Request.Context(),
			models.NewAuditEvent(constants.AuditEventRateLimitExceeded, "").
				WithClientIP(c.ClientIP()).
				WithDetail("policy", policy.Name).
				WithDetail("route", ratelimit.NormalizeRoute(c.Request.Method, c.Request.URL.Path)))

		dto.SendError(c, errors.ErrTooManyRequests(policy.Message))
		c.Abort()
	}
}

func withDefaultHeaders(h config.RateLimitHeaders) config.RateLimitHeaders {
	if h.Limit == "" {
		h.Limit = constants.HeaderRateLimitLimit
	}
	if h.Remaining == "" {
		h.Remaining = constants.HeaderRateLimitRemaining
	}
	if h.Reset == "" {
		h.Reset = constants.HeaderRateLimitReset
	}
	if h.RetryAfter == "" {
		h.RetryAfter = constants.HeaderRetryAfter
	}
	return h
}
