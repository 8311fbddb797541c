// Package ratelimit implements the fixed window request limiter and its storage backends.
package ratelimit

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"path"
	"strings"
	"time"

	"github.com/turtacn/invoicer/pkg/constants"
)

// Record is the persisted state of one limiter key.
type Record struct {
	// Reset is the epoch second at which the current window ends
	Reset int64 `json:"reset"`
	// Count is the number of hits inside the current window
	Count int64 `json:"count"`
}

// Result is the outcome of a single hit.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
	// StorageUnavailable marks a fail-open result produced without consulting the store
	StorageUnavailable bool
}

// Store counts hits per key inside fixed windows.
type Store interface {
	// Hit records one hit against key and reports whether it is within max for the window.
	Hit(ctx context.Context, key string, max int, window time.Duration) (Result, error)
}

// Pruner is implemented by stores that need stale records swept.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// advance applies one hit to rec at now, starting a fresh window when the old one has ended.
func advance(rec Record, now int64, window time.Duration) Record {
	if now >= rec.Reset {
		rec.Reset = now + windowSeconds(window)
		rec.Count = 0
	}
	rec.Count++
	return rec
}

// evaluate derives the caller facing result from an already advanced record.
func evaluate(rec Record, now int64, max int) Result {
	res := Result{
		Allowed: rec.Count <= int64(max),
		Limit:   max,
		ResetAt: time.Unix(rec.Reset, 0),
	}
	if remaining := int64(max) - rec.Count; remaining > 0 {
		res.Remaining = int(remaining)
	}
	if !res.Allowed {
		retry := rec.Reset - now
		if retry < 1 {
			retry = 1
		}
		res.RetryAfter = time.Duration(retry) * time.Second
	}
	return res
}

func windowSeconds(window time.Duration) int64 {
	s := int64(window / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// NormalizeRoute renders "METHOD /path" with an upper case method, a single leading
// slash, no duplicate slashes and no trailing slash.
func NormalizeRoute(method, p string) string {
	cleaned := "/" + strings.Trim(path.Clean("/"+p), "/")
	return strings.ToUpper(method) + " " + cleaned
}

// KeyFor derives the storage key for a request. The suffix namespaces independent
// limiters that share a strategy.
func KeyFor(strategy constants.RateLimitStrategy, clientIP, method, urlPath, suffix string) string {
	var parts []string
	switch strategy {
	case constants.RateLimitStrategyRoute:
		parts = append(parts, NormalizeRoute(method, urlPath))
	case constants.RateLimitStrategyIPRoute:
		parts = append(parts, clientIP, NormalizeRoute(method, urlPath))
	default:
		parts = append(parts, clientIP)
	}
	if suffix != "" {
		parts = append(parts, suffix)
	}

	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
