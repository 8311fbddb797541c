package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/invoicer/pkg/logger"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	deps map[string]Pinger
	log  logger.Logger
}

// NewHealthHandler creates a new HealthHandler. Nil dependencies are skipped.
func NewHealthHandler(deps map[string]Pinger, log logger.Logger) *HealthHandler {
	active := make(map[string]Pinger, len(deps))
	for name, p := range deps {
		if p != nil {
			active[name] = p
		}
	}
	return &HealthHandler{deps: active, log: log}
}

// HealthCheck reports the status of every dependency; 503 if any of them fails.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := "healthy"
	checks := h.performChecks(c.Request.Context())

	httpStatus := http.StatusOK
	for name, checkStatus := range checks {
		if checkStatus != "ok" {
			h.log.Warn(c.Request.Context(), "Health check failed", logger.String("dependency", name), logger.String("status", checkStatus))
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// ReadinessCheck reports whether the service can take traffic.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	h.HealthCheck(c)
}

// LivenessCheck only proves the process answers.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		checks = make(map[string]string, len(h.deps))
	)

	wg.Add(len(h.deps))
	for name, dep := range h.deps {
		go func(name string, dep Pinger) {
			defer wg.Done()
			status := "ok"
			if err := dep.Ping(ctx); err != nil {
				status = "error: " + err.Error()
			}
			mu.Lock()
			checks[name] = status
			mu.Unlock()
		}(name, dep)
	}
	wg.Wait()
	return checks
}
