// Package router assembles the gin engine of the invoicer HTTP surface and runs it.
package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/internal/infrastructure/audit"
	"github.com/turtacn/invoicer/internal/infrastructure/crypto"
	"github.com/turtacn/invoicer/internal/infrastructure/monitoring"
	"github.com/turtacn/invoicer/internal/infrastructure/ratelimit"
	"github.com/turtacn/invoicer/internal/interfaces/http/handlers"
	"github.com/turtacn/invoicer/internal/interfaces/http/middleware"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// Dependencies are the components the routes are wired to.
type Dependencies struct {
	Config   *config.Config
	Logger   logger.Logger
	Tracing  *monitoring.TracingManager
	Metrics  *monitoring.Metrics
	Gatherer prometheus.Gatherer
	Limiter  *ratelimit.Limiter
	Gate     *middleware.SessionGate
	Signer   *crypto.URLSigner
	Recorder *audit.Recorder

	Health *handlers.HealthHandler
	Auth   *handlers.AuthHandler
	Files  *handlers.FileHandler
}

// Router owns the gin engine and the HTTP server.
type Router struct {
	engine *gin.Engine
	deps   Dependencies
	server *http.Server
}

// NewRouter creates the engine and registers every route.
func NewRouter(deps Dependencies) (*Router, error) {
	if deps.Config.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(deps.Config.Server.TrustedProxies); err != nil {
		return nil, err
	}

	r := &Router{engine: engine, deps: deps}
	r.setupRoutes()
	return r, nil
}

func (r *Router) setupRoutes() {
	cfg := r.deps.Config

	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Logging(r.deps.Logger))
	r.engine.Use(middleware.Recovery(r.deps.Logger))
	r.engine.Use(middleware.Observability(r.deps.Tracing, r.deps.Metrics))

	if len(cfg.Server.AllowedOrigins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Requested-With", constants.HeaderRequestID},
			ExposeHeaders:    []string{constants.HeaderRequestID, constants.HeaderRateLimitLimit, constants.HeaderRateLimitRemaining, constants.HeaderRateLimitReset, constants.HeaderRetryAfter},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Health checks and metrics sit outside the request limiter.
	r.engine.GET("/health", r.deps.Health.HealthCheck)
	r.engine.GET("/ready", r.deps.Health.ReadinessCheck)
	r.engine.GET("/live", r.deps.Health.LivenessCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.deps.Gatherer, promhttp.HandlerOpts{})))

	if cfg.Server.Environment != "production" {
		pprof.Register(r.engine)
	}

	app := r.engine.Group("/")
	if cfg.RateLimit.Enabled {
		app.Use(middleware.RateLimit(r.deps.Limiter, middleware.GlobalPolicy(cfg.RateLimit), cfg.RateLimit.Headers, r.deps.Recorder))
	}

	gate := r.deps.Gate
	app.POST("/login",
		middleware.RateLimit(r.deps.Limiter, middleware.LoginThrottlePolicy(cfg.RateLimit), cfg.RateLimit.Headers, r.deps.Recorder),
		gate.RedirectIfAuthenticated(),
		r.deps.Auth.Login,
	)
	app.POST("/logout", gate.RequireSession(), r.deps.Auth.Logout)

	api := app.Group("/api/v1", gate.RequireSession())
	{
		api.GET("/me", middleware.ETag(), r.deps.Auth.Me)
		api.POST("/files/links", r.deps.Files.Link)
	}

	app.GET("/files/*path",
		middleware.SignedPathFromParam("path"),
		middleware.RequireSignedURL(r.deps.Signer, r.deps.Metrics, r.deps.Recorder),
		r.deps.Files.Serve,
	)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not Found."})
	})
}

// Engine exposes the gin engine, mainly for tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Run serves HTTP until ctx is cancelled, then shuts the server down gracefully.
func (r *Router) Run(ctx context.Context) error {
	cfg := r.deps.Config.Server
	r.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           r.engine,
		ReadTimeout:       time.Duration(cfg.ReadTimeout) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.IdleTimeout) * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		r.deps.Logger.Info(ctx, "Starting HTTP server", logger.String("address", r.server.Addr))
		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	r.deps.Logger.Info(shutdownCtx, "Shutting down HTTP server")
	if err := r.server.Shutdown(shutdownCtx); err != nil {
		r.deps.Logger.Error(shutdownCtx, "Server forced to shutdown", err)
		return err
	}
	r.deps.Logger.Info(shutdownCtx, "HTTP server stopped")
	return nil
}
