// Command server runs the invoicer HTTP service.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/invoicer/internal/application/service"
	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/internal/infrastructure/audit"
	"github.com/turtacn/invoicer/internal/infrastructure/crypto"
	"github.com/turtacn/invoicer/internal/infrastructure/kms"
	"github.com/turtacn/invoicer/internal/infrastructure/monitoring"
	"github.com/turtacn/invoicer/internal/infrastructure/persistence/cache"
	"github.com/turtacn/invoicer/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/invoicer/internal/infrastructure/persistence/redis"
	"github.com/turtacn/invoicer/internal/infrastructure/ratelimit"
	"github.com/turtacn/invoicer/internal/interfaces/http/handlers"
	"github.com/turtacn/invoicer/internal/interfaces/http/middleware"
	"github.com/turtacn/invoicer/internal/interfaces/http/router"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/logger"
)

// userCacheTTL bounds how long a deactivated account keeps a live session.
const userCacheTTL = 30 * time.Second

func main() {
	configFile := flag.String("config", "", "path to the configuration file")
	envFile := flag.String("env-file", ".env", "dotenv file exported before the configuration is read")
	flag.Parse()

	startupLogger, _ := monitoring.NewZapLogger(&config.LogConfig{Level: "info"})
	if err := config.LoadEnvFile(*envFile, startupLogger); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	loader := config.NewLoader(*configFile, startupLogger)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	loader.Watch(func(next *config.Config) {
		monitoring.SetLevel(appLogger, next.Log.Level)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Fatal(context.Background(), "Server exited with error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, appLogger logger.Logger) error {
	// Resolved once at startup; a missing key is fatal.
	keySource, err := kms.NewKeySource(cfg.Security, appLogger)
	if err != nil {
		return err
	}
	secret, err := keySource.Load(ctx)
	if err != nil {
		return err
	}

	cookieCipher, err := crypto.NewVersionedCipher(secret, cfg.Security.AcceptLegacyCBC)
	if err != nil {
		return err
	}
	codec, err := crypto.NewTokenCodec(cookieCipher)
	if err != nil {
		return err
	}
	signer, err := crypto.NewURLSigner(secret)
	if err != nil {
		return err
	}
	auditKey, err := crypto.DeriveKey(secret, audit.KeyInfo)
	if err != nil {
		return err
	}

	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, appLogger)
	if err != nil {
		return err
	}
	defer func() { _ = tracing.Shutdown(context.Background()) }()
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	db, err := postgres.NewDBConnection(ctx, &cfg.Database, appLogger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	users := cache.NewCachedUserRepository(postgres.NewUserRepository(db.DB(), appLogger), userCacheTTL)

	deps := map[string]handlers.Pinger{"database": db}
	var redisClient goredis.UniversalClient
	if cfg.Redis.Enabled {
		redisConn := redis.NewRedisConnection(&cfg.Redis, appLogger)
		if err := redisConn.Connect(ctx); err != nil {
			return err
		}
		defer redisConn.Close()
		deps["redis"] = redisConn
		redisClient = redisConn.GetClient()
	}

	store, err := ratelimit.NewStore(cfg.RateLimit, redisClient)
	if err != nil {
		return err
	}
	limiter := ratelimit.NewLimiter(store, metrics, appLogger)

	publisher := audit.NewPublisher(cfg.Audit, appLogger)
	if cfg.Audit.Persist {
		publisher = audit.Fanout(publisher, postgres.NewAuditRepository(db.DB(), appLogger))
	}
	recorder := audit.NewRecorder(publisher, auditKey, appLogger)
	defer recorder.Close()

	gate := middleware.NewSessionGate(codec, users, cfg.Session, metrics, appLogger)
	userService := service.NewUserAppService(users, 0, appLogger)

	r, err := router.NewRouter(router.Dependencies{
		Config:   cfg,
		Logger:   appLogger,
		Tracing:  tracing,
		Metrics:  metrics,
		Gatherer: prometheus.DefaultGatherer,
		Limiter:  limiter,
		Gate:     gate,
		Signer:   signer,
		Recorder: recorder,
		Health:   handlers.NewHealthHandler(deps, appLogger),
		Auth:     handlers.NewAuthHandler(userService, gate, recorder, appLogger),
		Files:    handlers.NewFileHandler(signer, cfg.SignedURL, recorder, appLogger),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Run(gctx)
	})

	if pruner, ok := store.(ratelimit.Pruner); ok {
		interval := cfg.RateLimit.PruneInterval
		if interval <= 0 {
			interval = constants.DefaultRateLimitPruneInterval
		}
		janitor := ratelimit.NewJanitor(pruner, interval, appLogger)
		g.Go(func() error {
			return janitor.Run(gctx)
		})
	}

	return g.Wait()
}
