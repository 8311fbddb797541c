// Package postgres provides the gorm backed database connection and repositories.
// The sqlite dialect is accepted for local development and tests.
package postgres

import (
	"context"
	"fmt"
	"time"

	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/logger"
)

// DBConnection manages the database handle lifecycle.
type DBConnection struct {
	db     *gorm.DB
	config *config.DatabaseConfig
	logger logger.Logger
}

// NewDBConnection opens the configured database and verifies it with a ping.
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	if cfg == nil {
		return nil, errors.ErrConfiguration("database", "missing configuration")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.GetDSN())
	case "postgres", "":
		dialector = gormpostgres.Open(cfg.GetDSN())
	default:
		return nil, errors.ErrConfiguration("database.driver", fmt.Sprintf("unsupported driver %q", cfg.Driver))
	}

	log.Info(ctx, "Opening database connection",
		logger.String("driver", cfg.Driver),
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database),
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		log.Error(ctx, "Failed to open database", err)
		return nil, errors.ErrDatabaseUnavailable.WithCause(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.ErrDatabaseUnavailable.WithCause(err)
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxConnLifetime) * time.Minute)
	}

	conn := &DBConnection{db: db, config: cfg, logger: log}
	if err := conn.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return conn, nil
}

// DB returns the gorm handle for repositories.
func (c *DBConnection) DB() *gorm.DB {
	return c.db
}

// Migrate creates or updates the tables owned by this service.
func (c *DBConnection) Migrate(ctx context.Context) error {
	if err := c.db.WithContext(ctx).AutoMigrate(&models.User{}); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	if err := c.db.WithContext(ctx).AutoMigrate(&auditRecord{}); err != nil {
		return fmt.Errorf("migrate audit events: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (c *DBConnection) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sqlDB, err := c.db.DB()
	if err != nil {
		return errors.ErrDatabaseUnavailable.WithCause(err)
	}

	start := time.Now()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		c.logger.Error(ctx, "Database ping failed", err)
		return errors.ErrDatabaseUnavailable.WithCause(err)
	}
	if latency := time.Since(start); latency > 100*time.Millisecond {
		c.logger.Warn(ctx, "High database latency detected", logger.Int64("latency_ms", latency.Milliseconds()))
	}
	return nil
}

// Close releases the connection pool.
func (c *DBConnection) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.logger.Info(context.Background(), "Closing database connection")
	return sqlDB.Close()
}
