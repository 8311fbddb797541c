package postgres

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/logger"
)

func newTestConnection(t *testing.T) *DBConnection {
	t.Helper()
	cfg := &config.DatabaseConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "invoicer.db")}
	conn, err := NewDBConnection(context.Background(), cfg, logger.NewNoopLogger())
	require.NoError(t, err)
	require.NoError(t, conn.Migrate(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	repo := NewUserRepository(newTestConnection(t).DB(), logger.NewNoopLogger())
	ctx := context.Background()

	user := &models.User{Email: "  Alice@Example.com ", Name: "Alice", PasswordHash: "hash", Active: true}
	require.NoError(t, repo.Create(ctx, user))
	assert.Len(t, user.ID, 36)
	assert.Equal(t, "alice@example.com", user.Email)

	byID, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", byID.Name)
	assert.True(t, byID.Active)

	byEmail, err := repo.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
}

func TestUserRepository_NotFound(t *testing.T) {
	repo := NewUserRepository(newTestConnection(t).DB(), logger.NewNoopLogger())

	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = repo.FindByEmail(context.Background(), "nobody@example.com")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	repo := NewUserRepository(newTestConnection(t).DB(), logger.NewNoopLogger())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.User{Email: "bob@example.com", PasswordHash: "x", Active: true}))
	err := repo.Create(ctx, &models.User{Email: "bob@example.com", PasswordHash: "y", Active: true})
	assert.Error(t, err)
}

func TestUserRepository_InactiveUserPersists(t *testing.T) {
	repo := NewUserRepository(newTestConnection(t).DB(), logger.NewNoopLogger())
	ctx := context.Background()

	user := &models.User{Email: "carol@example.com", PasswordHash: "x", Active: false}
	require.NoError(t, repo.Create(ctx, user))

	found, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, found.Active)
}

func TestNewDBConnection_UnsupportedDriver(t *testing.T) {
	_, err := NewDBConnection(context.Background(), &config.DatabaseConfig{Driver: "oracle"}, logger.NewNoopLogger())
	assert.Error(t, err)

	_, err = NewDBConnection(context.Background(), nil, logger.NewNoopLogger())
	assert.Error(t, err)
}

func TestUserRepository_ClosedDatabase(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewUserRepository(conn.DB(), logger.NewNoopLogger())
	require.NoError(t, conn.Close())

	_, err := repo.FindByID(context.Background(), "u1")
	assert.True(t, errors.Is(err, errors.ErrDatabaseUnavailable))
	assert.False(t, errors.Is(err, errors.ErrStorageUnavailable))
	assert.Contains(t, err.Error(), "database is unavailable")

	err = conn.Ping(context.Background())
	assert.True(t, errors.Is(err, errors.ErrDatabaseUnavailable))
}
