package kms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/logger"
)

func TestParseSecretKey(t *testing.T) {
	key, err := ParseSecretKey("  plain-secret  ")
	require.NoError(t, err)
	assert.Equal(t, []byte("plain-secret"), key.Bytes())
	assert.Equal(t, "[REDACTED]", key.String())

	key, err = ParseSecretKey("base64:AAECAw==")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3}, key.Bytes())

	_, err = ParseSecretKey("")
	assert.True(t, errors.Is(err, errors.ErrMissingSecretKey))

	_, err = ParseSecretKey("base64:")
	assert.True(t, errors.Is(err, errors.ErrMissingSecretKey))

	_, err = ParseSecretKey("base64:***")
	assert.Error(t, err)
}

func TestEnvKeySource(t *testing.T) {
	t.Setenv("INVOICER_TEST_KEY", "from-env")

	key, err := NewEnvKeySource("INVOICER_TEST_KEY").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("from-env"), key.Bytes())

	_, err = NewEnvKeySource("INVOICER_TEST_KEY_MISSING").Load(context.Background())
	assert.True(t, errors.Is(err, errors.ErrMissingSecretKey))
}

func newVaultServer(t *testing.T, body map[string]interface{}) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/invoicer" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestVaultKeySource_KV2(t *testing.T) {
	ts := newVaultServer(t, map[string]interface{}{
		"data": map[string]interface{}{
			"data": map[string]interface{}{"app_key": "vault-secret"},
		},
	})

	cfg := config.VaultConfig{Address: ts.URL, Token: "root", Path: "secret/data/invoicer", KeyField: "app_key"}
	client, err := NewVaultClient(cfg)
	require.NoError(t, err)

	key, err := NewVaultKeySource(cfg, client, logger.NewNoopLogger()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("vault-secret"), key.Bytes())
}

func TestVaultKeySource_MissingField(t *testing.T) {
	ts := newVaultServer(t, map[string]interface{}{
		"data": map[string]interface{}{
			"data": map[string]interface{}{"other": "value"},
		},
	})

	cfg := config.VaultConfig{Address: ts.URL, Path: "secret/data/invoicer"}
	client, err := NewVaultClient(cfg)
	require.NoError(t, err)

	_, err = NewVaultKeySource(cfg, client, logger.NewNoopLogger()).Load(context.Background())
	assert.True(t, errors.Is(err, errors.ErrMissingSecretKey))
}

func TestVaultKeySource_NotFound(t *testing.T) {
	ts := newVaultServer(t, nil)

	cfg := config.VaultConfig{Address: ts.URL, Path: "secret/data/elsewhere"}
	client, err := NewVaultClient(cfg)
	require.NoError(t, err)

	_, err = NewVaultKeySource(cfg, client, logger.NewNoopLogger()).Load(context.Background())
	assert.True(t, errors.Is(err, errors.ErrMissingSecretKey))
}

func TestNewKeySource(t *testing.T) {
	src, err := NewKeySource(config.SecurityConfig{KeySource: constants.KeySourceEnv, AppKeyEnv: "X"}, logger.NewNoopLogger())
	require.NoError(t, err)
	assert.IsType(t, &EnvKeySource{}, src)

	src, err = NewKeySource(config.SecurityConfig{
		KeySource: constants.KeySourceVault,
		Vault:     config.VaultConfig{Address: "http://127.0.0.1:8200", Path: "secret/data/x"},
	}, logger.NewNoopLogger())
	require.NoError(t, err)
	assert.IsType(t, &VaultKeySource{}, src)
}
