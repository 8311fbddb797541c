// Package kms resolves the application secret key that backs cookie encryption and URL signing.
package kms

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/logger"
)

// SecretKey is the process wide application key. The zero value is "absent".
type SecretKey struct {
	material []byte
}

// ParseSecretKey accepts either a raw string or "base64:<std base64>".
// Empty input is a configuration error.
func ParseSecretKey(raw string) (SecretKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SecretKey{}, errors.ErrMissingSecretKey
	}

	if strings.HasPrefix(raw, constants.AppKeyBase64Prefix) {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, constants.AppKeyBase64Prefix))
		if err != nil {
			return SecretKey{}, errors.ErrConfiguration("app key", "invalid base64 encoding").WithCause(err)
		}
		if len(decoded) == 0 {
			return SecretKey{}, errors.ErrMissingSecretKey
		}
		return SecretKey{material: decoded}, nil
	}

	return SecretKey{material: []byte(raw)}, nil
}

// MustSecretKey is ParseSecretKey for tests and static keys.
func MustSecretKey(raw string) SecretKey {
	key, err := ParseSecretKey(raw)
	if err != nil {
		panic(err)
	}
	return key
}

// Bytes returns a copy of the key material.
func (k SecretKey) Bytes() []byte {
	out := make([]byte, len(k.material))
	copy(out, k.material)
	return out
}

// IsZero reports whether no key was loaded.
func (k SecretKey) IsZero() bool {
	return len(k.material) == 0
}

// String never reveals key material.
func (k SecretKey) String() string {
	return "[REDACTED]"
}

// KeySource loads the secret key once at startup.
type KeySource interface {
	Load(ctx context.Context) (SecretKey, error)
}

// EnvKeySource reads the key from an environment variable.
type EnvKeySource struct {
	Variable string
	lookup   func(string) (string, bool)
}

// NewEnvKeySource creates a key source reading variable from the process environment.
func NewEnvKeySource(variable string) *EnvKeySource {
	return &EnvKeySource{Variable: variable, lookup: os.LookupEnv}
}

func (s *EnvKeySource) Load(ctx context.Context) (SecretKey, error) {
	lookup := s.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, ok := lookup(s.Variable)
	if !ok {
		return SecretKey{}, errors.ErrMissingSecretKey.WithMetadata("variable", s.Variable)
	}
	return ParseSecretKey(value)
}

// VaultKeySource reads the key from a Vault KV secret (v1 or v2 layout).
type VaultKeySource struct {
	client   *vault.Client
	path     string
	keyField string
	logger   logger.Logger
}

// NewVaultKeySource creates a Vault backed key source.
func NewVaultKeySource(cfg config.VaultConfig, client *vault.Client, log logger.Logger) *VaultKeySource {
	field := cfg.KeyField
	if field == "" {
		field = "app_key"
	}
	return &VaultKeySource{
		client:   client,
		path:     cfg.Path,
		keyField: field,
		logger:   log,
	}
}

// NewVaultClient builds a Vault API client from config.
func NewVaultClient(cfg config.VaultConfig) (*vault.Client, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address
	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return client, nil
}

func (s *VaultKeySource) Load(ctx context.Context) (SecretKey, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.path)
	if err != nil {
		return SecretKey{}, errors.ErrMissingSecretKey.WithCause(fmt.Errorf("could not read %s from vault: %w", s.path, err))
	}
	if secret == nil || secret.Data == nil {
		return SecretKey{}, errors.ErrMissingSecretKey.WithMetadata("vault_path", s.path)
	}

	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		data = nested
	}

	raw, ok := data[s.keyField].(string)
	if !ok {
		return SecretKey{}, errors.ErrMissingSecretKey.WithMetadata("vault_field", s.keyField)
	}

	s.logger.Info(ctx, "Application key loaded from vault", logger.String("vault_path", s.path))
	return ParseSecretKey(raw)
}

// NewKeySource picks the configured key source.
func NewKeySource(cfg config.SecurityConfig, log logger.Logger) (KeySource, error) {
	switch cfg.KeySource {
	case constants.KeySourceVault:
		client, err := NewVaultClient(cfg.Vault)
		if err != nil {
			return nil, err
		}
		return NewVaultKeySource(cfg.Vault, client, log), nil
	default:
		return NewEnvKeySource(cfg.AppKeyEnv), nil
	}
}
