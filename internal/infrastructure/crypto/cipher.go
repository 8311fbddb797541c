// Package crypto implements the symmetric cipher, the encrypted token codec and the
// signed URL signer used by the HTTP security layer.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/turtacn/invoicer/internal/infrastructure/kms"
	"github.com/turtacn/invoicer/pkg/errors"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32

	// envelopeV2Prefix marks the authenticated AES-GCM envelope.
	envelopeV2Prefix = "v2."

	encryptionKeyInfo = "invoicer/cookie-encryption/v2"
)

// Cipher encrypts and decrypts opaque string envelopes.
type Cipher interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(blob string) ([]byte, error)
}

// DeriveKey expands the application secret into a purpose bound AES-256 key (HKDF-SHA256).
func DeriveKey(secret kms.SecretKey, info string) ([]byte, error) {
	if secret.IsZero() {
		return nil, errors.ErrMissingSecretKey
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret.Bytes(), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// legacyKey reproduces the key schedule of the CBC envelope: the secret is zero padded
// or truncated to 32 bytes.
func legacyKey(secret kms.SecretKey) ([]byte, error) {
	if secret.IsZero() {
		return nil, errors.ErrMissingSecretKey
	}
	key := make([]byte, KeySize)
	copy(key, secret.Bytes())
	return key, nil
}

// ================================================================================
// AES-256-CBC (legacy envelope: base64(iv || ciphertext))
// ================================================================================

type cbcCipher struct {
	block cipher.Block
}

// NewCBCCipher creates the unauthenticated CBC cipher that reads and writes the
// original cookie envelope.
func NewCBCCipher(secret kms.SecretKey) (Cipher, error) {
	key, err := legacyKey(secret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	return &cbcCipher{block: block}, nil
}

func (c *cbcCipher) Encrypt(plaintext []byte) (string, error) {
	bs := c.block.BlockSize()
	padded := pkcs7Pad(plaintext, bs)

	out := make([]byte, bs+len(padded))
	iv := out[:bs]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("read iv: %w", err)
	}
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[bs:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *cbcCipher) Decrypt(blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, errors.ErrDecryption.WithCause(err)
	}

	bs := c.block.BlockSize()
	if len(raw) < bs {
		return nil, errors.ErrDecryption.WithMetadata("reason", "iv length")
	}
	iv, ciphertext := raw[:bs], raw[bs:]
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, errors.ErrDecryption.WithMetadata("reason", "ciphertext length")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, ok := pkcs7Unpad(plaintext, bs)
	if !ok {
		return nil, errors.ErrDecryption.WithMetadata("reason", "padding")
	}
	return unpadded, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}

// ================================================================================
// AES-256-GCM (current envelope: "v2." + base64url(nonce || sealed))
// ================================================================================

type gcmCipher struct {
	aead cipher.AEAD
}

// NewGCMCipher creates the authenticated cipher used for new envelopes.
func NewGCMCipher(secret kms.SecretKey) (Cipher, error) {
	key, err := DeriveKey(secret, encryptionKeyInfo)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &gcmCipher{aead: aead}, nil
}

func (c *gcmCipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return envelopeV2Prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *gcmCipher) Decrypt(blob string) ([]byte, error) {
	if !strings.HasPrefix(blob, envelopeV2Prefix) {
		return nil, errors.ErrDecryption.WithMetadata("reason", "envelope version")
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(blob, envelopeV2Prefix))
	if err != nil {
		return nil, errors.ErrDecryption.WithCause(err)
	}

	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return nil, errors.ErrDecryption.WithMetadata("reason", "nonce length")
	}

	plaintext, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, errors.ErrDecryption.WithCause(err)
	}
	return plaintext, nil
}

// ================================================================================
// Versioned cipher
// ================================================================================

// VersionedCipher writes the current envelope and reads any envelope it has a reader for.
type VersionedCipher struct {
	current Cipher
	legacy  Cipher
}

// NewVersionedCipher builds the cookie cipher. With acceptLegacy the CBC envelope is
// still readable so existing sessions survive the upgrade.
func NewVersionedCipher(secret kms.SecretKey, acceptLegacy bool) (*VersionedCipher, error) {
	current, err := NewGCMCipher(secret)
	if err != nil {
		return nil, err
	}
	vc := &VersionedCipher{current: current}
	if acceptLegacy {
		if vc.legacy, err = NewCBCCipher(secret); err != nil {
			return nil, err
		}
	}
	return vc, nil
}

func (vc *VersionedCipher) Encrypt(plaintext []byte) (string, error) {
	return vc.current.Encrypt(plaintext)
}

func (vc *VersionedCipher) Decrypt(blob string) ([]byte, error) {
	if strings.HasPrefix(blob, envelopeV2Prefix) {
		return vc.current.Decrypt(blob)
	}
	if vc.legacy == nil {
		return nil, errors.ErrDecryption.WithMetadata("reason", "legacy envelope rejected")
	}
	return vc.legacy.Decrypt(blob)
}

// Encrypt encrypts plaintext under key with the current envelope.
func Encrypt(plaintext []byte, key kms.SecretKey) (string, error) {
	c, err := NewGCMCipher(key)
	if err != nil {
		return "", err
	}
	return c.Encrypt(plaintext)
}

// Decrypt opens a blob produced by Encrypt or by the legacy CBC envelope.
func Decrypt(blob string, key kms.SecretKey) ([]byte, error) {
	c, err := NewVersionedCipher(key, true)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(blob)
}
