package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/invoicer/internal/infrastructure/kms"
	"github.com/turtacn/invoicer/pkg/errors"
)

var testKey = kms.MustSecretKey("base64:MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")

func TestCiphers_RoundTrip(t *testing.T) {
	cbc, err := NewCBCCipher(testKey)
	require.NoError(t, err)
	gcm, err := NewGCMCipher(testKey)
	require.NoError(t, err)

	tests := []struct {
		name   string
		cipher Cipher
	}{
		{"cbc", cbc},
		{"gcm", gcm},
	}

	plaintexts := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("exactly sixteen!"),
		[]byte(`{"sub":"42","iat":1700000000,"exp":1700003600}`),
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, p := range plaintexts {
				first, err := tt.cipher.Encrypt(p)
				require.NoError(t, err)
				second, err := tt.cipher.Encrypt(p)
				require.NoError(t, err)
				assert.NotEqual(t, first, second, "fresh iv per call")

				for _, blob := range []string{first, second} {
					out, err := tt.cipher.Decrypt(blob)
					require.NoError(t, err)
					assert.Equal(t, string(p), string(out))
				}
			}
		})
	}
}

func TestCBCCipher_Envelope(t *testing.T) {
	c, err := NewCBCCipher(testKey)
	require.NoError(t, err)

	blob, err := c.Encrypt([]byte("hello"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	assert.Len(t, raw, 32, "16 byte iv plus one padded block")
}

func TestCBCCipher_RejectsMalformed(t *testing.T) {
	c, err := NewCBCCipher(testKey)
	require.NoError(t, err)

	tests := []struct {
		name string
		blob string
	}{
		{"not base64", "%%%"},
		{"short iv", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"iv only", base64.StdEncoding.EncodeToString(make([]byte, 16))},
		{"unaligned", base64.StdEncoding.EncodeToString(make([]byte, 16+7))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.blob)
			assert.True(t, errors.Is(err, errors.ErrDecryption))
		})
	}

	t.Run("bad padding", func(t *testing.T) {
		blob, err := c.Encrypt([]byte("hello"))
		require.NoError(t, err)
		raw, err := base64.StdEncoding.DecodeString(blob)
		require.NoError(t, err)

		// flipping the last iv byte turns the 0x0b padding byte into 0x0a
		raw[15] ^= 0x01
		_, err = c.Decrypt(base64.StdEncoding.EncodeToString(raw))
		assert.True(t, errors.Is(err, errors.ErrDecryption))
	})
}

func TestGCMCipher_RejectsTampering(t *testing.T) {
	c, err := NewGCMCipher(testKey)
	require.NoError(t, err)

	blob, err := c.Encrypt([]byte(`{"sub":"1"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(blob, "v2."))

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(blob, "v2."))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := "v2." + base64.RawURLEncoding.EncodeToString(raw)

	_, err = c.Decrypt(tampered)
	assert.True(t, errors.Is(err, errors.ErrDecryption))

	_, err = c.Decrypt("v2.AAAA")
	assert.True(t, errors.Is(err, errors.ErrDecryption))

	_, err = c.Decrypt("no-prefix")
	assert.True(t, errors.Is(err, errors.ErrDecryption))
}

func TestCiphers_WrongKey(t *testing.T) {
	other := kms.MustSecretKey("a-completely-different-secret")

	gcm, _ := NewGCMCipher(testKey)
	gcmOther, _ := NewGCMCipher(other)
	blob, err := gcm.Encrypt([]byte("payload"))
	require.NoError(t, err)
	_, err = gcmOther.Decrypt(blob)
	assert.Error(t, err)
}

func TestVersionedCipher_Legacy(t *testing.T) {
	legacy, err := NewCBCCipher(testKey)
	require.NoError(t, err)
	legacyBlob, err := legacy.Encrypt([]byte("old session"))
	require.NoError(t, err)

	accepting, err := NewVersionedCipher(testKey, true)
	require.NoError(t, err)
	out, err := accepting.Decrypt(legacyBlob)
	require.NoError(t, err)
	assert.Equal(t, "old session", string(out))

	fresh, err := accepting.Encrypt([]byte("new session"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fresh, "v2."))

	strict, err := NewVersionedCipher(testKey, false)
	require.NoError(t, err)
	_, err = strict.Decrypt(legacyBlob)
	assert.True(t, errors.Is(err, errors.ErrDecryption))

	out, err = strict.Decrypt(fresh)
	require.NoError(t, err)
	assert.Equal(t, "new session", string(out))
}

func TestCiphers_MissingKey(t *testing.T) {
	_, err := NewCBCCipher(kms.SecretKey{})
	assert.True(t, errors.Is(err, errors.ErrMissingSecretKey))

	_, err = NewGCMCipher(kms.SecretKey{})
	assert.True(t, errors.Is(err, errors.ErrMissingSecretKey))

	_, err = NewVersionedCipher(kms.SecretKey{}, true)
	assert.True(t, errors.Is(err, errors.ErrMissingSecretKey))

	_, err = Encrypt([]byte("x"), kms.SecretKey{})
	assert.True(t, errors.Is(err, errors.ErrMissingSecretKey))
}

func TestEncryptDecrypt_Functional(t *testing.T) {
	blob, err := Encrypt([]byte("invoice"), testKey)
	require.NoError(t, err)

	out, err := Decrypt(blob, testKey)
	require.NoError(t, err)
	assert.Equal(t, "invoice", string(out))
}

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey(testKey, "one")
	require.NoError(t, err)
	b, err := DeriveKey(testKey, "two")
	require.NoError(t, err)

	assert.Len(t, a, KeySize)
	assert.NotEqual(t, a, b)
}
