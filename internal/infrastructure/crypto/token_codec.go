package crypto

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
)

// TokenCodec turns a claims map into an encrypted opaque token and back.
type TokenCodec struct {
	cipher Cipher
	now    func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source.
func WithClock(now func() time.Time) CodecOption {
	return func(tc *TokenCodec) {
		tc.now = now
	}
}

// NewTokenCodec creates a codec on top of c.
func NewTokenCodec(c Cipher, opts ...CodecOption) (*TokenCodec, error) {
	if c == nil {
		return nil, errors.ErrMissingSecretKey
	}
	tc := &TokenCodec{cipher: c, now: time.Now}
	for _, opt := range opts {
		opt(tc)
	}
	return tc, nil
}

// Issue stamps iat (unless present) and exp = iat + ttl (unless present),
// serializes the claims and encrypts them.
func (tc *TokenCodec) Issue(claims models.Claims, ttl time.Duration) (string, error) {
	if ttl < 0 {
		return "", errors.ErrInvalidClaims.WithMetadata("reason", "negative ttl")
	}
	if _, ok := models.SubjectOf(claims); !ok {
		return "", errors.ErrInvalidClaims.WithMetadata("reason", "missing sub")
	}

	out := models.CloneClaims(claims)

	issuedAt, ok, err := models.NumericClaim(out, constants.ClaimIssuedAt)
	if err != nil {
		return "", errors.ErrInvalidClaims.WithCause(err)
	}
	if !ok {
		issuedAt = tc.now().Unix()
	}
	out[constants.ClaimIssuedAt] = issuedAt

	expiresAt, ok, err := models.NumericClaim(out, constants.ClaimExpiresAt)
	if err != nil {
		return "", errors.ErrInvalidClaims.WithCause(err)
	}
	if !ok {
		expiresAt = issuedAt + int64(ttl/time.Second)
	}
	if expiresAt < issuedAt {
		return "", errors.ErrInvalidClaims.WithMetadata("reason", "exp before iat")
	}
	out[constants.ClaimExpiresAt] = expiresAt

	payload, err := json.Marshal(out)
	if err != nil {
		return "", errors.ErrInvalidClaims.WithCause(err)
	}
	return tc.cipher.Encrypt(payload)
}

// Verify returns the claims of a valid, unexpired token. Empty, malformed,
// undecryptable and expired tokens all yield (nil, false).
func (tc *TokenCodec) Verify(token string) (models.Claims, bool) {
	if token == "" {
		return nil, false
	}

	payload, err := tc.cipher.Decrypt(token)
	if err != nil {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, false
	}
	claims := models.Claims(normalizeNumbers(raw).(map[string]interface{}))

	exp, ok, err := models.NumericClaim(claims, constants.ClaimExpiresAt)
	if err != nil || !ok {
		return nil, false
	}
	if exp < tc.now().Unix() {
		return nil, false
	}
	if _, ok := models.SubjectOf(claims); !ok {
		return nil, false
	}

	return claims, true
}

// normalizeNumbers converts json.Number values to int64 where exact, float64 otherwise,
// so decoded claims compare equal to the ones that were issued.
func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]interface{}:
		for k, inner := range t {
			t[k] = normalizeNumbers(inner)
		}
		return t
	case []interface{}:
		for i, inner := range t {
			t[i] = normalizeNumbers(inner)
		}
		return t
	default:
		return v
	}
}
