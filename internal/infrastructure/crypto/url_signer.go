package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/invoicer/internal/infrastructure/kms"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
)

var expiresPattern = regexp.MustCompile(`^[0-9]+$`)

// SignedResource is a resource path with its expiry and signature.
type SignedResource struct {
	Path      string
	ExpiresAt int64
	Signature string
}

// URLSigner signs and verifies temporary links to private resources.
type URLSigner struct {
	key []byte
	now func() time.Time
}

// SignerOption configures a URLSigner.
type SignerOption func(*URLSigner)

// WithSignerClock overrides the time source.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *URLSigner) {
		s.now = now
	}
}

// NewURLSigner creates a signer keyed with the application secret.
func NewURLSigner(secret kms.SecretKey, opts ...SignerOption) (*URLSigner, error) {
	if secret.IsZero() {
		return nil, errors.ErrMissingSecretKey
	}
	s := &URLSigner{key: secret.Bytes(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NormalizeResourcePath strips leading slashes so "/a/b" and "a/b" sign identically.
func NormalizeResourcePath(path string) string {
	return strings.TrimLeft(path, "/")
}

// Sign returns the hex HMAC-SHA256 of "path|expiresAt".
func (s *URLSigner) Sign(path string, expiresAt int64) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(NormalizeResourcePath(path) + "|" + strconv.FormatInt(expiresAt, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Resource signs path with an expiry ttl from now.
func (s *URLSigner) Resource(path string, ttl time.Duration) SignedResource {
	path = NormalizeResourcePath(path)
	expiresAt := s.now().Add(ttl).Unix()
	return SignedResource{
		Path:      path,
		ExpiresAt: expiresAt,
		Signature: s.Sign(path, expiresAt),
	}
}

// SignedURL builds base/path?expires=...&signature=... valid for ttl.
func (s *URLSigner) SignedURL(base, path string, ttl time.Duration) (string, error) {
	return s.URL(base, s.Resource(path, ttl))
}

// URL renders res as a link under base.
func (s *URLSigner) URL(base string, res SignedResource) (string, error) {
	link, err := url.JoinPath(base, res.Path)
	if err != nil {
		return "", errors.ErrInvalidRequest("invalid base url").WithCause(err)
	}

	q := url.Values{}
	q.Set(constants.SignedURLParamExpires, strconv.FormatInt(res.ExpiresAt, 10))
	q.Set(constants.SignedURLParamSignature, res.Signature)
	return link + "?" + q.Encode(), nil
}

// Verify checks the expiry format, the expiry time and the signature. Any failure
// yields false without saying which check failed.
func (s *URLSigner) Verify(path, expires, signature string) bool {
	if !expiresPattern.MatchString(expires) || signature == "" {
		return false
	}
	expiresAt, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if expiresAt < s.now().Unix() {
		return false
	}

	expected := s.Sign(path, expiresAt)
	return hmac.Equal([]byte(expected), []byte(signature))
}
