package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/invoicer/pkg/constants"
)

// Claims is the decoded payload of a session token. It always carries
// "sub", "iat" and "exp" once issued; any other scalar or array entries
// are passed through untouched.
type Claims = jwt.MapClaims

// NewSessionClaims builds the claims for a login session.
func NewSessionClaims(userID string) Claims {
	return Claims{constants.ClaimSubject: userID}
}

// SubjectOf returns the "sub" claim as a lookup id. Non-empty strings and
// integral numbers are accepted; anything else reports ok=false.
func SubjectOf(c Claims) (string, bool) {
	switch v := c[constants.ClaimSubject].(type) {
	case string:
		return v, v != ""
	case int:
		return strconv.Itoa(v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return "", false
		}
		return strconv.FormatInt(int64(v), 10), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		return "", false
	default:
		return "", false
	}
}

// CloneClaims returns a shallow copy so callers never see their map mutated.
func CloneClaims(c Claims) Claims {
	out := make(Claims, len(c)+2)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// NumericClaim reads an integer timestamp claim. It accepts the forms a claim
// takes before and after a JSON round trip. ok is false when the key is absent.
func NumericClaim(c Claims, key string) (value int64, ok bool, err error) {
	raw, present := c[key]
	if !present {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int64:
		return v, true, nil
	case int:
		return int64(v), true, nil
	case int32:
		return int64(v), true, nil
	case float64:
		return int64(v), true, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, true, fmt.Errorf("%s is not numeric: %w", key, err)
		}
		return int64(f), true, nil
	default:
		return 0, true, fmt.Errorf("%s has unsupported type %T", key, raw)
	}
}
