package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/turtacn/invoicer/internal/domain/models"
)

// Sign returns the base64 HMAC-SHA256 of the event serialized without its signature.
func Sign(event models.AuditEvent, key []byte) (string, error) {
	event.Signature = ""
	payload, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether the event carries a valid signature under key.
func Verify(event models.AuditEvent, key []byte) bool {
	want, err := Sign(event, key)
	if err != nil || event.Signature == "" {
		return false
	}
	return hmac.Equal([]byte(want), []byte(event.Signature))
}
