package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/invoicer/pkg/constants"
)

// AuditEvent represents a single security relevant event.
type AuditEvent struct {
	ID        uuid.UUID                `json:"id"`
	Type      constants.AuditEventType `json:"type"`
	Subject   string                   `json:"subject,omitempty"`
	ClientIP  string                   `json:"client_ip,omitempty"`
	RequestID string                   `json:"request_id,omitempty"`
	Detail    map[string]string        `json:"detail,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
	Signature string                   `json:"signature,omitempty"`
}

// NewAuditEvent creates a new audit event stamped with the current time at microsecond
// precision so it survives a round trip through the database unchanged.
func NewAuditEvent(eventType constants.AuditEventType, subject string) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Subject:   subject,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// WithDetail adds a key/value pair to the event detail.
func (e *AuditEvent) WithDetail(key, value string) *AuditEvent {
	if e.Detail == nil {
		e.Detail = make(map[string]string)
	}
	e.Detail[key] = value
	return e
}

// WithClientIP sets the client IP for the event.
func (e *AuditEvent) WithClientIP(ip string) *AuditEvent {
	e.ClientIP = ip
	return e
}
