package postgres

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/logger"
)

// auditRecord is the stored form of a signed audit event.
type auditRecord struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Type      string `gorm:"index;not null"`
	Subject   string `gorm:"index"`
	ClientIP  string
	RequestID string
	Detail    string
	Timestamp time.Time `gorm:"index;not null"`
	Signature string    `gorm:"not null"`
}

func (auditRecord) TableName() string {
	return "audit_events"
}

// AuditRepository appends signed audit events to the audit_events table.
type AuditRepository struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewAuditRepository creates a gorm backed audit store.
func NewAuditRepository(db *gorm.DB, log logger.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: log}
}

// Publish stores event as it was signed.
func (r *AuditRepository) Publish(ctx context.Context, event *models.AuditEvent) error {
	var detail string
	if len(event.Detail) > 0 {
		raw, err := json.Marshal(event.Detail)
		if err != nil {
			return err
		}
		detail = string(raw)
	}

	rec := auditRecord{
		ID:        event.ID.String(),
		Type:      string(event.Type),
		Subject:   event.Subject,
		ClientIP:  event.ClientIP,
		RequestID: event.RequestID,
		Detail:    detail,
		Timestamp: event.Timestamp,
		Signature: event.Signature,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		r.logger.Error(ctx, "Failed to store audit event", err, logger.String("event_type", rec.Type))
		return errors.ErrDatabaseUnavailable.WithCause(err)
	}
	return nil
}

// Recent returns the newest events, newest first.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	var rows []auditRecord
	err := r.db.WithContext(ctx).Order("timestamp desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, errors.ErrDatabaseUnavailable.WithCause(err)
	}

	events := make([]models.AuditEvent, 0, len(rows))
	for _, row := range rows {
		event, err := row.event()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (rec auditRecord) event() (models.AuditEvent, error) {
	event := models.AuditEvent{
		Type:      constants.AuditEventType(rec.Type),
		Subject:   rec.Subject,
		ClientIP:  rec.ClientIP,
		RequestID: rec.RequestID,
		Timestamp: rec.Timestamp.UTC(),
		Signature: rec.Signature,
	}
	if err := event.ID.UnmarshalText([]byte(rec.ID)); err != nil {
		return models.AuditEvent{}, err
	}
	if rec.Detail != "" {
		if err := json.Unmarshal([]byte(rec.Detail), &event.Detail); err != nil {
			return models.AuditEvent{}, err
		}
	}
	return event, nil
}

// Close implements the publisher contract; the connection is owned elsewhere.
func (r *AuditRepository) Close() error {
	return nil
}
