// Package audit publishes signed security events to Kafka or to the application log.
package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/pkg/logger"
)

// Publisher delivers audit events.
type Publisher interface {
	Publish(ctx context.Context, event *models.AuditEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by subject.
type KafkaPublisher struct {
	writer messageWriter
	logger logger.Logger
}

// NewKafkaPublisher creates an asynchronous Kafka publisher. Delivery failures are logged.
func NewKafkaPublisher(cfg config.KafkaConfig, log logger.Logger) *KafkaPublisher {
	log = log.WithFields(logger.String("component", "audit_kafka"))
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error(context.Background(), "Failed to deliver audit events", err, logger.Int("count", len(messages)))
			}
		},
	}
	return &KafkaPublisher{writer: writer, logger: log}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, event *models.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "Failed to marshal audit event", err)
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.Subject),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(ctx, "Failed to write audit event to Kafka", err)
		return err
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher writes events to the application log.
type LogPublisher struct {
	logger logger.Logger
}

// NewLogPublisher creates a publisher backed by log.
func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log.WithFields(logger.String("component", "audit"))}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, event *models.AuditEvent) error {
	fields := logger.Fields{
		"event_id":   event.ID.String(),
		"event_type": string(event.Type),
		"subject":    event.Subject,
		"client_ip":  event.ClientIP,
		"request_id": event.RequestID,
		"signature":  event.Signature,
	}
	for k, v := range event.Detail {
		fields["detail_"+k] = v
	}
	p.logger.Info(ctx, "Audit event", fields)
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error {
	return nil
}

// NewPublisher picks Kafka when enabled, the log otherwise.
func NewPublisher(cfg config.AuditConfig, log logger.Logger) Publisher {
	if cfg.Kafka.Enabled {
		return NewKafkaPublisher(cfg.Kafka, log)
	}
	return NewLogPublisher(log)
}

type fanout []Publisher

// Fanout delivers each event to every publisher and returns the first error.
func Fanout(publishers ...Publisher) Publisher {
	return fanout(publishers)
}

func (f fanout) Publish(ctx context.Context, event *models.AuditEvent) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) Close() error {
	var first error
	for _, p := range f {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
