package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/internal/domain/models"
	"github.com/turtacn/invoicer/pkg/logger"
)

// KeyInfo is the derivation label of the audit signing key.
const KeyInfo = "invoicer/audit/v1"

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Verdict is the outcome of checking one event from the audit topic.
type Verdict struct {
	Event     models.AuditEvent
	Partition int
	Offset    int64
	Valid     bool
}

// Consumer reads the audit topic back and checks every event signature.
type Consumer struct {
	reader messageReader
	key    []byte
	logger logger.Logger
}

// NewKafkaConsumer creates a consumer in groupID reading the audit topic.
func NewKafkaConsumer(cfg config.KafkaConfig, groupID string, key []byte, log logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
	return newConsumer(reader, key, log)
}

func newConsumer(r messageReader, key []byte, log logger.Logger) *Consumer {
	return &Consumer{
		reader: r,
		key:    key,
		logger: log.WithFields(logger.String("component", "audit_consumer")),
	}
}

// Run hands a verdict for every message to handle until ctx is cancelled or handle
// fails. A message is committed only after handle accepted it; undecodable messages
// are logged and committed so they cannot block the partition.
func (c *Consumer) Run(ctx context.Context, handle func(Verdict) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var event models.AuditEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error(ctx, "Failed to decode audit event", err,
				logger.Int("partition", msg.Partition), logger.Int64("offset", msg.Offset))
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return err
			}
			continue
		}

		verdict := Verdict{
			Event:     event,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Valid:     Verify(event, c.key),
		}
		if !verdict.Valid {
			c.logger.Warn(ctx, "Audit event signature mismatch",
				logger.String("event_id", event.ID.String()), logger.Int64("offset", msg.Offset))
		}
		if err := handle(verdict); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
