package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-gatepass/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer streams validation events to Kafka for downstream audit
// consumers (reporting, anomaly detection). The events are append-only;
// nothing in this service ever reads them back.
type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

// RecordValidation publishes one scan attempt keyed by ticket id, so all
// attempts against a ticket land in one partition in order.
func (p *Producer) RecordValidation(ctx context.Context, ev models.ValidationEvent) error {
	msgBytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal validation event: %w", err)
	}

	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.TicketID),
		Value: msgBytes,
	})
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
