package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/urban-comfort-index/internal/config"
	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// Writer produces score events to the score topic.
// It implements scoring.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured score topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaScoreTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishScores serializes and publishes score records in a single
// WriteMessages call. Records are keyed by unit id so one unit's scores
// stay ordered within a partition.
func (w *Writer) PublishScores(ctx context.Context, records []domain.ComfortIndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write score events: %w", err)
	}
	w.logger.Debug("score events published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ComfortIndexRecord into a Kafka message.
func serializeToMessage(rec domain.ComfortIndexRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize score record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.UnitID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "unit_id", Value: []byte(rec.UnitID)},
			{Key: "uci_grade", Value: []byte(rec.UCIGrade)},
			{Key: "computed_at", Value: []byte(rec.CreatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
