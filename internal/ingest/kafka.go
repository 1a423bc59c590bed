package ingest

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"roommon/internal/config"
)

// KafkaSource consumes raw reading lines from an upstream broker topic, one
// sample per message. Used when the sensor gateway publishes instead of
// exposing a serial link.
type KafkaSource struct {
	reader *kafka.Reader
	logger *slog.Logger
}

func NewKafkaSource(cfg config.KafkaConfig, logger *slog.Logger) *KafkaSource {
	if logger != nil {
		logger.Info("kafka source enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	}
	return &KafkaSource{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 1e6,
		}),
		logger: logger,
	}
}

func (k *KafkaSource) ReadLine(ctx context.Context) (string, error) {
	m, err := k.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if k.logger != nil {
			k.logger.Warn("kafka read error", "err", err)
		}
		return "", err
	}
	return string(m.Value), nil
}

func (k *KafkaSource) Close() error {
	return k.reader.Close()
}
