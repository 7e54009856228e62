package publishers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/samvad-hq/pokedex-seeder/internal/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaPublisher keys reports by run id so one run lands on one partition.
type kafkaPublisher struct {
	id     string
	writer messageWriter
	log    logger.Logger
}

func newKafkaPublisher(_ context.Context, cfg SinkConfig, log logger.Logger) (Publisher, error) {
	if cfg.Kafka == nil {
		return nil, fmt.Errorf("missing kafka settings")
	}
	return &kafkaPublisher{
		id: cfg.ID,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			// reports are few; do not hold them back for a batch
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
		},
		log: logger.Ensure(log),
	}, nil
}

func (k *kafkaPublisher) ID() string   { return k.id }
func (k *kafkaPublisher) Type() string { return TypeKafka }

func (k *kafkaPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.Encode()
	if err != nil {
		return err
	}
	attrs := evt.Attributes()
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	headers := make([]kafka.Header, 0, len(keys))
	for _, key := range keys {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(attrs[key])})
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(evt.RunID),
		Value:   body,
		Headers: headers,
		Time:    evt.EmittedAt,
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", evt.Key(), err)
	}
	k.log.DebugObj("report written", "report_kafka", map[string]any{
		"sink":   k.id,
		"report": evt.Key(),
	})
	return nil
}

func (k *kafkaPublisher) Close() error {
	return k.writer.Close()
}
