package publish

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/kafka"
)

// KafkaSink emits the event as JSON on a topic, keyed by build id.
type KafkaSink struct {
	producer *kafka.Producer
}

func NewKafkaSink(cfg config.KafkaConfig) *KafkaSink {
	return &KafkaSink{producer: kafka.NewProducer(cfg)}
}

// NewKafkaSinkWithProducer wraps an existing producer.
func NewKafkaSinkWithProducer(p *kafka.Producer) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	return s.producer.Publish(ctx, kafka.Event{
		Key:     event.BuildID,
		Value:   event,
		Headers: map[string]string{"event": "index.complete"},
	})
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
