package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaBus struct {
	writer *kafka.Writer
}

// NewKafkaBus builds a writer shared by every topic; the topic travels on each message.
func NewKafkaBus(brokers []string) *KafkaBus {
	return &KafkaBus{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			MaxAttempts:            1,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (b *KafkaBus) Send(ctx context.Context, msg Message) error {
	err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.Key),
		Value: msg.Value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(msg.ID)},
			{Key: "content_type", Value: []byte(msg.ContentType)},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (b *KafkaBus) Close() error {
	return b.writer.Close()
}
