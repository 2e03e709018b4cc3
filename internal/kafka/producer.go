// Package kafka publishes report summaries to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/Shopify/sarama"

	applog "eiademand/internal/log"
	"eiademand/internal/report"
)

// Producer sends one keyed message per report, keyed by dataset so that
// summaries of the same dataset stay ordered within a partition.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *applog.Logger
}

// NewProducer connects a synchronous producer to the given brokers.
func NewProducer(brokers []string, topic string, logger *applog.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = "eiademand"
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Retry.Backoff = 250 * time.Millisecond
	saramaConfig.Producer.Timeout = 10 * time.Second

	sp, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return newProducer(sp, topic, logger), nil
}

func newProducer(sp sarama.SyncProducer, topic string, logger *applog.Logger) *Producer {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Producer{
		producer: sp,
		topic:    topic,
		logger:   logger.WithComponent(applog.ComponentKafka),
	}
}

// PublishReport sends the summary as JSON. The message id travels as a header
// so consumers can deduplicate without decoding the body.
func (p *Producer) PublishReport(ctx context.Context, msg *report.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.Dataset),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message_id"), Value: []byte(msg.ID)},
		},
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("publish report %s to %s: %w", msg.ID, p.topic, err)
	}

	p.logger.InfoContext(ctx, "Published report message",
		"message_id", msg.ID,
		applog.FieldDataset, msg.Dataset,
		"topic", p.topic,
		"partition", partition,
		"offset", offset)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
