package publishers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
)

// kafkaProducer is the subset of sarama.SyncProducer used by the kafka sender.
type kafkaProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// kafkaSender implements queueSender for Apache Kafka.
type kafkaSender struct {
	topic    string
	producer kafkaProducer
	log      Logger
}

// newKafkaSender builds a synchronous producer for the configured brokers.
func newKafkaSender(_ context.Context, cfg *KafkaQueueConfig, log Logger) (queueSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("kafka queue configuration is missing")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Return.Successes = true
	if cfg.ClientID != "" {
		saramaConfig.ClientID = cfg.ClientID
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &kafkaSender{
		topic:    cfg.Topic,
		producer: producer,
		log:      ensureLogger(log),
	}, nil
}

// Send publishes the event keyed by article link so updates land on one partition.
func (s *kafkaSender) Send(_ context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(evt.Article.Link),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("site"), Value: []byte(evt.Site)},
		},
	}

	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		s.log.ErrorObj("kafka publisher send failed", "publisher_kafka_error", map[string]any{
			"error": err.Error(),
		})
		return fmt.Errorf("send message to kafka: %w", err)
	}
	s.log.DebugObj("kafka publisher delivered event", "publisher_kafka_delivery", map[string]any{
		"partition": partition,
		"offset":    offset,
	})
	return nil
}

func (s *kafkaSender) Close() error {
	return s.producer.Close()
}
