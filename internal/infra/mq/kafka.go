package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// KafkaProducer publishes messages with a synchronous sarama producer.
type KafkaProducer struct {
	logger *slog.Logger
	client sarama.SyncProducer
}

var _ MessageQueue = (*KafkaProducer)(nil)

// NewKafkaProducer connects a producer that waits for all in-sync replicas.
func NewKafkaProducer(brokers []string) (*KafkaProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	client, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return newKafkaProducer(client), nil
}

func newKafkaProducer(client sarama.SyncProducer) *KafkaProducer {
	return &KafkaProducer{
		logger: slog.Default().With("module", "kafka-producer"),
		client: client,
	}
}

// Publish sends one message.
func (p *KafkaProducer) Publish(topic string, message []byte) error {
	partition, offset, err := p.client.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(message),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	p.logger.Debug("message sent", "topic", topic, "partition", partition, "offset", offset)
	return nil
}

// Subscribe is not supported on a producer; use KafkaConsumer.
func (p *KafkaProducer) Subscribe(string, func([]byte) error) error {
	return errors.New("kafka producer does not support subscribe, use KafkaConsumer instead")
}

// Close flushes and closes the producer.
func (p *KafkaProducer) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// KafkaConsumer feeds a consumer group's messages to a handler.
type KafkaConsumer struct {
	logger  *slog.Logger
	topics  []string
	client  sarama.ConsumerGroup
	handler MessageHandler
	retry   time.Duration
}

// NewKafkaConsumer joins group on the brokers. Handler errors are logged and
// the message is still marked so one bad event cannot stall the group.
func NewKafkaConsumer(brokers []string, group string, topics []string, handler MessageHandler) (*KafkaConsumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true

	client, err := sarama.NewConsumerGroup(brokers, group, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return newKafkaConsumer(client, group, topics, handler), nil
}

func newKafkaConsumer(client sarama.ConsumerGroup, group string, topics []string, handler MessageHandler) *KafkaConsumer {
	return &KafkaConsumer{
		logger:  slog.Default().With("module", "kafka-consumer", "group", group),
		topics:  topics,
		client:  client,
		handler: handler,
		retry:   time.Second,
	}
}

// Run consumes until ctx is cancelled, rejoining the group after each
// rebalance, then closes the group.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range c.client.Errors() {
			c.logger.Error("consumer group error", "error", err)
		}
	}()
	defer func() {
		_ = c.client.Close()
		wg.Wait()
	}()

	handler := &groupHandler{handler: c.handler, logger: c.logger}
	c.logger.Info("consumer started", "topics", c.topics)
	for {
		if err := c.client.Consume(ctx, c.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
				return nil
			}
			c.logger.Error("consume", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retry):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

type groupHandler struct {
	handler MessageHandler
	logger  *slog.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handler(session.Context(), message.Topic, message.Value); err != nil {
				h.logger.Error("handle message", "topic", message.Topic, "offset", message.Offset, "error", err)
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
