// Package mq carries committed change events between gravecore components.
package mq

import (
	"context"
	"fmt"
)

// MessageQueue publishes to and subscribes on topics.
type MessageQueue interface {
	Publish(topic string, message []byte) error
	Subscribe(topic string, handler func(message []byte) error) error
	Close() error
}

// MessageHandler processes one consumed message.
type MessageHandler func(ctx context.Context, topic string, message []byte) error

// Driver selects the queue implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverKafka  Driver = "kafka"
)

// DefaultConsumerGroup is used by the graph projector when none is configured.
const DefaultConsumerGroup = "gravecore-graph"

// Config selects and configures the change event queue.
type Config struct {
	Driver  Driver   `toml:"driver"`
	Topic   string   `toml:"topic"`
	Brokers []string `toml:"brokers"`
	Group   string   `toml:"group"`
}

// Validate checks the driver and its required settings.
func (c *Config) Validate() error {
	switch c.Driver {
	case "", DriverMemory:
		return nil
	case DriverKafka:
		if len(c.Brokers) == 0 {
			return fmt.Errorf("brokers is required when driver is kafka")
		}
		return nil
	default:
		return fmt.Errorf("unknown events driver %q", c.Driver)
	}
}
