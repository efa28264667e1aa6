// Package audit ships service audit entries to Redis streams, one stream per
// record, trimmed to an approximate maximum length.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"gravecore/pkg/domain"
)

const (
	// DefaultMaxLen bounds each per-record stream.
	DefaultMaxLen = 1000
	// DefaultPrefix namespaces the stream keys.
	DefaultPrefix = "gravecore:audit"
)

// Config configures the Redis recorder.
type Config struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
	MaxLen   int64  `toml:"max_len"`
}

// Validate checks the address when the recorder is enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("addr is required when audit is enabled")
	}
	if c.MaxLen < 0 {
		return fmt.Errorf("max_len must not be negative")
	}
	return nil
}

// RedisRecorder appends audit entries to Redis streams.
type RedisRecorder struct {
	client redis.UniversalClient
	prefix string
	maxLen int64
	logger *slog.Logger
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config) (*RedisRecorder, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisRecorder(client, cfg.Prefix, cfg.MaxLen), nil
}

// NewRedisRecorder wraps an existing client. Zero values select
// DefaultPrefix and DefaultMaxLen.
func NewRedisRecorder(client redis.UniversalClient, prefix string, maxLen int64) *RedisRecorder {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if maxLen == 0 {
		maxLen = DefaultMaxLen
	}
	return &RedisRecorder{
		client: client,
		prefix: prefix,
		maxLen: maxLen,
		logger: slog.Default().With("module", "audit-redis"),
	}
}

// StreamKey names the stream holding a record's entries.
func (r *RedisRecorder) StreamKey(entity domain.EntityType, id string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, entity, id)
}

// Record appends entry to its record's stream. Entries without a record are
// skipped; failures are logged.
func (r *RedisRecorder) Record(ctx context.Context, entry domain.AuditEntry) {
	if entry.Entity == "" || entry.EntityID == "" {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		r.logger.Error("encode audit entry", "operation", entry.Operation, "error", err)
		return
	}
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.StreamKey(entry.Entity, entry.EntityID),
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]any{"entry": payload},
	}).Err()
	if err != nil {
		r.logger.Warn("append audit entry", "operation", entry.Operation, "entity_id", entry.EntityID, "error", err)
	}
}

// Trail reads a record's stream, oldest first.
func (r *RedisRecorder) Trail(ctx context.Context, entity domain.EntityType, id string) ([]domain.AuditEntry, error) {
	messages, err := r.client.XRange(ctx, r.StreamKey(entity, id), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read audit stream: %w", err)
	}
	out := make([]domain.AuditEntry, 0, len(messages))
	for _, msg := range messages {
		raw, ok := msg.Values["entry"].(string)
		if !ok {
			continue
		}
		var entry domain.AuditEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", msg.ID, err)
		}
		if entry.ID == "" {
			entry.ID = msg.ID
		}
		out = append(out, entry)
	}
	return out, nil
}

// Close closes the client.
func (r *RedisRecorder) Close() error { return r.client.Close() }
