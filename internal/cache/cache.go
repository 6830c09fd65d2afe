// Package cache is a short-TTL read-path cache over Redis. It is an
// optimization, never a source of truth: every error is swallowed and
// logged, and writers invalidate by the exact keys readers compute.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizlinkhq/bizlink-server/internal/observability/metrics"
	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

// Key builders are shared by read and write paths so both sides agree on
// invalidation targets without coordination.

// ManagerConversationsKey caches the first page of a manager's list view.
func ManagerConversationsKey(managerID uuid.UUID) string {
	return "conversations:manager:" + managerID.String()
}

// ConversationDetailKey caches the initial detail window of a conversation.
func ConversationDetailKey(conversationID uuid.UUID) string {
	return "conversation:detail:" + conversationID.String()
}

// CustomerConversationKey caches a customer's single conversation.
func CustomerConversationKey(customerID uuid.UUID) string {
	return "conversation:customer:" + customerID.String()
}

// Cache wraps a redis client with JSON encoding and a fixed TTL.
type Cache struct {
	redis   *redis.Client
	ttl     time.Duration
	metrics *metrics.ChatMetrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

func New(client *redis.Client, ttl time.Duration, m *metrics.ChatMetrics, logger *logging.Logger) *Cache {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{
		redis:   client,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("bizlink.internal.cache"),
	}
}

// Get loads a cached value into dest. Returns false on miss or any error.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if c == nil {
		return false
	}
	ctx, span := c.tracer.Start(ctx, "cache.get")
	defer span.End()

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			span.RecordError(err)
			c.logger.Warn("cache: get failed", "key", key, "error", err)
		}
		c.metrics.ObserveCache("get", "miss")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		span.RecordError(err)
		c.logger.Warn("cache: decode failed", "key", key, "error", err)
		c.metrics.ObserveCache("get", "miss")
		return false
	}
	c.metrics.ObserveCache("get", "hit")
	return true
}

// Set stores value under key for the cache TTL. Failures are logged only.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	if c == nil {
		return
	}
	ctx, span := c.tracer.Start(ctx, "cache.set")
	defer span.End()

	data, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("cache: encode failed", "key", key, "error", err)
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		span.RecordError(err)
		c.logger.Warn("cache: set failed", "key", key, "error", err)
		return
	}
	c.metrics.ObserveCache("set", "ok")
}

// Delete removes the given keys. Called on every write that can change
// their values; failures are logged only (the TTL bounds the staleness).
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	ctx, span := c.tracer.Start(ctx, "cache.delete")
	defer span.End()

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		span.RecordError(err)
		c.logger.Warn("cache: delete failed", "keys", keys, "error", err)
		return
	}
	c.metrics.ObserveCache("delete", "ok")
}
