package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ripvault/backend/internal/infrastructure/redis"
	"github.com/segmentio/kafka-go"
)

// Consumer tails the purchase and payment audit topics and drops cached
// balances for the affected users, so replicas sharing the Redis cache do
// not serve stale reads after another instance commits a debit or credit.
// Balance mutations themselves happen inside the database transaction that
// produced the event, never here.
type Consumer struct {
	reader      *kafka.Reader
	redisClient redis.RedisClient
}

func NewConsumer(brokers []string, topic, groupID string, redisClient redis.RedisClient) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		redisClient: redisClient,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		var event struct {
			EventType string `json:"event_type"`
			UserID    int32  `json:"user_id"`
		}
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("failed to unmarshal event", "topic", msg.Topic, "error", err)
			continue
		}
		if event.UserID == 0 {
			slog.Error("event missing user_id", "topic", msg.Topic, "event_type", event.EventType)
			continue
		}

		balanceKey := fmt.Sprintf("user:%d:balance", event.UserID)
		if err := c.redisClient.Del(ctx, balanceKey); err != nil {
			slog.Error("failed to invalidate cached balance", "user_id", event.UserID, "error", err)
			continue
		}

		slog.Info("cached balance invalidated", "topic", msg.Topic, "event_type", event.EventType, "user_id", event.UserID)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
