package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wapteam1/volatile-chat/internal/models"
)

// queueTTL bounds how long an abandoned queue can linger. It is refreshed on
// every append, so it only fires for recipients who never come back.
const queueTTL = 7 * 24 * time.Hour

// RedisStore keeps one Redis list per recipient. Per-key atomicity comes from
// Redis's single-threaded command execution; Drain uses MULTI/EXEC to make
// the read-and-delete a single atomic block.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// queueKey returns the key for a recipient's pending-message list.
func queueKey(recipient string) string {
	return fmt.Sprintf("queue:%s", recipient)
}

// Append adds a message to the tail of the recipient's list.
func (s *RedisStore) Append(ctx context.Context, recipient string, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := queueKey(recipient)

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, string(data))
	pipe.Expire(ctx, key, queueTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// ReadAll returns the recipient's queue in insertion order without touching it.
func (s *RedisStore) ReadAll(ctx context.Context, recipient string) ([]models.Message, error) {
	results, err := s.client.LRange(ctx, queueKey(recipient), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeMembers(results), nil
}

// RemoveExact removes the first list entry whose message id matches. The
// lookup reads the list and then issues LREM on the exact serialized member:
// a concurrent removal of the same entry makes LREM report zero, which maps
// to not-found rather than an error.
func (s *RedisStore) RemoveExact(ctx context.Context, recipient, id string) (models.Message, bool, error) {
	key := queueKey(recipient)

	results, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return models.Message{}, false, err
	}

	for _, member := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(member), &msg); err != nil {
			continue
		}
		if msg.ID != id {
			continue
		}

		removed, err := s.client.LRem(ctx, key, 1, member).Result()
		if err != nil {
			return models.Message{}, false, err
		}
		if removed == 0 {
			// Lost the race to another acknowledgement.
			return models.Message{}, false, nil
		}
		return msg, true, nil
	}

	return models.Message{}, false, nil
}

// Drain atomically snapshots and deletes the recipient's queue.
func (s *RedisStore) Drain(ctx context.Context, recipient string) ([]models.Message, error) {
	key := queueKey(recipient)

	pipe := s.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return decodeMembers(rangeCmd.Val()), nil
}

// decodeMembers unmarshals list members, skipping any that fail to parse.
func decodeMembers(members []string) []models.Message {
	messages := make([]models.Message, 0, len(members))
	for _, member := range members {
		var msg models.Message
		if err := json.Unmarshal([]byte(member), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}
