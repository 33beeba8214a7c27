// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the historian drains.
const DefaultQueueName = "explorers_entity_events"

// maxStoredMessages bounds each room's chat list in Redis.
const maxStoredMessages = 200

// Redis keeps chat history and the entity event queue in Redis lists.
type Redis struct {
	rdb   *redis.Client
	queue string
}

// ConnectRedis dials addr and checks the connection with a PING.
func ConnectRedis(ctx context.Context, addr string, db int, queue string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return NewRedis(rdb, queue), nil
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client, queue string) *Redis {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Redis{rdb: rdb, queue: queue}
}

func chatKey(roomSlug string) string {
	return "explorers:chat:" + roomSlug
}

// AppendMessage pushes msg onto the room's chat list, trimming old entries.
func (r *Redis) AppendMessage(ctx context.Context, roomSlug string, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}
	key := chatKey(roomSlug)
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, data)
		p.LTrim(ctx, key, -maxStoredMessages, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append to '%s': %w", key, err)
	}
	return nil
}

// RecentMessages returns up to limit of the newest messages, oldest first.
func (r *Redis) RecentMessages(ctx context.Context, roomSlug string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := r.rdb.LRange(ctx, chatKey(roomSlug), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat for %s: %w", roomSlug, err)
	}
	msgs := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var m models.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// PublishEntityEvent serializes rec and pushes it onto the historian queue.
func (r *Redis) PublishEntityEvent(ctx context.Context, rec models.EntityEventRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal EntityEventRecord: %w", err)
	}
	if err := r.rdb.RPush(ctx, r.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", r.queue, err)
	}
	return nil
}

// PopEntityEvent blocks up to timeout for the next queued record. It returns
// nil without error when the queue stayed empty.
func (r *Redis) PopEntityEvent(ctx context.Context, timeout time.Duration) (*models.EntityEventRecord, error) {
	res, err := r.rdb.BLPop(ctx, timeout, r.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", r.queue, err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	// res[0] is the queue name and res[1] the payload.
	var rec models.EntityEventRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return nil, fmt.Errorf("invalid entity event record: %w", err)
	}
	return &rec, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
