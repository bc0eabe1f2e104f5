// Package notify fans committed deliveries out to subscribers. The worker
// calls a Publisher after each delivery transaction commits; a failed
// publish never affects the history cache.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-chat-queue/internal/worker"
)

// DefaultChannelPrefix is prepended to the chat name to form the channel.
const DefaultChannelPrefix = "chat:"

// client is the subset of *redis.Client used here.
type client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes each delivery as JSON on Prefix+chat name.
type RedisPublisher struct {
	rdb    client
	prefix string
}

// NewRedisPublisher wraps rdb. An empty prefix uses DefaultChannelPrefix.
func NewRedisPublisher(rdb client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

// Event is the JSON payload published per delivery.
type Event struct {
	Chat         string    `json:"chat"`
	MessageID    uint      `json:"message_id"`
	QueueEntryID uint      `json:"queue_entry_id"`
	Version      int64     `json:"version"`
	Username     string    `json:"username"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

func eventOf(d worker.Delivery) Event {
	return Event{
		Chat:         d.ChatName,
		MessageID:    d.MessageID,
		QueueEntryID: d.QueueEntryID,
		Version:      d.Version,
		Username:     d.Item.Username,
		Content:      d.Item.Content,
		CreatedAt:    d.Item.CreatedAt,
	}
}

// Channel returns the channel a chat's deliveries go to.
func (p *RedisPublisher) Channel(chat string) string { return p.prefix + chat }

// Publish implements worker.Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, d worker.Delivery) error {
	b, err := json.Marshal(eventOf(d))
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.Channel(d.ChatName), b).Err(); err != nil {
		return fmt.Errorf("notify: publish to %s: %w", p.Channel(d.ChatName), err)
	}
	return nil
}

// Nop discards deliveries.
type Nop struct{}

// Publish implements worker.Publisher.
func (Nop) Publish(context.Context, worker.Delivery) error { return nil }

// Dial connects to Redis and pings it.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("notify: ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

var (
	_ worker.Publisher = (*RedisPublisher)(nil)
	_ worker.Publisher = Nop{}
)
