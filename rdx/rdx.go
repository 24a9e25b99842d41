package rdx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection used for checkout claim locks and
// order-event pub/sub. Constructed in main and injected.
type Client struct {
	conn *redis.Client
}

func New(addr string) *Client {
	return &Client{conn: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// SetNX acquires a best-effort lock key with a TTL.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.conn.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, key string) error {
	return c.conn.Del(ctx, key).Err()
}

func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.conn.Publish(ctx, channel, payload).Err()
}

func (c *Client) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return c.conn.Subscribe(ctx, channel)
}
