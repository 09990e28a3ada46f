// Package bus provides the reference Bus transport: Redis pub/sub carrying
// JSON-encoded info/orders frames, grounded on the teacher pack's
// core.RedisClient connection-handling conventions (URL parsing, pooled
// client, ping-on-connect, namespace-free here since PMD_INFO/PMD_ORDERS
// are fixed, globally-shared channel names by design).
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fleetsheriff/sheriff/core"
)

// Channel names carrying info and orders frames, fixed by convention
// rather than namespaced: every sheriff and deputy on one Redis instance
// shares the same fleet.
const (
	ChannelInfo   = "PMD_INFO"
	ChannelOrders = "PMD_ORDERS"
)

// RedisBus implements core.Bus over a Redis pub/sub connection.
type RedisBus struct {
	client *redis.Client
	logger core.Logger
}

// Options configures a RedisBus.
type Options struct {
	RedisURL string
	Logger   core.Logger
}

// NewRedisBus dials Redis and verifies connectivity before returning,
// mirroring the teacher's connect-then-ping pattern.
func NewRedisBus(opts Options) (*RedisBus, error) {
	logger := opts.Logger
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("bus/redis")
	}

	if opts.RedisURL == "" {
		return nil, fmt.Errorf("bus: redis URL is required: %w", core.ErrInvalidConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("bus: invalid redis URL: %w", core.ErrInvalidConfiguration)
	}
	redisOpt.MaxRetries = 3
	redisOpt.MinRetryBackoff = 100 * time.Millisecond
	redisOpt.MaxRetryBackoff = time.Second
	redisOpt.DialTimeout = 5 * time.Second
	redisOpt.ReadTimeout = 5 * time.Second
	redisOpt.WriteTimeout = 5 * time.Second

	client := redis.NewClient(redisOpt)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("failed to connect to redis", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("bus: connecting to redis: %w", err)
	}

	logger.Info("redis bus connected", map[string]interface{}{"info_channel": ChannelInfo, "orders_channel": ChannelOrders})
	return &RedisBus{client: client, logger: logger}, nil
}

// Close releases the underlying Redis connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

// PublishOrders implements core.Bus.
func (b *RedisBus) PublishOrders(ctx context.Context, frame core.OrdersFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("bus: encoding orders frame: %w", err)
	}
	return b.client.Publish(ctx, ChannelOrders, payload).Err()
}

// SubscribeInfo implements core.Bus. Malformed payloads are logged and
// dropped rather than surfaced as an error, so one bad producer can never
// take down the consumer loop (spec.md §7).
func (b *RedisBus) SubscribeInfo(ctx context.Context) (<-chan core.InfoFrame, error) {
	sub := b.client.Subscribe(ctx, ChannelInfo)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("bus: subscribing to %s: %w", ChannelInfo, err)
	}

	out := make(chan core.InfoFrame, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		raw := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var frame core.InfoFrame
				if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
					b.logger.Warn("dropping malformed info frame", map[string]interface{}{"error": err.Error()})
					continue
				}
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// SubscribeOrders implements core.Bus, for observer-mode sheriffs
// shadowing another sheriff's orders.
func (b *RedisBus) SubscribeOrders(ctx context.Context) (<-chan core.OrdersFrame, error) {
	sub := b.client.Subscribe(ctx, ChannelOrders)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("bus: subscribing to %s: %w", ChannelOrders, err)
	}

	out := make(chan core.OrdersFrame, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		raw := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var frame core.OrdersFrame
				if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
					b.logger.Warn("dropping malformed orders frame", map[string]interface{}{"error": err.Error()})
					continue
				}
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
