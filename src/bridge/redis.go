package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/jobfeed/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// envelope wraps an encoded event with the originating instance ID
// so that a node can skip its own published events.
type envelope struct {
	InstanceID string          `json:"instance_id"`
	Channel    string          `json:"channel"`
	Message    json.RawMessage `json:"message"`
}

// RedisBridge relays job events between server instances via Redis pub/sub.
type RedisBridge struct {
	client     *redis.Client
	channel    string
	instanceID string
	hub        BroadcastTarget
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisBridge creates a bridge that uses Redis pub/sub for cross-instance messaging.
func NewRedisBridge(cfg *RedisConfig, hub BroadcastTarget, logger zerolog.Logger) *RedisBridge {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBridge{
		client:     client,
		channel:    cfg.Channel(),
		instanceID: uuid.New().String(),
		hub:        hub,
		logger:     logger.With().Str("component", "redis-bridge").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// InstanceID identifies this node on the shared channel.
func (b *RedisBridge) InstanceID() string { return b.instanceID }

// Start subscribes to the shared Redis channel and begins relaying events.
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	sub := b.client.Subscribe(b.ctx, b.channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(b.ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("channel", b.channel).
		Msg("redis bridge started")
	return nil
}

// Publish sends an event to all other instances via Redis.
func (b *RedisBridge) Publish(channel string, msg types.Message) error {
	data, err := b.encode(channel, msg)
	if err != nil {
		return err
	}
	return b.client.Publish(b.ctx, b.channel, data).Err()
}

func (b *RedisBridge) encode(channel string, msg types.Message) ([]byte, error) {
	raw, err := types.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", msg.Type(), err)
	}
	return json.Marshal(envelope{
		InstanceID: b.instanceID,
		Channel:    channel,
		Message:    raw,
	})
}

// Stop unsubscribes and closes the Redis connection.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

// Available reports whether the bridge is connected.
func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// listen reads events from the Redis subscription and forwards to the local hub.
func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handlePayload([]byte(msg.Payload))
		case <-b.ctx.Done():
			return
		}
	}
}

// handlePayload decodes an envelope and forwards events from other nodes to
// the hub. Malformed payloads are logged and dropped.
func (b *RedisBridge) handlePayload(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Error().Err(err).Msg("failed to decode redis envelope")
		return
	}

	// Skip events that originated from this instance.
	if env.InstanceID == b.instanceID {
		return
	}

	msg, err := types.Decode(env.Message)
	if err != nil {
		b.logger.Error().Err(err).Str("from_instance", env.InstanceID).Msg("dropping malformed relayed event")
		return
	}

	b.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("channel", env.Channel).
		Str("type", string(msg.Type())).
		Msg("relaying event from redis")

	b.hub.BroadcastToLocal(env.Channel, msg)
}
