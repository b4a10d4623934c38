package socket

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"noteszone/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannelPrefix = "noteszone:"

// RedisRegistry keeps membership locally and fans broadcasts and evictions out
// through Redis pub/sub so every process delivers to its own members.
type RedisRegistry struct {
	*LocalRegistry
	client *redis.Client
	prefix string

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisRegistry(client *redis.Client, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisRegistry{
		LocalRegistry: NewLocalRegistry(),
		client:        client,
		prefix:        prefix,
	}
}

func (r *RedisRegistry) roomChannel(room string) string  { return r.prefix + "room:" + room }
func (r *RedisRegistry) evictChannel(room string) string { return r.prefix + "evict:" + room }

// Start subscribes to the room and eviction channels and begins delivering.
func (r *RedisRegistry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub != nil {
		return nil
	}

	pubsub := r.client.PSubscribe(ctx, r.roomChannel("*"), r.evictChannel("*"))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe rooms: %w", err)
	}
	r.pubsub = pubsub
	r.done = make(chan struct{})
	go r.listen(pubsub.Channel(), r.done)
	return nil
}

func (r *RedisRegistry) listen(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	roomPrefix := r.roomChannel("")
	evictPrefix := r.evictChannel("")
	for msg := range ch {
		switch {
		case strings.HasPrefix(msg.Channel, roomPrefix):
			r.Deliver(strings.TrimPrefix(msg.Channel, roomPrefix), []byte(msg.Payload))
		case strings.HasPrefix(msg.Channel, evictPrefix):
			r.EvictLocal(strings.TrimPrefix(msg.Channel, evictPrefix), msg.Payload)
		default:
			logger.Log.Debug("ignoring redis message", zap.String("channel", msg.Channel))
		}
	}
}

func (r *RedisRegistry) Broadcast(ctx context.Context, room string, msg []byte) error {
	if err := r.client.Publish(ctx, r.roomChannel(room), msg).Err(); err != nil {
		return fmt.Errorf("publish room %s: %w", room, err)
	}
	return nil
}

func (r *RedisRegistry) Evict(ctx context.Context, room, userID string) error {
	if err := r.client.Publish(ctx, r.evictChannel(room), userID).Err(); err != nil {
		return fmt.Errorf("publish evict %s: %w", room, err)
	}
	return nil
}

// Close stops the subscription and waits for the listener to drain.
func (r *RedisRegistry) Close() error {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub, r.done = nil, nil
	r.mu.Unlock()
	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}
