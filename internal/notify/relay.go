package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
)

// ChannelPrefix prefixes the per-user Redis channel.
const ChannelPrefix = "journal:events:"

// RedisRelay publishes events through Redis so every instance can deliver
// them to its local hub.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	log    zerolog.Logger
}

func NewRedisRelay(client *redis.Client, hub *Hub) *RedisRelay {
	return &RedisRelay{client: client, hub: hub, log: logger.WithComponent("notify.relay")}
}

// Publish sends ev on the user's channel. Delivery to local subscribers
// happens when the message comes back through Run.
func (r *RedisRelay) Publish(ctx context.Context, userID string, ev Event) error {
	ev.UserID = userID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return r.client.Publish(ctx, ChannelPrefix+userID, data).Err()
}

// Run subscribes to every user channel and feeds the hub until ctx is
// done, resubscribing with backoff after errors.
func (r *RedisRelay) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		err := r.receive(ctx, func() { backoff = time.Second })
		if ctx.Err() != nil {
			return
		}
		r.log.Warn().Err(err).Dur("backoff", backoff).Msg("event subscriber interrupted")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

// receive runs one pattern subscription until it fails.
func (r *RedisRelay) receive(ctx context.Context, healthy func()) error {
	pubsub := r.client.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	r.log.Info().Str("pattern", ChannelPrefix+"*").Msg("event subscriber started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription closed")
			}
			healthy()
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn().Err(err).Msg("discarding malformed event")
				continue
			}
			userID := strings.TrimPrefix(msg.Channel, ChannelPrefix)
			_ = r.hub.Publish(ctx, userID, ev)
		}
	}
}
