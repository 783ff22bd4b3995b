package transfer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisChannel carries transfer events between instances.
const RedisChannel = "msgvault:transfer-events"

// RedisPublisher publishes events to Redis pub/sub so every instance can deliver them.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: RedisChannel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, body).Err()
}

// RedisRelay feeds events received from Redis into a local Publisher, usually a Hub.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	local   Publisher
}

func NewRedisRelay(rdb *redis.Client, local Publisher) *RedisRelay {
	return &RedisRelay{rdb: rdb, channel: RedisChannel, local: local}
}

// Run subscribes and relays until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := decodeEvent(msg.Payload)
			if err != nil {
				logrus.WithError(err).Warn("relay: invalid transfer event")
				continue
			}
			_ = r.local.Publish(ctx, ev)
		}
	}
}

func decodeEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, err
	}
	if ev.Type != EventCreated && ev.Type != EventProgress {
		return Event{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return ev, nil
}
