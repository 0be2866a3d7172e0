package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisChannelPrefix = "notify:group:"

// envelope is the wire form of a publish relayed between nodes.
type envelope struct {
	Group string          `json:"group"`
	Type  string          `json:"type"`
	To    int64           `json:"recipient_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeEnvelope(group string, ev Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	return json.Marshal(envelope{Group: group, Type: ev.Type, To: ev.RecipientID, Data: data})
}

func decodeEnvelope(payload []byte) (string, Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", Event{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.Group == "" || env.Type == "" {
		return "", Event{}, fmt.Errorf("envelope is missing group or type")
	}

	ev := Event{Type: env.Type, RecipientID: env.To}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		ev.Data = env.Data
	}
	return env.Group, ev, nil
}

// RedisBus shares publishes between nodes through Redis pub/sub. Every node runs the
// relay loop and hands received events to its LocalBus.
type RedisBus struct {
	client *redis.Client
	local  *LocalBus
}

func NewRedisBus(client *redis.Client, local *LocalBus) *RedisBus {
	return &RedisBus{
		client: client,
		local:  local,
	}
}

func (b *RedisBus) Publish(ctx context.Context, group string, ev Event) error {
	payload, err := encodeEnvelope(group, ev)
	if err != nil {
		return err
	}

	if err = b.client.Publish(ctx, redisChannelPrefix+group, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Run relays events from Redis into the local bus until ctx is cancelled. It returns an
// error when the subscription fails or the channel closes while ctx is still live.
func (b *RedisBus) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before relaying.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to redis: %w", err)
	}
	log.Info().Msg("redis event relay subscribed ✅")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errRelayClosed
			}
			b.relay(ctx, msg.Channel, msg.Payload)
		}
	}
}

var errRelayClosed = errors.New("redis relay channel closed")

// relay hands one received message to the local bus. Malformed messages and messages whose
// group does not match their channel are dropped.
func (b *RedisBus) relay(ctx context.Context, channel, payload string) bool {
	group, ev, err := decodeEnvelope([]byte(payload))
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("dropping malformed relay message")
		return false
	}
	if channel != redisChannelPrefix+group {
		log.Error().Str("channel", channel).Str("group", group).Msg("relay message group does not match channel")
		return false
	}

	b.local.Publish(ctx, group, ev)
	return true
}
