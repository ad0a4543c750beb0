package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"shared-notes-server/internal/domain"
	"shared-notes-server/pkg/logger/slogx"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

const (
	channelPrefix  = "shared-note:"
	channelPattern = channelPrefix + "*"
)

type EventType string

const (
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is the JSON document published for every accepted write.
type Event struct {
	Type   EventType          `json:"type"`
	NoteID string             `json:"noteId"`
	Note   *domain.SharedNote `json:"note,omitempty"`
}

func ChannelFor(noteID string) string {
	return channelPrefix + noteID
}

// NewRedisClient parses redisURL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Redis 7 does not know the maint_notifications handshake.
	opts.MaintNotificationsConfig = &maintnotifications.Config{
		Mode: maintnotifications.ModeDisabled,
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisNotifier publishes events so every server replica can forward them to
// its own subscribers.
type RedisNotifier struct {
	client redis.UniversalClient
}

func NewRedisNotifier(client redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) NoteUpdated(ctx context.Context, note *domain.SharedNote) error {
	return n.publish(ctx, &Event{Type: EventUpdated, NoteID: note.ID, Note: note})
}

func (n *RedisNotifier) NoteDeleted(ctx context.Context, id string) error {
	return n.publish(ctx, &Event{Type: EventDeleted, NoteID: id})
}

func (n *RedisNotifier) publish(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := n.client.Publish(ctx, ChannelFor(event.NoteID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}

// Sink receives relayed events; HubNotifier satisfies it.
type Sink interface {
	NoteUpdated(ctx context.Context, note *domain.SharedNote) error
	NoteDeleted(ctx context.Context, id string) error
}

// RedisRelay pattern-subscribes to every shared note channel and replays
// events into a local Sink.
type RedisRelay struct {
	client redis.UniversalClient
	sink   Sink
}

func NewRedisRelay(client redis.UniversalClient, sink Sink) *RedisRelay {
	return &RedisRelay{client: client, sink: sink}
}

// Run blocks until ctx is cancelled or the subscription channel closes.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, channelPattern)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channelPattern, err)
	}
	slogx.Info(ctx, "relaying shared note events from redis")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.dispatch(ctx, msg.Channel, msg.Payload); err != nil {
				slogx.Warn(ctx, "dropping relayed event", slogx.Err(err))
			}
		}
	}
}

func (r *RedisRelay) dispatch(ctx context.Context, channel, payload string) error {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return fmt.Errorf("decode event on %s: %w", channel, err)
	}
	if id := strings.TrimPrefix(channel, channelPrefix); id != event.NoteID {
		return fmt.Errorf("event for %q published on %s", event.NoteID, channel)
	}

	switch event.Type {
	case EventUpdated:
		if event.Note == nil {
			return fmt.Errorf("update event for %s has no note", event.NoteID)
		}
		return r.sink.NoteUpdated(ctx, event.Note)
	case EventDeleted:
		return r.sink.NoteDeleted(ctx, event.NoteID)
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
}
