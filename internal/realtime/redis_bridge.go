package realtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const channelPrefix = "liveline:queue:"

// RedisBridge relays signals between engine instances over Redis Pub/Sub.
// Publish sends to liveline:queue:<id>; Run delivers signals from other
// instances to the local broker. Payloads are "<queue id>|<instance id>" so
// an instance ignores its own messages.
type RedisBridge struct {
	client     *redis.Client
	local      Publisher
	log        logrus.FieldLogger
	instanceID string
}

func NewRedisBridge(client *redis.Client, local Publisher, log logrus.FieldLogger) *RedisBridge {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisBridge{
		client:     client,
		local:      local,
		log:        log.WithField("component", "redis_bridge"),
		instanceID: uuid.NewString(),
	}
}

func (b *RedisBridge) InstanceID() string { return b.instanceID }

// Publish is best-effort: a failure is logged and the mutation still stands.
func (b *RedisBridge) Publish(ctx context.Context, queueID string) {
	payload := queueID + "|" + b.instanceID
	if err := b.client.Publish(ctx, channelPrefix+queueID, payload).Err(); err != nil {
		b.log.WithError(err).WithField("queue_id", queueID).Warn("failed to publish queue signal")
	}
}

// Run subscribes until ctx is done, reconnecting with exponential backoff.
func (b *RedisBridge) Run(ctx context.Context) error {
	retry := newBackoff(time.Second, 30*time.Second)
	for {
		established, err := b.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			retry.reset()
		}

		wait := retry.next()
		b.log.WithError(err).WithField("backoff", wait).Warn("queue signal subscription lost, reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// backoff doubles the reconnect delay up to max. reset starts over once a
// subscription has been established.
type backoff struct {
	base, max, cur time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max, cur: base}
}

func (b *backoff) next() time.Duration {
	d := b.cur
	b.cur = min(b.cur*2, b.max)
	return d
}

func (b *backoff) reset() { b.cur = b.base }

// subscribe listens until the subscription drops. established reports whether
// the subscription was confirmed by Redis before it failed.
func (b *RedisBridge) subscribe(ctx context.Context) (established bool, err error) {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("failed to subscribe to %s*: %w", channelPrefix, err)
	}
	b.log.Info("subscribed to queue signals")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return true, fmt.Errorf("queue signal channel closed")
			}
			b.handle(ctx, msg.Payload)
		}
	}
}

func (b *RedisBridge) handle(ctx context.Context, payload string) {
	queueID, origin, ok := strings.Cut(payload, "|")
	if !ok || queueID == "" {
		b.log.WithField("payload", payload).Warn("malformed queue signal")
		return
	}
	if origin == b.instanceID {
		return
	}
	b.local.Publish(ctx, queueID)
}
