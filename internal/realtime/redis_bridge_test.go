package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBridgePair(t *testing.T) (*RedisBridge, *Broker, *RedisBridge, *Broker) {
	t.Helper()
	mr := miniredis.RunT(t)

	connect := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	localA, localB := NewBroker(nil), NewBroker(nil)
	bridgeA := NewRedisBridge(connect(), localA, nil)
	bridgeB := NewRedisBridge(connect(), localB, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = bridgeA.Run(ctx) }()
	go func() { _ = bridgeB.Run(ctx) }()

	return bridgeA, localA, bridgeB, localB
}

func TestRedisBridgeRelaysToOtherInstances(t *testing.T) {
	bridgeA, _, _, localB := newBridgePair(t)
	sub := localB.Subscribe("q1")

	require.Eventually(t, func() bool {
		bridgeA.Publish(context.Background(), "q1")
		return received(sub)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRedisBridgeIgnoresOwnSignals(t *testing.T) {
	bridgeA, localA, _, localB := newBridgePair(t)
	own := localA.Subscribe("q1")
	remote := localB.Subscribe("q1")

	require.Eventually(t, func() bool {
		bridgeA.Publish(context.Background(), "q1")
		return received(remote)
	}, 2*time.Second, 20*time.Millisecond)

	// once B hears it, A has processed its own copy too
	time.Sleep(50 * time.Millisecond)
	assert.False(t, received(own))
}

func TestRedisBridgeHandleMalformed(t *testing.T) {
	local := NewBroker(nil)
	sub := local.Subscribe("q1")
	b := NewRedisBridge(nil, local, nil)

	b.handle(context.Background(), "garbage")
	b.handle(context.Background(), "|"+b.InstanceID())
	b.handle(context.Background(), "q1|"+b.InstanceID())
	assert.False(t, received(sub))

	b.handle(context.Background(), "q1|someone-else")
	assert.True(t, received(sub))
}

func TestRedisBridgeRunStopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	b := NewRedisBridge(client, NewBroker(nil), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestBackoffDoublesAndResets(t *testing.T) {
	b := newBackoff(time.Second, 4*time.Second)
	assert.Equal(t, time.Second, b.next())
	assert.Equal(t, 2*time.Second, b.next())
	assert.Equal(t, 4*time.Second, b.next())
	assert.Equal(t, 4*time.Second, b.next())

	b.reset()
	assert.Equal(t, time.Second, b.next())
}

func TestRedisBridgeSubscribeReportsEstablished(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	b := NewRedisBridge(client, NewBroker(nil), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	established, err := b.subscribe(ctx)
	assert.True(t, established)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	mr.Close()
	established, err = b.subscribe(context.Background())
	assert.False(t, established)
	assert.Error(t, err)
}
