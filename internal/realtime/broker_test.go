package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func received(sub *Subscription) bool {
	select {
	case <-sub.C:
		return true
	default:
		return false
	}
}

func TestBrokerDeliversToQueueSubscribersOnly(t *testing.T) {
	b := NewBroker(nil)
	ctx := context.Background()

	a1 := b.Subscribe("a")
	a2 := b.Subscribe("a")
	other := b.Subscribe("b")

	b.Publish(ctx, "a")

	assert.True(t, received(a1))
	assert.True(t, received(a2))
	assert.False(t, received(other))
	assert.Equal(t, 2, b.Subscribers("a"))
	assert.Equal(t, "a", a1.QueueID())
}

func TestBrokerCoalescesPendingSignals(t *testing.T) {
	b := NewBroker(nil)
	sub := b.Subscribe("a")

	for i := 0; i < 10; i++ {
		b.Publish(context.Background(), "a")
	}

	assert.True(t, received(sub))
	assert.False(t, received(sub))
}

func TestBrokerPublishNeverBlocks(t *testing.T) {
	b := NewBroker(nil)
	b.Subscribe("a") // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(context.Background(), "a")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker(nil)
	sub := b.Subscribe("a")
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	b.Publish(context.Background(), "a")
	assert.False(t, received(sub))
	assert.Zero(t, b.Subscribers("a"))
}

func TestBrokerConcurrentUse(t *testing.T) {
	b := NewBroker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := b.Subscribe("a")
			b.Unsubscribe(sub)
		}()
		go func() {
			defer wg.Done()
			b.Publish(context.Background(), "a")
		}()
	}
	wg.Wait()
	require.Zero(t, b.Subscribers("a"))
}

type countingPublisher struct {
	mu  sync.Mutex
	ids []string
}

func (c *countingPublisher) Publish(_ context.Context, queueID string) {
	c.mu.Lock()
	c.ids = append(c.ids, queueID)
	c.mu.Unlock()
}

func TestFanout(t *testing.T) {
	first, second := &countingPublisher{}, &countingPublisher{}
	Fanout{first, second}.Publish(context.Background(), "q")

	assert.Equal(t, []string{"q"}, first.ids)
	assert.Equal(t, []string{"q"}, second.ids)
}
