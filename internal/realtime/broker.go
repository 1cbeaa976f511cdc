// Package realtime fans "queue changed" signals out to observers. Signals
// carry no state; observers re-fetch the snapshot when one arrives.
package realtime

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Publisher is anything that can emit a queue-changed signal.
type Publisher interface {
	Publish(ctx context.Context, queueID string)
}

// Subscription receives at most one pending signal at a time. Signals that
// arrive while one is pending are merged into it.
type Subscription struct {
	C       <-chan struct{}
	c       chan struct{}
	queueID string
}

func (s *Subscription) QueueID() string { return s.queueID }

// Broker is the in-process hub. Publish never blocks, so a slow observer
// cannot hold up a mutation.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
	log  logrus.FieldLogger
}

func NewBroker(log logrus.FieldLogger) *Broker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Broker{
		subs: make(map[string]map[*Subscription]struct{}),
		log:  log.WithField("component", "broker"),
	}
}

func (b *Broker) Subscribe(queueID string) *Subscription {
	c := make(chan struct{}, 1)
	sub := &Subscription{C: c, c: c, queueID: queueID}

	b.mu.Lock()
	set, ok := b.subs[queueID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[queueID] = set
	}
	set[sub] = struct{}{}
	total := len(set)
	b.mu.Unlock()

	b.log.WithFields(logrus.Fields{"queue_id": queueID, "subscribers": total}).Debug("subscribed")
	return sub
}

func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	set, ok := b.subs[sub.queueID]
	if ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.queueID)
		}
	}
	total := len(set)
	b.mu.Unlock()

	b.log.WithFields(logrus.Fields{"queue_id": sub.queueID, "subscribers": total}).Debug("unsubscribed")
}

func (b *Broker) Publish(_ context.Context, queueID string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[queueID] {
		select {
		case sub.c <- struct{}{}:
		default:
			// a signal is already pending
		}
	}
}

// Subscribers returns how many observers are attached to queueID.
func (b *Broker) Subscribers(queueID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[queueID])
}

// Fanout forwards each signal to every publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, queueID string) {
	for _, p := range f {
		p.Publish(ctx, queueID)
	}
}
