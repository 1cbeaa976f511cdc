package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"liveline/internal/models"
	"liveline/internal/queue"
)

var errReadOnly = errors.New("write in read-only transaction")

// tx stages writes against a copy of the bucket.
type tx struct {
	readOnly bool
	queue    models.Queue
	visitors map[string]models.Visitor
	logs     []models.ActivityLogEntry
	history  []models.ActivityLogEntry
	inserted []string
	deleted  []string
}

func newTx(b *bucket) *tx {
	visitors := make(map[string]models.Visitor, len(b.visitors))
	for id, v := range b.visitors {
		visitors[id] = v.Clone()
	}
	return &tx{
		queue:    b.queue,
		visitors: visitors,
		history:  b.logs,
	}
}

func (t *tx) GetQueue(ctx context.Context, id string) (models.Queue, error) {
	if id != t.queue.ID {
		return models.Queue{}, fmt.Errorf("queue %s: %w", id, queue.ErrNotFound)
	}
	return t.queue, nil
}

func (t *tx) SaveQueue(ctx context.Context, q models.Queue) error {
	if t.readOnly {
		return errReadOnly
	}
	if q.ID != t.queue.ID {
		return fmt.Errorf("queue %s: %w", q.ID, queue.ErrNotFound)
	}
	t.queue = q
	return nil
}

func (t *tx) GetVisitors(ctx context.Context, queueID string) ([]models.Visitor, error) {
	if queueID != t.queue.ID {
		return nil, fmt.Errorf("queue %s: %w", queueID, queue.ErrNotFound)
	}
	out := make([]models.Visitor, 0, len(t.visitors))
	for _, v := range t.visitors {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TicketNumber < out[j].TicketNumber
	})
	return out, nil
}

func (t *tx) GetVisitor(ctx context.Context, id string) (models.Visitor, error) {
	v, ok := t.visitors[id]
	if !ok {
		return models.Visitor{}, fmt.Errorf("visitor %s: %w", id, queue.ErrNotFound)
	}
	return v.Clone(), nil
}

func (t *tx) InsertVisitor(ctx context.Context, v models.Visitor) error {
	if t.readOnly {
		return errReadOnly
	}
	if v.QueueID != t.queue.ID {
		return fmt.Errorf("visitor %s belongs to queue %s, not %s", v.ID, v.QueueID, t.queue.ID)
	}
	if _, ok := t.visitors[v.ID]; ok {
		return fmt.Errorf("visitor %s already exists", v.ID)
	}
	for _, other := range t.visitors {
		if other.TicketNumber == v.TicketNumber {
			return fmt.Errorf("ticket number %d already issued in queue %s", v.TicketNumber, v.QueueID)
		}
	}
	t.visitors[v.ID] = v.Clone()
	t.inserted = append(t.inserted, v.ID)
	return nil
}

func (t *tx) UpdateVisitor(ctx context.Context, v models.Visitor) error {
	if t.readOnly {
		return errReadOnly
	}
	old, ok := t.visitors[v.ID]
	if !ok {
		return fmt.Errorf("visitor %s: %w", v.ID, queue.ErrNotFound)
	}
	if old.TicketNumber != v.TicketNumber || old.QueueID != v.QueueID {
		return fmt.Errorf("visitor %s: ticket number and queue are immutable", v.ID)
	}
	t.visitors[v.ID] = v.Clone()
	return nil
}

func (t *tx) DeleteVisitor(ctx context.Context, id string) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.visitors[id]; !ok {
		return fmt.Errorf("visitor %s: %w", id, queue.ErrNotFound)
	}
	delete(t.visitors, id)
	t.deleted = append(t.deleted, id)
	return nil
}

func (t *tx) AppendLog(ctx context.Context, entry models.ActivityLogEntry) error {
	if t.readOnly {
		return errReadOnly
	}
	t.logs = append(t.logs, entry)
	return nil
}

func (t *tx) ListLogs(ctx context.Context, queueID string, limit int) ([]models.ActivityLogEntry, error) {
	if queueID != t.queue.ID {
		return nil, fmt.Errorf("queue %s: %w", queueID, queue.ErrNotFound)
	}
	all := make([]models.ActivityLogEntry, 0, len(t.history)+len(t.logs))
	all = append(all, t.history...)
	all = append(all, t.logs...)

	out := make([]models.ActivityLogEntry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
