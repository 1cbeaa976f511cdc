package queue

import (
	"context"

	"liveline/internal/models"
)

// Tx is the set of reads and writes available inside one atomic unit.
// Implementations return ErrNotFound (possibly wrapped) for unknown ids.
type Tx interface {
	GetQueue(ctx context.Context, id string) (models.Queue, error)
	SaveQueue(ctx context.Context, q models.Queue) error
	GetVisitors(ctx context.Context, queueID string) ([]models.Visitor, error)
	GetVisitor(ctx context.Context, id string) (models.Visitor, error)
	InsertVisitor(ctx context.Context, v models.Visitor) error
	UpdateVisitor(ctx context.Context, v models.Visitor) error
	DeleteVisitor(ctx context.Context, id string) error
	AppendLog(ctx context.Context, entry models.ActivityLogEntry) error
	ListLogs(ctx context.Context, queueID string, limit int) ([]models.ActivityLogEntry, error)
}

// Store is the Ticket Store. Update commits everything fn wrote or nothing;
// a non-nil error from fn rolls the unit back. Stores that cannot serialize
// the unit return ErrConcurrencyConflict so the engine can retry.
type Store interface {
	Update(ctx context.Context, queueID string, fn func(tx Tx) error) error
	View(ctx context.Context, queueID string, fn func(tx Tx) error) error

	CreateQueue(ctx context.Context, q models.Queue) error
	DeleteQueue(ctx context.Context, queueID string) error
	FindQueueByJoinCode(ctx context.Context, code string) (models.Queue, error)
	ListQueueIDs(ctx context.Context) ([]string, error)
	VisitorQueueID(ctx context.Context, visitorID string) (string, error)
}

// Publisher receives a payload-free "queue changed" signal after every commit.
type Publisher interface {
	Publish(ctx context.Context, queueID string)
}

// Sequencer hands out ticket numbers. floor is the highest number the store
// has ever issued for the queue; the result must be greater than floor.
type Sequencer interface {
	Next(ctx context.Context, queueID string, floor int64) (int64, error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string) {}
