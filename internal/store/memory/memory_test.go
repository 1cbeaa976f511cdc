package memory

import (
	"context"
	"errors"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveline/internal/models"
	"liveline/internal/queue"
)

func seed(t *testing.T) (*Store, models.Queue) {
	t.Helper()
	s := New()
	q := models.Queue{ID: "q1", Name: "Front desk", JoinCode: "ABC234", Status: models.QueueActive}
	require.NoError(t, s.CreateQueue(context.Background(), q))
	return s, q
}

func TestCreateQueueRejectsDuplicates(t *testing.T) {
	s, q := seed(t)
	ctx := context.Background()

	err := s.CreateQueue(ctx, models.Queue{ID: "q2", JoinCode: q.JoinCode})
	assert.ErrorIs(t, err, queue.ErrJoinCodeTaken)

	err = s.CreateQueue(ctx, models.Queue{ID: q.ID, JoinCode: "ZZZ999"})
	assert.Error(t, err)

	found, err := s.FindQueueByJoinCode(ctx, q.JoinCode)
	require.NoError(t, err)
	assert.Equal(t, q.ID, found.ID)

	_, err = s.FindQueueByJoinCode(ctx, "NOPE00")
	assert.ErrorIs(t, err, queue.ErrNotFound)
}

func TestUpdateCommitsAndIndexes(t *testing.T) {
	s, q := seed(t)
	ctx := context.Background()

	err := s.Update(ctx, q.ID, func(tx queue.Tx) error {
		if err := tx.InsertVisitor(ctx, models.Visitor{ID: "v1", QueueID: q.ID, TicketNumber: 1, Status: models.StatusWaiting}); err != nil {
			return err
		}
		return tx.AppendLog(ctx, models.ActivityLogEntry{ID: "l1", QueueID: q.ID, VisitorID: "v1", Action: models.ActionJoin})
	})
	require.NoError(t, err)

	id, err := s.VisitorQueueID(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, q.ID, id)

	err = s.View(ctx, q.ID, func(tx queue.Tx) error {
		vs, err := tx.GetVisitors(ctx, q.ID)
		require.NoError(t, err)
		assert.Len(t, vs, 1)

		logs, err := tx.ListLogs(ctx, q.ID, 10)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestIndexOutlivesCallerBuffer(t *testing.T) {
	s, q := seed(t)
	ctx := context.Background()

	buf := []byte(q.ID)
	queueID := unsafe.String(&buf[0], len(buf))
	err := s.Update(ctx, queueID, func(tx queue.Tx) error {
		return tx.InsertVisitor(ctx, models.Visitor{ID: "v1", QueueID: q.ID, TicketNumber: 1, Status: models.StatusWaiting})
	})
	require.NoError(t, err)

	copy(buf, "zz")

	id, err := s.VisitorQueueID(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, q.ID, id)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s, q := seed(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, q.ID, func(tx queue.Tx) error {
		require.NoError(t, tx.InsertVisitor(ctx, models.Visitor{ID: "v1", QueueID: q.ID, TicketNumber: 1}))
		q.LastTicketNumber = 1
		require.NoError(t, tx.SaveQueue(ctx, q))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.VisitorQueueID(ctx, "v1")
	assert.ErrorIs(t, err, queue.ErrNotFound)

	err = s.View(ctx, q.ID, func(tx queue.Tx) error {
		got, err := tx.GetQueue(ctx, q.ID)
		require.NoError(t, err)
		assert.Zero(t, got.LastTicketNumber)
		_, err = tx.GetVisitor(ctx, "v1")
		assert.ErrorIs(t, err, queue.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestTxGuards(t *testing.T) {
	s, q := seed(t)
	ctx := context.Background()

	err := s.Update(ctx, q.ID, func(tx queue.Tx) error {
		require.NoError(t, tx.InsertVisitor(ctx, models.Visitor{ID: "v1", QueueID: q.ID, TicketNumber: 1}))

		assert.Error(t, tx.InsertVisitor(ctx, models.Visitor{ID: "v1", QueueID: q.ID, TicketNumber: 2}))
		assert.Error(t, tx.InsertVisitor(ctx, models.Visitor{ID: "v2", QueueID: q.ID, TicketNumber: 1}))
		assert.Error(t, tx.InsertVisitor(ctx, models.Visitor{ID: "v3", QueueID: "other", TicketNumber: 3}))

		assert.Error(t, tx.UpdateVisitor(ctx, models.Visitor{ID: "v1", QueueID: q.ID, TicketNumber: 9}))
		assert.ErrorIs(t, tx.UpdateVisitor(ctx, models.Visitor{ID: "nope", QueueID: q.ID}), queue.ErrNotFound)
		assert.ErrorIs(t, tx.DeleteVisitor(ctx, "nope"), queue.ErrNotFound)

		_, err := tx.GetQueue(ctx, "other")
		assert.ErrorIs(t, err, queue.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	err = s.View(ctx, q.ID, func(tx queue.Tx) error {
		return tx.UpdateVisitor(ctx, models.Visitor{ID: "v1", QueueID: q.ID, TicketNumber: 1})
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestReturnedVisitorsAreCopies(t *testing.T) {
	s, q := seed(t)
	ctx := context.Background()
	order := 1

	require.NoError(t, s.Update(ctx, q.ID, func(tx queue.Tx) error {
		return tx.InsertVisitor(ctx, models.Visitor{ID: "v1", QueueID: q.ID, TicketNumber: 1, Order: &order})
	}))

	require.NoError(t, s.View(ctx, q.ID, func(tx queue.Tx) error {
		v, err := tx.GetVisitor(ctx, "v1")
		require.NoError(t, err)
		*v.Order = 99
		return nil
	}))

	require.NoError(t, s.View(ctx, q.ID, func(tx queue.Tx) error {
		v, err := tx.GetVisitor(ctx, "v1")
		require.NoError(t, err)
		assert.Equal(t, 1, *v.Order)
		return nil
	}))
}

func TestListLogsNewestFirstWithLimit(t *testing.T) {
	s, q := seed(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"l1", "l2", "l3"} {
		require.NoError(t, s.Update(ctx, q.ID, func(tx queue.Tx) error {
			return tx.AppendLog(ctx, models.ActivityLogEntry{ID: id, QueueID: q.ID, CreatedAt: base.Add(time.Duration(i) * time.Second)})
		}))
	}

	require.NoError(t, s.Update(ctx, q.ID, func(tx queue.Tx) error {
		require.NoError(t, tx.AppendLog(ctx, models.ActivityLogEntry{ID: "l4", QueueID: q.ID}))
		logs, err := tx.ListLogs(ctx, q.ID, 2)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "l4", logs[0].ID)
		assert.Equal(t, "l3", logs[1].ID)
		return nil
	}))
}

func TestDeleteQueue(t *testing.T) {
	s, q := seed(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, q.ID, func(tx queue.Tx) error {
		return tx.InsertVisitor(ctx, models.Visitor{ID: "v1", QueueID: q.ID, TicketNumber: 1})
	}))
	require.NoError(t, s.DeleteQueue(ctx, q.ID))

	_, err := s.VisitorQueueID(ctx, "v1")
	assert.ErrorIs(t, err, queue.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, q.ID, func(queue.Tx) error { return nil }), queue.ErrNotFound)
	assert.ErrorIs(t, s.DeleteQueue(ctx, q.ID), queue.ErrNotFound)

	ids, err := s.ListQueueIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// the join code is free again
	require.NoError(t, s.CreateQueue(ctx, models.Queue{ID: "q2", JoinCode: q.JoinCode}))
}

func TestRemovedVisitorLeavesIndex(t *testing.T) {
	s, q := seed(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, q.ID, func(tx queue.Tx) error {
		return tx.InsertVisitor(ctx, models.Visitor{ID: "v1", QueueID: q.ID, TicketNumber: 1})
	}))
	require.NoError(t, s.Update(ctx, q.ID, func(tx queue.Tx) error {
		return tx.DeleteVisitor(ctx, "v1")
	}))

	_, err := s.VisitorQueueID(ctx, "v1")
	assert.ErrorIs(t, err, queue.ErrNotFound)
}
