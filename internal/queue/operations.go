package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"liveline/internal/helper"
	"liveline/internal/models"
)

// Join issues the next ticket of the queue to a new waiting visitor.
func (e *Engine) Join(ctx context.Context, queueID, name string) (models.Visitor, error) {
	name = strings.TrimSpace(name)

	var v models.Visitor
	err := e.update(ctx, queueID, func(tx Tx) error {
		q, err := tx.GetQueue(ctx, queueID)
		if err != nil {
			return err
		}
		if q.IsPaused() {
			return ErrQueuePaused
		}

		now := e.now()
		open, err := helper.IsOpen(q.OpenTime, q.CloseTime, q.Timezone, now)
		if err != nil {
			return fmt.Errorf("opening hours: %w", err)
		}
		if !open {
			return ErrQueueClosed
		}
		if name == "" && !q.Capabilities.Anonymous {
			return fmt.Errorf("name is required: %w", ErrInvalidInput)
		}

		visitors, err := tx.GetVisitors(ctx, queueID)
		if err != nil {
			return err
		}
		floor := max(q.LastTicketNumber, maxTicket(visitors))
		number, err := e.sequencer.Next(ctx, queueID, floor)
		if err != nil {
			return fmt.Errorf("allocate ticket number: %w", err)
		}
		if number <= floor {
			return fmt.Errorf("sequencer returned %d, not above %d: %w", number, floor, ErrConcurrencyConflict)
		}

		v = models.Visitor{
			ID:           uuid.NewString(),
			QueueID:      strings.Clone(queueID),
			TicketNumber: number,
			Name:         name,
			Status:       models.StatusWaiting,
			JoinTime:     now,
		}
		if v.Name == "" {
			v.Name = fmt.Sprintf("Guest %d", number)
		}
		if err := tx.InsertVisitor(ctx, v); err != nil {
			return err
		}

		q.LastTicketNumber = number
		q.UpdatedAt = now
		if err := tx.SaveQueue(ctx, q); err != nil {
			return err
		}
		return tx.AppendLog(ctx, e.logEntry(queueID, v.ID, models.ActionJoin, "", now))
	})
	if err != nil {
		return models.Visitor{}, err
	}

	e.log.WithFields(logrus.Fields{
		"queue_id":      queueID,
		"visitor_id":    v.ID,
		"ticket_number": v.TicketNumber,
	}).Debug("visitor joined")
	e.publish(ctx, queueID)
	return v, nil
}

// CallNext completes whoever the counter is serving and promotes the head of
// the line. ok is false when nobody is waiting.
func (e *Engine) CallNext(ctx context.Context, queueID, counter string) (models.Visitor, bool, error) {
	counter = strings.TrimSpace(counter)

	var next models.Visitor
	var ok, changed bool
	err := e.update(ctx, queueID, func(tx Tx) error {
		next, ok, changed = models.Visitor{}, false, false

		q, visitors, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		if err := checkCounter(q, counter); err != nil {
			return err
		}

		now := e.now()
		completed, err := e.completeServing(ctx, tx, q, visitors, counter, "", now)
		if err != nil {
			return err
		}
		changed = completed > 0

		line := Order(visitors)
		if len(line) == 0 {
			return nil
		}

		next, err = e.promote(ctx, tx, line[0], counter, models.ActionCall, now)
		if err != nil {
			return err
		}
		ok, changed = true, true
		return nil
	})
	if err != nil {
		return models.Visitor{}, false, err
	}

	if changed {
		e.publish(ctx, queueID)
	}
	return next, ok, nil
}

// CallByNumber serves a specific waiting ticket out of order.
func (e *Engine) CallByNumber(ctx context.Context, queueID string, ticketNumber int64, counter string) (models.Visitor, error) {
	counter = strings.TrimSpace(counter)

	var next models.Visitor
	err := e.update(ctx, queueID, func(tx Tx) error {
		q, visitors, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		if err := checkCounter(q, counter); err != nil {
			return err
		}

		target := -1
		for i, v := range visitors {
			if v.TicketNumber == ticketNumber && v.Status == models.StatusWaiting {
				target = i
				break
			}
		}
		if target < 0 {
			return fmt.Errorf("waiting ticket %d: %w", ticketNumber, ErrNotFound)
		}

		now := e.now()
		if _, err := e.completeServing(ctx, tx, q, visitors, counter, "", now); err != nil {
			return err
		}
		next, err = e.promote(ctx, tx, visitors[target], counter, models.ActionCall, now)
		return err
	})
	if err != nil {
		return models.Visitor{}, err
	}

	e.publish(ctx, queueID)
	return next, nil
}

// Recall puts a serving or served visitor back on the counter with fresh
// call timestamps. Anyone else serving on that counter is completed first.
func (e *Engine) Recall(ctx context.Context, queueID, visitorID string) (models.Visitor, error) {
	var v models.Visitor
	err := e.update(ctx, queueID, func(tx Tx) error {
		q, visitors, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}

		idx := indexOf(visitors, visitorID)
		if idx < 0 {
			return fmt.Errorf("visitor %s: %w", visitorID, ErrNotFound)
		}
		v = visitors[idx]
		if v.Status != models.StatusServing && v.Status != models.StatusServed {
			return fmt.Errorf("recall from %s: %w", v.Status, ErrInvalidTransition)
		}

		now := e.now()
		if _, err := e.completeServing(ctx, tx, q, visitors, v.ServedBy, v.ID, now); err != nil {
			return err
		}

		v.ServedTime = nil
		v, err = e.promote(ctx, tx, v, v.ServedBy, models.ActionRecall, now)
		return err
	})
	if err != nil {
		return models.Visitor{}, err
	}

	e.publish(ctx, queueID)
	return v, nil
}

// TakeBack returns the counter's serving visitor to the line without
// penalty. ok is false when the counter is serving nobody.
func (e *Engine) TakeBack(ctx context.Context, queueID, counter string) (models.Visitor, bool, error) {
	counter = strings.TrimSpace(counter)

	var v models.Visitor
	var ok bool
	err := e.update(ctx, queueID, func(tx Tx) error {
		v, ok = models.Visitor{}, false

		q, visitors, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		idx := servingIndex(q, visitors, counter)
		if idx < 0 {
			return nil
		}

		v = visitors[idx]
		resetToWaiting(&v)
		if err := tx.UpdateVisitor(ctx, v); err != nil {
			return err
		}
		ok = true
		return tx.AppendLog(ctx, e.logEntry(queueID, v.ID, models.ActionTakeBack, counter, e.now()))
	})
	if err != nil {
		return models.Visitor{}, false, err
	}

	if ok {
		e.publish(ctx, queueID)
	}
	return v, ok, nil
}

// Complete marks the counter's serving visitor as served.
func (e *Engine) Complete(ctx context.Context, queueID, counter string) (models.Visitor, bool, error) {
	counter = strings.TrimSpace(counter)

	var v models.Visitor
	var ok bool
	err := e.update(ctx, queueID, func(tx Tx) error {
		v, ok = models.Visitor{}, false

		q, visitors, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		idx := servingIndex(q, visitors, counter)
		if idx < 0 {
			return nil
		}

		v = visitors[idx]
		markServed(&v, e.now())
		if err := tx.UpdateVisitor(ctx, v); err != nil {
			return err
		}
		ok = true
		return tx.AppendLog(ctx, e.logEntry(queueID, v.ID, models.ActionComplete, counter, *v.ServedTime))
	})
	if err != nil {
		return models.Visitor{}, false, err
	}

	if ok {
		e.publish(ctx, queueID)
	}
	return v, ok, nil
}

// ConfirmPresence acknowledges a call; the grace-period sweep skips
// visitors that are no longer alerting.
func (e *Engine) ConfirmPresence(ctx context.Context, visitorID string) (models.Visitor, error) {
	queueID, err := e.store.VisitorQueueID(ctx, visitorID)
	if err != nil {
		return models.Visitor{}, err
	}

	var v models.Visitor
	var changed bool
	err = e.update(ctx, queueID, func(tx Tx) error {
		var err error
		v, err = tx.GetVisitor(ctx, visitorID)
		if err != nil {
			return err
		}
		if v.Status != models.StatusServing {
			return fmt.Errorf("confirm presence while %s: %w", v.Status, ErrInvalidTransition)
		}
		changed = v.IsAlerting
		if !changed {
			return nil
		}
		v.IsAlerting = false
		return tx.UpdateVisitor(ctx, v)
	})
	if err != nil {
		return models.Visitor{}, err
	}

	if changed {
		e.publish(ctx, queueID)
	}
	return v, nil
}

// Leave cancels a waiting or serving visitor. Leaving twice is a no-op.
func (e *Engine) Leave(ctx context.Context, queueID, visitorID string) (models.Visitor, error) {
	var v models.Visitor
	var changed bool
	err := e.update(ctx, queueID, func(tx Tx) error {
		var err error
		v, err = getQueueVisitor(ctx, tx, queueID, visitorID)
		if err != nil {
			return err
		}

		switch v.Status {
		case models.StatusCancelled:
			changed = false
			return nil
		case models.StatusServed:
			return fmt.Errorf("leave after being served: %w", ErrInvalidTransition)
		}

		v.Status = models.StatusCancelled
		v.IsAlerting = false
		if err := tx.UpdateVisitor(ctx, v); err != nil {
			return err
		}
		changed = true
		return tx.AppendLog(ctx, e.logEntry(queueID, v.ID, models.ActionCancel, "", e.now()))
	})
	if err != nil {
		return models.Visitor{}, err
	}

	if changed {
		e.publish(ctx, queueID)
	}
	return v, nil
}

// Clear cancels every waiting visitor and returns how many were cancelled.
func (e *Engine) Clear(ctx context.Context, queueID string) (int, error) {
	var n int
	err := e.update(ctx, queueID, func(tx Tx) error {
		n = 0

		_, visitors, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}

		now := e.now()
		for _, v := range visitors {
			if v.Status != models.StatusWaiting {
				continue
			}
			v.Status = models.StatusCancelled
			if err := tx.UpdateVisitor(ctx, v); err != nil {
				return err
			}
			if err := tx.AppendLog(ctx, e.logEntry(queueID, v.ID, models.ActionCancel, "", now)); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		e.publish(ctx, queueID)
	}
	return n, nil
}

// Reorder assigns manual orders 1..N to the listed visitors that are still
// waiting, in list order. Unknown or no-longer-waiting ids are skipped.
func (e *Engine) Reorder(ctx context.Context, queueID string, visitorIDs []string) error {
	var changed bool
	err := e.update(ctx, queueID, func(tx Tx) error {
		changed = false

		_, visitors, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}

		waiting := make(map[string]models.Visitor, len(visitors))
		for _, v := range visitors {
			if v.Status == models.StatusWaiting {
				waiting[v.ID] = v
			}
		}

		pos := 0
		for _, id := range visitorIDs {
			v, ok := waiting[id]
			if !ok {
				continue
			}
			delete(waiting, id)

			pos++
			order := pos
			v.Order = &order
			if err := tx.UpdateVisitor(ctx, v); err != nil {
				return err
			}
		}
		if pos == 0 {
			return nil
		}

		changed = true
		return tx.AppendLog(ctx, e.logEntry(queueID, "", models.ActionReorder, "", e.now()))
	})
	if err != nil {
		return err
	}

	if changed {
		e.publish(ctx, queueID)
	}
	return nil
}

// TogglePriority sets the VIP flag. The ordering policy does the moving.
func (e *Engine) TogglePriority(ctx context.Context, visitorID string, isPriority bool) (models.Visitor, error) {
	queueID, err := e.store.VisitorQueueID(ctx, visitorID)
	if err != nil {
		return models.Visitor{}, err
	}

	var v models.Visitor
	var changed bool
	err = e.update(ctx, queueID, func(tx Tx) error {
		q, err := tx.GetQueue(ctx, queueID)
		if err != nil {
			return err
		}
		if !q.Capabilities.VIP {
			return fmt.Errorf("priority: %w", ErrCapabilityDisabled)
		}

		v, err = tx.GetVisitor(ctx, visitorID)
		if err != nil {
			return err
		}
		if v.Status.Terminal() {
			return fmt.Errorf("priority on %s visitor: %w", v.Status, ErrInvalidTransition)
		}
		changed = v.IsPriority != isPriority
		if !changed {
			return nil
		}

		v.IsPriority = isPriority
		if err := tx.UpdateVisitor(ctx, v); err != nil {
			return err
		}
		return tx.AppendLog(ctx, e.logEntry(queueID, v.ID, models.ActionPriority, "", e.now()))
	})
	if err != nil {
		return models.Visitor{}, err
	}

	if changed {
		e.publish(ctx, queueID)
	}
	return v, nil
}

// SubmitFeedback records a 1..5 rating on a served visitor.
func (e *Engine) SubmitFeedback(ctx context.Context, visitorID string, rating int, feedback string) (models.Visitor, error) {
	if rating < 1 || rating > 5 {
		return models.Visitor{}, fmt.Errorf("rating must be between 1 and 5: %w", ErrInvalidInput)
	}
	queueID, err := e.store.VisitorQueueID(ctx, visitorID)
	if err != nil {
		return models.Visitor{}, err
	}

	var v models.Visitor
	err = e.update(ctx, queueID, func(tx Tx) error {
		var err error
		v, err = tx.GetVisitor(ctx, visitorID)
		if err != nil {
			return err
		}
		if v.Status != models.StatusServed {
			return fmt.Errorf("feedback while %s: %w", v.Status, ErrInvalidTransition)
		}
		v.Rating = &rating
		v.Feedback = strings.TrimSpace(feedback)
		return tx.UpdateVisitor(ctx, v)
	})
	if err != nil {
		return models.Visitor{}, err
	}

	e.publish(ctx, queueID)
	return v, nil
}

// RemoveVisitor physically deletes a visitor from the queue.
func (e *Engine) RemoveVisitor(ctx context.Context, queueID, visitorID string) error {
	err := e.update(ctx, queueID, func(tx Tx) error {
		if _, err := getQueueVisitor(ctx, tx, queueID, visitorID); err != nil {
			return err
		}
		if err := tx.DeleteVisitor(ctx, visitorID); err != nil {
			return err
		}
		return tx.AppendLog(ctx, e.logEntry(queueID, visitorID, models.ActionRemove, "", e.now()))
	})
	if err != nil {
		return err
	}

	e.publish(ctx, queueID)
	return nil
}

/*
|--------------------------------------------------------------------------
| Transition helpers
|--------------------------------------------------------------------------
*/

func loadQueue(ctx context.Context, tx Tx, queueID string) (models.Queue, []models.Visitor, error) {
	q, err := tx.GetQueue(ctx, queueID)
	if err != nil {
		return models.Queue{}, nil, err
	}
	visitors, err := tx.GetVisitors(ctx, queueID)
	if err != nil {
		return models.Queue{}, nil, err
	}
	return q, visitors, nil
}

func getQueueVisitor(ctx context.Context, tx Tx, queueID, visitorID string) (models.Visitor, error) {
	v, err := tx.GetVisitor(ctx, visitorID)
	if err != nil {
		return models.Visitor{}, err
	}
	if v.QueueID != queueID {
		return models.Visitor{}, fmt.Errorf("visitor %s in queue %s: %w", visitorID, queueID, ErrNotFound)
	}
	return v, nil
}

func checkCounter(q models.Queue, counter string) error {
	if q.Capabilities.MultiCounter && counter == "" {
		return fmt.Errorf("counter is required in multi-counter mode: %w", ErrInvalidInput)
	}
	return nil
}

// servingIndex finds the visitor currently served by counter. Without the
// multi-counter capability any serving visitor belongs to the single counter.
func servingIndex(q models.Queue, visitors []models.Visitor, counter string) int {
	for i, v := range visitors {
		if v.Status != models.StatusServing {
			continue
		}
		if q.Capabilities.MultiCounter && v.ServedBy != counter {
			continue
		}
		return i
	}
	return -1
}

// completeServing marks every visitor serving on counter as served, except
// skipID. Returns how many were completed.
func (e *Engine) completeServing(ctx context.Context, tx Tx, q models.Queue, visitors []models.Visitor, counter, skipID string, now time.Time) (int, error) {
	n := 0
	for _, v := range visitors {
		if v.Status != models.StatusServing || v.ID == skipID {
			continue
		}
		if q.Capabilities.MultiCounter && v.ServedBy != counter {
			continue
		}
		markServed(&v, now)
		if err := tx.UpdateVisitor(ctx, v); err != nil {
			return n, err
		}
		if err := tx.AppendLog(ctx, e.logEntry(q.ID, v.ID, models.ActionComplete, counter, now)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (e *Engine) promote(ctx context.Context, tx Tx, v models.Visitor, counter string, action models.Action, now time.Time) (models.Visitor, error) {
	called := now
	started := now
	v.Status = models.StatusServing
	v.CalledAt = &called
	v.ServingStartTime = &started
	v.ServedBy = counter
	v.IsAlerting = true
	if err := tx.UpdateVisitor(ctx, v); err != nil {
		return models.Visitor{}, err
	}
	if err := tx.AppendLog(ctx, e.logEntry(v.QueueID, v.ID, action, counter, now)); err != nil {
		return models.Visitor{}, err
	}

	e.log.WithFields(logrus.Fields{
		"queue_id":      v.QueueID,
		"visitor_id":    v.ID,
		"ticket_number": v.TicketNumber,
		"counter":       counter,
		"action":        action,
	}).Debug("visitor called")
	return v, nil
}

func markServed(v *models.Visitor, now time.Time) {
	served := now
	v.Status = models.StatusServed
	v.ServedTime = &served
	v.IsAlerting = false
}

func resetToWaiting(v *models.Visitor) {
	v.Status = models.StatusWaiting
	v.IsAlerting = false
	v.CalledAt = nil
	v.ServingStartTime = nil
	v.ServedBy = ""
}

func indexOf(visitors []models.Visitor, id string) int {
	for i, v := range visitors {
		if v.ID == id {
			return i
		}
	}
	return -1
}
