package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"liveline/internal/models"
)

const (
	DefaultSweepInterval = 5 * time.Second
	DefaultSweepWorkers  = 20

	supervisorActor = "supervisor"
)

// SweepResult counts the transitions one sweep applied to a queue.
type SweepResult struct {
	Demoted int `json:"demoted"`
	Skipped int `json:"skipped"`
}

// Sweep applies grace-period expiry and auto-skip to one queue. The guard
// conditions are false after a transition is applied, so running it twice
// at the same instant changes nothing the second time.
func (e *Engine) Sweep(ctx context.Context, queueID string) (SweepResult, error) {
	var res SweepResult
	err := e.update(ctx, queueID, func(tx Tx) error {
		res = SweepResult{}

		q, visitors, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		now := e.now()

		grace := q.GracePeriod()
		for _, v := range visitors {
			if v.Status != models.StatusServing || !v.IsAlerting || v.CalledAt == nil {
				continue
			}
			if now.Sub(*v.CalledAt) <= grace {
				continue
			}
			if err := e.demote(ctx, tx, q, visitors, v, now); err != nil {
				return err
			}
			res.Demoted++
			// keep the in-memory view consistent for the next demotion
			visitors, err = tx.GetVisitors(ctx, queueID)
			if err != nil {
				return err
			}
		}

		autoSkip := q.AutoSkip()
		if autoSkip == 0 {
			return nil
		}
		for _, v := range visitors {
			if v.Status != models.StatusServing || v.IsAlerting || v.ServingStartTime == nil {
				continue
			}
			if now.Sub(*v.ServingStartTime) <= autoSkip {
				continue
			}
			markServed(&v, now)
			if err := tx.UpdateVisitor(ctx, v); err != nil {
				return err
			}
			if err := tx.AppendLog(ctx, e.logEntry(queueID, v.ID, models.ActionSkip, supervisorActor, now)); err != nil {
				return err
			}
			res.Skipped++
		}
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}

	if res.Demoted > 0 || res.Skipped > 0 {
		e.log.WithFields(logrus.Fields{
			"queue_id": queueID,
			"demoted":  res.Demoted,
			"skipped":  res.Skipped,
		}).Info("sweep applied")
		e.publish(ctx, queueID)
	}
	return res, nil
}

// demote sends an unconfirmed visitor to the back of the line as late.
// Waiting visitors without a manual order are given one first, in their
// current sequence, so the demoted visitor lands behind them. Materializing
// stops at the first priority visitor that would sort ahead of an ordered
// regular visitor; it and everyone after it stay unordered so the relative
// order of the rest of the line never changes.
func (e *Engine) demote(ctx context.Context, tx Tx, q models.Queue, visitors []models.Visitor, v models.Visitor, now time.Time) error {
	next := maxOrder(visitors)
	line := Order(visitors)
	orderedRegular := false
	for _, w := range line {
		if w.Order != nil && !w.IsPriority {
			orderedRegular = true
		}
	}
	for _, w := range line {
		if w.Order != nil {
			continue
		}
		if w.IsPriority && orderedRegular {
			break
		}
		next++
		order := next
		w.Order = &order
		if err := tx.UpdateVisitor(ctx, w); err != nil {
			return err
		}
		if !w.IsPriority {
			orderedRegular = true
		}
	}
	next++
	resetToWaiting(&v)
	v.IsLate = true
	v.Order = &next
	if err := tx.UpdateVisitor(ctx, v); err != nil {
		return err
	}
	return tx.AppendLog(ctx, e.logEntry(q.ID, v.ID, models.ActionLate, supervisorActor, now))
}

// Supervisor runs Sweep over every queue on a fixed interval.
type Supervisor struct {
	engine   *Engine
	log      logrus.FieldLogger
	interval time.Duration
	workers  int
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewSupervisor(engine *Engine, interval time.Duration, workers int, log logrus.FieldLogger) *Supervisor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if workers <= 0 {
		workers = DefaultSweepWorkers
	}
	if log == nil {
		log = engine.log
	}
	return &Supervisor{
		engine:   engine,
		log:      log.WithField("component", "supervisor"),
		interval: interval,
		workers:  workers,
		stopChan: make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (s *Supervisor) Start(ctx context.Context) {
	s.log.WithField("interval", s.interval).Info("starting supervisor")

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("supervisor stopped due to context cancellation")
			return
		case <-s.stopChan:
			s.log.Info("supervisor stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// RunOnce sweeps every queue known to the store right now. Queues are swept
// in parallel so one slow queue does not hold up the rest; a failing queue
// is logged and skipped.
func (s *Supervisor) RunOnce(ctx context.Context) SweepResult {
	ids, err := s.engine.QueueIDs(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to list queues")
		return SweepResult{}
	}
	sort.Strings(ids)

	var (
		total SweepResult
		mu    sync.Mutex
		wg    sync.WaitGroup
	)
	sem := make(chan struct{}, s.workers)

	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(queueID string) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := s.engine.Sweep(ctx, queueID)
			if errors.Is(err, ErrNotFound) {
				return
			}
			if err != nil {
				s.log.WithError(err).WithField("queue_id", queueID).Warn("sweep failed")
				return
			}

			mu.Lock()
			total.Demoted += res.Demoted
			total.Skipped += res.Skipped
			mu.Unlock()
		}(id)
	}

	wg.Wait()
	return total
}
