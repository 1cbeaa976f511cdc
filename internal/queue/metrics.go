package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"liveline/internal/models"
)

type Metrics struct {
	WaitingCount   int           `json:"waiting_count"`
	ServingCount   int           `json:"serving_count"`
	ServedCount    int           `json:"served_count"`
	CancelledCount int           `json:"cancelled_count"`
	AvgWaitTime    time.Duration `json:"avg_wait_time"`
	SampleSize     int           `json:"sample_size"`
	// Estimated is true when AvgWaitTime is the queue's configured default.
	Estimated bool `json:"estimated"`
}

// Snapshot is the authoritative state observers re-fetch after a signal.
type Snapshot struct {
	Queue   models.Queue     `json:"queue"`
	Serving []models.Visitor `json:"serving"`
	Waiting []models.Visitor `json:"waiting"`
	Metrics Metrics          `json:"metrics"`
}

type Position struct {
	Visitor       models.Visitor `json:"visitor"`
	Ahead         int            `json:"ahead"`
	EstimatedWait time.Duration  `json:"estimated_wait"`
}

func (e *Engine) Metrics(ctx context.Context, queueID string) (Metrics, error) {
	var m Metrics
	err := e.view(ctx, queueID, func(tx Tx) error {
		q, visitors, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		m = e.aggregate(q, visitors)
		return nil
	})
	return m, err
}

// aggregate counts statuses and averages servedTime - joinTime over the most
// recent served visitors, falling back to the configured default estimate
// when the sample is too small.
func (e *Engine) aggregate(q models.Queue, visitors []models.Visitor) Metrics {
	var m Metrics
	var served []models.Visitor
	for _, v := range visitors {
		switch v.Status {
		case models.StatusWaiting:
			m.WaitingCount++
		case models.StatusServing:
			m.ServingCount++
		case models.StatusServed:
			m.ServedCount++
			if v.ServedTime != nil {
				served = append(served, v)
			}
		case models.StatusCancelled:
			m.CancelledCount++
		}
	}

	sort.Slice(served, func(i, j int) bool {
		return served[i].ServedTime.After(*served[j].ServedTime)
	})
	if len(served) > e.window {
		served = served[:e.window]
	}
	m.SampleSize = len(served)

	if m.SampleSize < e.minSamples {
		m.AvgWaitTime = q.DefaultServiceTime()
		m.Estimated = true
		return m
	}

	var total time.Duration
	for _, v := range served {
		total += v.ServedTime.Sub(v.JoinTime)
	}
	m.AvgWaitTime = total / time.Duration(m.SampleSize)
	return m
}

func (e *Engine) Snapshot(ctx context.Context, queueID string) (Snapshot, error) {
	var s Snapshot
	err := e.view(ctx, queueID, func(tx Tx) error {
		q, visitors, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		s = Snapshot{
			Queue:   q,
			Serving: []models.Visitor{},
			Waiting: Order(visitors),
			Metrics: e.aggregate(q, visitors),
		}
		for _, v := range visitors {
			if v.Status == models.StatusServing {
				s.Serving = append(s.Serving, v)
			}
		}
		sort.Slice(s.Serving, func(i, j int) bool {
			return s.Serving[i].ServedBy < s.Serving[j].ServedBy
		})
		if s.Waiting == nil {
			s.Waiting = []models.Visitor{}
		}
		return nil
	})
	return s, err
}

// Position reports how many waiting visitors are ahead and a wait estimate.
func (e *Engine) Position(ctx context.Context, visitorID string) (Position, error) {
	queueID, err := e.store.VisitorQueueID(ctx, visitorID)
	if err != nil {
		return Position{}, err
	}

	var p Position
	err = e.view(ctx, queueID, func(tx Tx) error {
		q, visitors, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		idx := indexOf(visitors, visitorID)
		if idx < 0 {
			return fmt.Errorf("visitor %s: %w", visitorID, ErrNotFound)
		}
		p = Position{Visitor: visitors[idx]}
		if p.Visitor.Status != models.StatusWaiting {
			return nil
		}

		for i, v := range Order(visitors) {
			if v.ID == visitorID {
				p.Ahead = i
				break
			}
		}
		p.EstimatedWait = time.Duration(p.Ahead) * e.aggregate(q, visitors).AvgWaitTime
		return nil
	})
	return p, err
}

// Activity returns up to limit log entries, newest first.
func (e *Engine) Activity(ctx context.Context, queueID string, limit int) ([]models.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.ActivityLogEntry
	err := e.view(ctx, queueID, func(tx Tx) error {
		if _, err := tx.GetQueue(ctx, queueID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListLogs(ctx, queueID, limit)
		return err
	})
	return out, err
}
