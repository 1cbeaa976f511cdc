package queue

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"liveline/internal/helper"
	"liveline/internal/models"
)

const (
	DefaultMetricsWindow     = 10
	DefaultMetricsMinSamples = 3
	DefaultMaxAttempts       = 3

	joinCodeLength   = 6
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeAttempts = 5
)

// Options configures an Engine. Zero values fall back to the defaults above.
type Options struct {
	Publisher         Publisher
	Sequencer         Sequencer
	Logger            logrus.FieldLogger
	MetricsWindow     int
	MetricsMinSamples int
	MaxAttempts       int
}

// Engine is the queue state machine. Every mutation runs under the queue's
// lock and inside one store transaction, then publishes a change signal.
type Engine struct {
	store      Store
	publisher  Publisher
	sequencer  Sequencer
	locks      *lockRegistry
	log        logrus.FieldLogger
	window     int
	minSamples int
	attempts   int

	// Now is the engine clock. Tests replace it.
	Now func() time.Time
	// Backoff returns the pause before retry attempt n (1-based).
	Backoff func(attempt int) time.Duration
}

func New(store Store, opts Options) *Engine {
	e := &Engine{
		store:      store,
		publisher:  opts.Publisher,
		sequencer:  opts.Sequencer,
		locks:      newLockRegistry(),
		log:        opts.Logger,
		window:     opts.MetricsWindow,
		minSamples: opts.MetricsMinSamples,
		attempts:   opts.MaxAttempts,
		Now:        time.Now,
		Backoff:    jitteredBackoff,
	}
	if e.publisher == nil {
		e.publisher = nopPublisher{}
	}
	if e.sequencer == nil {
		e.sequencer = StoreSequencer{}
	}
	if e.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		e.log = l
	}
	if e.window <= 0 {
		e.window = DefaultMetricsWindow
	}
	if e.minSamples <= 0 {
		e.minSamples = DefaultMetricsMinSamples
	}
	if e.attempts <= 0 {
		e.attempts = DefaultMaxAttempts
	}
	e.log = e.log.WithField("component", "engine")
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func jitteredBackoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 10 * time.Millisecond
	return base + time.Duration(mrand.Int64N(int64(10*time.Millisecond)))
}

// update runs fn under the queue lock, retrying transient store conflicts.
// The lock is released between attempts.
func (e *Engine) update(ctx context.Context, queueID string, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		unlock := e.locks.lock(queueID)
		err = e.store.Update(ctx, queueID, fn)
		unlock()

		if err == nil || !errors.Is(err, ErrConcurrencyConflict) || attempt >= e.attempts {
			break
		}

		e.log.WithFields(logrus.Fields{
			"queue_id": queueID,
			"attempt":  attempt,
		}).Debug("store conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.Backoff(attempt)):
		}
	}
	return err
}

func (e *Engine) view(ctx context.Context, queueID string, fn func(tx Tx) error) error {
	return e.store.View(ctx, queueID, fn)
}

func (e *Engine) publish(ctx context.Context, queueID string) {
	e.publisher.Publish(ctx, queueID)
}

func (e *Engine) logEntry(queueID, visitorID string, action models.Action, actor string, at time.Time) models.ActivityLogEntry {
	return models.ActivityLogEntry{
		ID:        uuid.NewString(),
		QueueID:   queueID,
		VisitorID: visitorID,
		Action:    action,
		Actor:     actor,
		CreatedAt: at,
	}
}

/*
|--------------------------------------------------------------------------
| Queue administration
|--------------------------------------------------------------------------
*/

func (e *Engine) CreateQueue(ctx context.Context, ownerID string, settings models.QueueSettings) (models.Queue, error) {
	if strings.TrimSpace(ownerID) == "" {
		return models.Queue{}, fmt.Errorf("owner id is required: %w", ErrInvalidInput)
	}
	settings, err := validateSettings(settings)
	if err != nil {
		return models.Queue{}, err
	}

	now := e.now()
	q := models.Queue{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Status:    models.QueueActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.Apply(settings)

	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		q.JoinCode, err = generateJoinCode()
		if err != nil {
			return models.Queue{}, err
		}
		err = e.store.CreateQueue(ctx, q)
		if !errors.Is(err, ErrJoinCodeTaken) {
			break
		}
	}
	if err != nil {
		return models.Queue{}, fmt.Errorf("create queue: %w", err)
	}

	e.log.WithFields(logrus.Fields{"queue_id": q.ID, "join_code": q.JoinCode}).Info("queue created")
	e.publish(ctx, q.ID)
	return q, nil
}

func (e *Engine) GetQueue(ctx context.Context, queueID string) (models.Queue, error) {
	var q models.Queue
	err := e.view(ctx, queueID, func(tx Tx) error {
		var err error
		q, err = tx.GetQueue(ctx, queueID)
		return err
	})
	return q, err
}

func (e *Engine) GetQueueByJoinCode(ctx context.Context, code string) (models.Queue, error) {
	return e.store.FindQueueByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

func (e *Engine) UpdateSettings(ctx context.Context, queueID string, settings models.QueueSettings) (models.Queue, error) {
	settings, err := validateSettings(settings)
	if err != nil {
		return models.Queue{}, err
	}

	var q models.Queue
	err = e.update(ctx, queueID, func(tx Tx) error {
		var err error
		q, err = tx.GetQueue(ctx, queueID)
		if err != nil {
			return err
		}
		q.Apply(settings)
		q.UpdatedAt = e.now()
		return tx.SaveQueue(ctx, q)
	})
	if err != nil {
		return models.Queue{}, err
	}

	e.publish(ctx, queueID)
	return q, nil
}

func (e *Engine) SetPaused(ctx context.Context, queueID string, paused bool) (models.Queue, error) {
	want := models.QueueActive
	if paused {
		want = models.QueuePaused
	}

	var q models.Queue
	var changed bool
	err := e.update(ctx, queueID, func(tx Tx) error {
		var err error
		q, err = tx.GetQueue(ctx, queueID)
		if err != nil {
			return err
		}
		changed = q.Status != want
		if !changed {
			return nil
		}
		q.Status = want
		q.UpdatedAt = e.now()
		return tx.SaveQueue(ctx, q)
	})
	if err != nil {
		return models.Queue{}, err
	}

	if changed {
		e.publish(ctx, queueID)
	}
	return q, nil
}

// DeleteQueue removes the queue with its visitors and log.
func (e *Engine) DeleteQueue(ctx context.Context, queueID string) error {
	unlock := e.locks.lock(queueID)
	err := e.store.DeleteQueue(ctx, queueID)
	unlock()
	if err != nil {
		return err
	}

	e.locks.forget(queueID)
	if f, ok := e.sequencer.(interface {
		Forget(ctx context.Context, queueID string) error
	}); ok {
		if err := f.Forget(ctx, queueID); err != nil {
			e.log.WithError(err).WithField("queue_id", queueID).Warn("failed to drop ticket counter")
		}
	}
	e.log.WithField("queue_id", queueID).Info("queue deleted")
	e.publish(ctx, queueID)
	return nil
}

// QueueIDs lists every queue currently in the store.
func (e *Engine) QueueIDs(ctx context.Context) ([]string, error) {
	return e.store.ListQueueIDs(ctx)
}

func validateSettings(s models.QueueSettings) (models.QueueSettings, error) {
	s.Name = strings.TrimSpace(s.Name)
	switch {
	case s.Name == "":
		return s, fmt.Errorf("name is required: %w", ErrInvalidInput)
	case s.DefaultServiceMinutes < 0:
		return s, fmt.Errorf("default service minutes must not be negative: %w", ErrInvalidInput)
	case s.GracePeriodMinutes < 1:
		return s, fmt.Errorf("grace period must be at least one minute: %w", ErrInvalidInput)
	case s.AutoSkipMinutes < 0:
		return s, fmt.Errorf("auto-skip minutes must not be negative: %w", ErrInvalidInput)
	}

	if (s.OpenTime == "") != (s.CloseTime == "") {
		return s, fmt.Errorf("open and close time must be set together: %w", ErrInvalidInput)
	}
	if s.OpenTime != "" {
		var err error
		if s.OpenTime, err = helper.NormalizeClock(s.OpenTime); err != nil {
			return s, fmt.Errorf("%v: %w", err, ErrInvalidInput)
		}
		if s.CloseTime, err = helper.NormalizeClock(s.CloseTime); err != nil {
			return s, fmt.Errorf("%v: %w", err, ErrInvalidInput)
		}
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return s, fmt.Errorf("unknown timezone %q: %w", s.Timezone, ErrInvalidInput)
		}
	}
	return s, nil
}

func generateJoinCode() (string, error) {
	out := make([]byte, joinCodeLength)
	n := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("failed to generate join code: %w", err)
		}
		out[i] = joinCodeAlphabet[idx.Int64()]
	}
	return string(out), nil
}
