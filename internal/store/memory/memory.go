// Package memory is an in-process Ticket Store. Each queue has its own lock;
// an update works on a private copy of the queue and swaps it in on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"liveline/internal/models"
	"liveline/internal/queue"
)

type bucket struct {
	code     string // immutable join code, readable without mu
	mu       sync.Mutex
	deleted  bool
	queue    models.Queue
	visitors map[string]models.Visitor
	logs     []models.ActivityLogEntry
}

type Store struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	// visitor id -> queue id, guarded separately so bucket locks never nest inside mu
	idxMu sync.RWMutex
	index map[string]string
}

func New() *Store {
	return &Store{
		buckets: make(map[string]*bucket),
		index:   make(map[string]string),
	}
}

var _ queue.Store = (*Store)(nil)

func (s *Store) bucket(queueID string) (*bucket, error) {
	s.mu.RLock()
	b, ok := s.buckets[queueID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("queue %s: %w", queueID, queue.ErrNotFound)
	}
	return b, nil
}

func (s *Store) Update(ctx context.Context, queueID string, fn func(tx queue.Tx) error) error {
	b, err := s.bucket(queueID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleted {
		return fmt.Errorf("queue %s: %w", queueID, queue.ErrNotFound)
	}

	tx := newTx(b)
	if err := fn(tx); err != nil {
		return err
	}

	b.queue = tx.queue
	b.visitors = tx.visitors
	b.logs = append(b.logs, tx.logs...)

	if len(tx.inserted) > 0 || len(tx.deleted) > 0 {
		s.idxMu.Lock()
		queueID = strings.Clone(queueID)
		for _, id := range tx.inserted {
			s.index[id] = queueID
		}
		for _, id := range tx.deleted {
			delete(s.index, id)
		}
		s.idxMu.Unlock()
	}
	return nil
}

func (s *Store) View(ctx context.Context, queueID string, fn func(tx queue.Tx) error) error {
	b, err := s.bucket(queueID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleted {
		return fmt.Errorf("queue %s: %w", queueID, queue.ErrNotFound)
	}
	tx := newTx(b)
	tx.readOnly = true
	return fn(tx)
}

func (s *Store) CreateQueue(ctx context.Context, q models.Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buckets[q.ID]; ok {
		return fmt.Errorf("queue %s already exists", q.ID)
	}
	for _, b := range s.buckets {
		if b.code == q.JoinCode {
			return queue.ErrJoinCodeTaken
		}
	}
	s.buckets[q.ID] = &bucket{
		code:     q.JoinCode,
		queue:    q,
		visitors: make(map[string]models.Visitor),
	}
	return nil
}

func (s *Store) DeleteQueue(ctx context.Context, queueID string) error {
	s.mu.Lock()
	b, ok := s.buckets[queueID]
	delete(s.buckets, queueID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("queue %s: %w", queueID, queue.ErrNotFound)
	}

	b.mu.Lock()
	b.deleted = true
	ids := make([]string, 0, len(b.visitors))
	for id := range b.visitors {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	s.idxMu.Lock()
	for _, id := range ids {
		delete(s.index, id)
	}
	s.idxMu.Unlock()
	return nil
}

func (s *Store) FindQueueByJoinCode(ctx context.Context, code string) (models.Queue, error) {
	s.mu.RLock()
	var found *bucket
	for _, b := range s.buckets {
		if b.code == code {
			found = b
			break
		}
	}
	s.mu.RUnlock()
	if found == nil {
		return models.Queue{}, fmt.Errorf("join code %s: %w", code, queue.ErrNotFound)
	}

	found.mu.Lock()
	defer found.mu.Unlock()
	return found.queue, nil
}

func (s *Store) ListQueueIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.buckets))
	for id := range s.buckets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) VisitorQueueID(ctx context.Context, visitorID string) (string, error) {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()

	id, ok := s.index[visitorID]
	if !ok {
		return "", fmt.Errorf("visitor %s: %w", visitorID, queue.ErrNotFound)
	}
	return id, nil
}
