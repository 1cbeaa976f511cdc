// Package sqlstore is the Ticket Store on database/sql, for MySQL in
// production and SQLite for single-node setups and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"liveline/internal/models"
	"liveline/internal/queue"
)

type Store struct {
	db      *sql.DB
	dialect Dialect
	log     logrus.FieldLogger
}

var _ queue.Store = (*Store)(nil)

func New(db *sql.DB, dialect Dialect, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		db:      db,
		dialect: dialect,
		log:     log.WithFields(logrus.Fields{"component": "sqlstore", "dialect": dialect.Name}),
	}
}

func (s *Store) DB() *sql.DB { return s.db }

// Update runs fn in a transaction that holds the queue row lock.
func (s *Store) Update(ctx context.Context, queueID string, fn func(tx queue.Tx) error) error {
	return s.run(ctx, queueID, false, fn)
}

// View runs fn in a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, queueID string, fn func(tx queue.Tx) error) error {
	return s.run(ctx, queueID, true, fn)
}

func (s *Store) run(ctx context.Context, queueID string, readOnly bool, fn func(tx queue.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(fmt.Errorf("begin transaction: %w", err))
	}

	t := &tx{tx: sqlTx, readOnly: readOnly}
	if err := t.lockQueue(ctx, queueID, s.dialect); err != nil {
		_ = sqlTx.Rollback()
		return translate(err)
	}
	if err := fn(t); err != nil {
		_ = sqlTx.Rollback()
		return translate(err)
	}

	if readOnly {
		return sqlTx.Rollback()
	}
	if err := sqlTx.Commit(); err != nil {
		return translate(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) CreateQueue(ctx context.Context, q models.Queue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queues (`+queueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		queueArgs(q)...,
	)
	if err != nil {
		if isUniqueViolation(err) && strings.Contains(err.Error(), "join_code") {
			return queue.ErrJoinCodeTaken
		}
		return fmt.Errorf("insert queue: %w", err)
	}
	return nil
}

// DeleteQueue removes the queue row with its visitors and log entries.
func (s *Store) DeleteQueue(ctx context.Context, queueID string) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM activity_logs WHERE queue_id = ?`, queueID); err != nil {
		return translate(err)
	}
	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM visitors WHERE queue_id = ?`, queueID); err != nil {
		return translate(err)
	}
	res, err := sqlTx.ExecContext(ctx, `DELETE FROM queues WHERE id = ?`, queueID)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("queue %s: %w", queueID, queue.ErrNotFound)
	}
	return translate(sqlTx.Commit())
}

func (s *Store) FindQueueByJoinCode(ctx context.Context, code string) (models.Queue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queues WHERE join_code = ?`, code)
	q, err := scanQueue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Queue{}, fmt.Errorf("join code %s: %w", code, queue.ErrNotFound)
	}
	return q, err
}

func (s *Store) ListQueueIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM queues ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) VisitorQueueID(ctx context.Context, visitorID string) (string, error) {
	var queueID string
	err := s.db.QueryRowContext(ctx, `SELECT queue_id FROM visitors WHERE id = ?`, visitorID).Scan(&queueID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("visitor %s: %w", visitorID, queue.ErrNotFound)
	}
	return queueID, err
}
