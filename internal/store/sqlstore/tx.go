package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"liveline/internal/models"
	"liveline/internal/queue"
)

var errReadOnly = errors.New("write in read-only transaction")

const queueColumns = `id, owner_id, name, join_code, status, default_service_minutes,
	grace_period_minutes, auto_skip_minutes, announcement, cap_vip, cap_multi_counter,
	cap_anonymous, open_time, close_time, timezone, last_ticket_number, created_at, updated_at`

const visitorColumns = `id, queue_id, ticket_number, name, status, is_priority, sort_order,
	join_time, called_at, serving_start_time, served_time, served_by, is_alerting, is_late,
	rating, feedback`

type scanner interface {
	Scan(dest ...any) error
}

type tx struct {
	tx       *sql.Tx
	readOnly bool
	nextSeq  int64
}

func (t *tx) lockQueue(ctx context.Context, queueID string, dialect Dialect) error {
	var id string
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM queues WHERE id = ?`+dialect.forUpdate, queueID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("queue %s: %w", queueID, queue.ErrNotFound)
	}
	return err
}

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *tx) GetQueue(ctx context.Context, id string) (models.Queue, error) {
	q, err := scanQueue(t.tx.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queues WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Queue{}, fmt.Errorf("queue %s: %w", id, queue.ErrNotFound)
	}
	return q, err
}

func (t *tx) SaveQueue(ctx context.Context, q models.Queue) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE queues SET
			owner_id = ?, name = ?, status = ?, default_service_minutes = ?,
			grace_period_minutes = ?, auto_skip_minutes = ?, announcement = ?,
			cap_vip = ?, cap_multi_counter = ?, cap_anonymous = ?,
			open_time = ?, close_time = ?, timezone = ?, last_ticket_number = ?, updated_at = ?
		WHERE id = ?`,
		q.OwnerID, q.Name, string(q.Status), q.DefaultServiceMinutes,
		q.GracePeriodMinutes, q.AutoSkipMinutes, q.Announcement,
		q.Capabilities.VIP, q.Capabilities.MultiCounter, q.Capabilities.Anonymous,
		q.OpenTime, q.CloseTime, q.Timezone, q.LastTicketNumber, q.UpdatedAt.UTC(),
		q.ID,
	)
	if err != nil {
		return fmt.Errorf("update queue: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("queue %s: %w", q.ID, queue.ErrNotFound)
	}
	return nil
}

func (t *tx) GetVisitors(ctx context.Context, queueID string) ([]models.Visitor, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+visitorColumns+` FROM visitors WHERE queue_id = ? ORDER BY ticket_number`, queueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Visitor
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *tx) GetVisitor(ctx context.Context, id string) (models.Visitor, error) {
	v, err := scanVisitor(t.tx.QueryRowContext(ctx, `SELECT `+visitorColumns+` FROM visitors WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Visitor{}, fmt.Errorf("visitor %s: %w", id, queue.ErrNotFound)
	}
	return v, err
}

func (t *tx) InsertVisitor(ctx context.Context, v models.Visitor) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO visitors (`+visitorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.QueueID, v.TicketNumber, v.Name, string(v.Status), v.IsPriority, nullInt(v.Order),
		v.JoinTime.UTC(), nullTime(v.CalledAt), nullTime(v.ServingStartTime), nullTime(v.ServedTime),
		v.ServedBy, v.IsAlerting, v.IsLate, nullInt(v.Rating), v.Feedback,
	)
	if err != nil {
		return fmt.Errorf("insert visitor: %w", err)
	}
	return nil
}

// UpdateVisitor writes every mutable column. Ticket number and queue are
// part of the match so they can never change.
func (t *tx) UpdateVisitor(ctx context.Context, v models.Visitor) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE visitors SET
			name = ?, status = ?, is_priority = ?, sort_order = ?, join_time = ?,
			called_at = ?, serving_start_time = ?, served_time = ?, served_by = ?,
			is_alerting = ?, is_late = ?, rating = ?, feedback = ?
		WHERE id = ? AND queue_id = ? AND ticket_number = ?`,
		v.Name, string(v.Status), v.IsPriority, nullInt(v.Order), v.JoinTime.UTC(),
		nullTime(v.CalledAt), nullTime(v.ServingStartTime), nullTime(v.ServedTime), v.ServedBy,
		v.IsAlerting, v.IsLate, nullInt(v.Rating), v.Feedback,
		v.ID, v.QueueID, v.TicketNumber,
	)
	if err != nil {
		return fmt.Errorf("update visitor: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	if _, err := t.GetVisitor(ctx, v.ID); err != nil {
		return err
	}
	return fmt.Errorf("visitor %s: ticket number and queue are immutable", v.ID)
}

func (t *tx) DeleteVisitor(ctx context.Context, id string) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM visitors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete visitor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("visitor %s: %w", id, queue.ErrNotFound)
	}
	return nil
}

// AppendLog numbers entries per queue so ListLogs has a total order even
// when timestamps collide.
func (t *tx) AppendLog(ctx context.Context, e models.ActivityLogEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	if t.nextSeq == 0 {
		var last int64
		err := t.tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM activity_logs WHERE queue_id = ?`, e.QueueID).Scan(&last)
		if err != nil {
			return fmt.Errorf("read log sequence: %w", err)
		}
		t.nextSeq = last + 1
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO activity_logs (id, queue_id, seq, visitor_id, action, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.QueueID, t.nextSeq, e.VisitorID, string(e.Action), e.Actor, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	t.nextSeq++
	return nil
}

func (t *tx) ListLogs(ctx context.Context, queueID string, limit int) ([]models.ActivityLogEntry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, queue_id, visitor_id, action, actor, created_at
		FROM activity_logs WHERE queue_id = ?
		ORDER BY seq DESC LIMIT ?`, queueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.ActivityLogEntry, 0, limit)
	for rows.Next() {
		var (
			e      models.ActivityLogEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.QueueID, &e.VisitorID, &action, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = models.Action(action)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

/*
|--------------------------------------------------------------------------
| Row mapping
|--------------------------------------------------------------------------
*/

func queueArgs(q models.Queue) []any {
	return []any{
		q.ID, q.OwnerID, q.Name, q.JoinCode, string(q.Status), q.DefaultServiceMinutes,
		q.GracePeriodMinutes, q.AutoSkipMinutes, q.Announcement, q.Capabilities.VIP,
		q.Capabilities.MultiCounter, q.Capabilities.Anonymous, q.OpenTime, q.CloseTime,
		q.Timezone, q.LastTicketNumber, q.CreatedAt.UTC(), q.UpdatedAt.UTC(),
	}
}

func scanQueue(row scanner) (models.Queue, error) {
	var (
		q      models.Queue
		status string
	)
	err := row.Scan(
		&q.ID, &q.OwnerID, &q.Name, &q.JoinCode, &status, &q.DefaultServiceMinutes,
		&q.GracePeriodMinutes, &q.AutoSkipMinutes, &q.Announcement, &q.Capabilities.VIP,
		&q.Capabilities.MultiCounter, &q.Capabilities.Anonymous, &q.OpenTime, &q.CloseTime,
		&q.Timezone, &q.LastTicketNumber, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return models.Queue{}, err
	}
	q.Status = models.QueueStatus(status)
	q.CreatedAt = q.CreatedAt.UTC()
	q.UpdatedAt = q.UpdatedAt.UTC()
	return q, nil
}

func scanVisitor(row scanner) (models.Visitor, error) {
	var (
		v                           models.Visitor
		status                      string
		order, rating               sql.NullInt64
		called, started, servedTime sql.NullTime
	)
	err := row.Scan(
		&v.ID, &v.QueueID, &v.TicketNumber, &v.Name, &status, &v.IsPriority, &order,
		&v.JoinTime, &called, &started, &servedTime, &v.ServedBy, &v.IsAlerting, &v.IsLate,
		&rating, &v.Feedback,
	)
	if err != nil {
		return models.Visitor{}, err
	}
	v.Status = models.VisitorStatus(status)
	v.JoinTime = v.JoinTime.UTC()
	v.Order = intPtr(order)
	v.Rating = intPtr(rating)
	v.CalledAt = timePtr(called)
	v.ServingStartTime = timePtr(started)
	v.ServedTime = timePtr(servedTime)
	return v, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	i := int(n.Int64)
	return &i
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}
